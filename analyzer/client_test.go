package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cat.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tags":["cat","outdoor"],"confidence":{"cat":0.95,"outdoor":0.81}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.Analyze(context.Background(), []byte("jpegdata"), "cat.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "outdoor"}, res.Tags)
	assert.Equal(t, map[string]float64{"cat": 0.95, "outdoor": 0.81}, res.Confidence)
}

func TestAnalyzeDeduplicatesTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tags":["cat","cat","dog"],"confidence":{"cat":0.9}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.Analyze(context.Background(), []byte("x"), "a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, res.Tags)
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := NewClient(srv.URL, time.Second)
	_, err := c.Analyze(context.Background(), []byte("x"), "a.jpg", "image/jpeg")

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindUnreachable, failure.Kind)
}

func TestAnalyzeTimedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Analyze(context.Background(), []byte("x"), "a.jpg", "image/jpeg")

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindTimedOut, failure.Kind)
	// Hard deadline, not a connect timeout.
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestAnalyzeServiceError(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"remote failure status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"empty tags", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tags":[],"confidence":{}}`))
		}},
		{"confidence out of range", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tags":["cat"],"confidence":{"cat":1.5}}`))
		}},
		{"confidence for unknown tag", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tags":["cat"],"confidence":{"dog":0.5}}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			_, err := c.Analyze(context.Background(), []byte("x"), "a.jpg", "image/jpeg")

			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, KindServiceError, failure.Kind)
		})
	}
}

func TestAnalyzeSingleAttempt(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Analyze(context.Background(), []byte("x"), "a.jpg", "image/jpeg")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	h := c.HealthCheck(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Empty(t, h.Error)
}

func TestHealthCheckUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	c := NewClient(srv.URL, time.Second)
	h := c.HealthCheck(context.Background())
	assert.Equal(t, "unavailable", h.Status)
	assert.NotEmpty(t, h.Error)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`[{"name":"resnet50","description":"Image classification"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ms, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "resnet50", ms[0].Name)
}
