package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnv sync.Once

// Config returns a required environment variable, loading .env on first use.
func Config(envVar string) string {
	loadDotenv()

	envVarValue := os.Getenv(envVar)
	if envVarValue == "" {
		fmt.Fprintf(os.Stderr, "%s not set\n", envVar)
		os.Exit(1)
	}

	return envVarValue
}

// ConfigDefault returns an environment variable or the fallback when unset.
func ConfigDefault(envVar, fallback string) string {
	loadDotenv()

	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// ConfigInt64 returns an integer environment variable or the fallback when
// unset or unparsable.
func ConfigInt64(envVar string, fallback int64) int64 {
	loadDotenv()

	v := os.Getenv(envVar)
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s is not an integer, using default %d\n", envVar, fallback)
		return fallback
	}
	return n
}

// ConfigDuration returns a duration environment variable (e.g. "30s") or the
// fallback when unset or unparsable.
func ConfigDuration(envVar string, fallback time.Duration) time.Duration {
	loadDotenv()

	v := os.Getenv(envVar)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s is not a duration, using default %s\n", envVar, fallback)
		return fallback
	}
	return d
}

func loadDotenv() {
	loadEnv.Do(func() {
		// A missing .env file is fine, variables may come from the real
		// environment.
		_ = godotenv.Load()
	})
}
