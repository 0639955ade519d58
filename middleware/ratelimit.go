package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Clock supplies the current time; tests inject a fake one.
type Clock func() time.Time

// RateLimiter is a fixed-window per-client limiter with a bounded client
// table. All state lives here, guarded by the mutex; nothing is package
// level.
type RateLimiter struct {
	mu         sync.Mutex
	window     time.Duration
	max        int
	maxClients int
	clock      Clock
	clients    map[string]*clientWindow
}

type clientWindow struct {
	start time.Time
	count int
}

func NewRateLimiter(window time.Duration, max, maxClients int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{
		window:     window,
		max:        max,
		maxClients: maxClients,
		clock:      clock,
		clients:    make(map[string]*clientWindow),
	}
}

// Allow records one request for the client and reports whether it is within
// the window's budget.
func (l *RateLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()

	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.window {
		if !ok && len(l.clients) >= l.maxClients {
			l.evict(now)
		}
		l.clients[clientID] = &clientWindow{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= l.max
}

// evict drops expired windows; if every window is still live the oldest one
// goes, keeping the table bounded.
func (l *RateLimiter) evict(now time.Time) {
	var oldestID string
	var oldest time.Time
	for id, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, id)
			continue
		}
		if oldestID == "" || w.start.Before(oldest) {
			oldestID = id
			oldest = w.start
		}
	}
	if len(l.clients) >= l.maxClients && oldestID != "" {
		delete(l.clients, oldestID)
	}
}

// Handler applies the limiter keyed by client IP.
func (l *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		}
		return c.Next()
	}
}
