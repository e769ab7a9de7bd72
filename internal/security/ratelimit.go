package security

import (
	"net/http"
	"sync"
	"time"
)

// LoginLimiter caps login attempts per client IP to a fixed number within a
// rolling window. A successful login resets the caller's budget.
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptWindow
	limit    int
	window   time.Duration
}

type attemptWindow struct {
	count   int
	startAt time.Time
}

// NewLoginLimiter creates a limiter allowing limit attempts per window.
func NewLoginLimiter(limit int, window time.Duration) *LoginLimiter {
	l := &LoginLimiter{
		attempts: make(map[string]*attemptWindow),
		limit:    limit,
		window:   window,
	}
	go l.sweep()
	return l
}

// Allow records an attempt from ip and reports whether it is within budget.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.attempts[ip]
	if !ok || now.Sub(w.startAt) >= l.window {
		l.attempts[ip] = &attemptWindow{count: 1, startAt: now}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Reset clears the attempt budget for ip, typically after a successful
// login.
func (l *LoginLimiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// sweep drops stale windows so the map does not grow without bound.
func (l *LoginLimiter) sweep() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for ip, w := range l.attempts {
			if now.Sub(w.startAt) > l.window*2 {
				delete(l.attempts, ip)
			}
		}
		l.mu.Unlock()
	}
}

// GetClientIP extracts the client IP from the request.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For is set when behind a proxy
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
