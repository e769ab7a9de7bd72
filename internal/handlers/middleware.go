package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"plstudy/internal/security"
	"plstudy/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// SessionContextKey holds the *service.SessionState for the request.
	SessionContextKey ContextKey = "session"
	// ParticipantContextKey holds the participant ID string.
	ParticipantContextKey ContextKey = "participant"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	sessions      *service.SessionService
	csrf          *security.CSRFGenerator
	sessionSecret string
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(sessions *service.SessionService, csrf *security.CSRFGenerator, sessionSecret string) *Middleware {
	return &Middleware{
		sessions:      sessions,
		csrf:          csrf,
		sessionSecret: sessionSecret,
	}
}

// RequireSession validates the signed session cookie, resolves the live
// session state and puts both the state and the participant ID on the
// request context. An expired or unknown session clears the cookie.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(security.SessionCookieName)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Please log in to continue.", "", nil)
			return
		}

		claims, err := security.ParseSessionToken(m.sessionSecret, cookie.Value)
		if err != nil {
			http.SetCookie(w, security.CreateDeleteCookie(r))
			respondWithError(w, http.StatusUnauthorized, "Your session has expired. Please log in again.", "invalid session token", err)
			return
		}

		state := m.sessions.Get(claims.SessionID)
		if state == nil {
			http.SetCookie(w, security.CreateDeleteCookie(r))
			respondWithError(w, http.StatusUnauthorized, "Your session has expired. Please log in again.", "", nil)
			return
		}
		state.Touch()

		ctx := context.WithValue(r.Context(), SessionContextKey, state)
		ctx = context.WithValue(ctx, ParticipantContextKey, claims.ParticipantID)
		next(w, r.WithContext(ctx))
	}
}

// RequireCSRF checks the X-CSRF-Token header on state-changing requests. It
// must wrap a handler already behind RequireSession.
func (m *Middleware) RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(security.SessionCookieName)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Please log in to continue.", "", nil)
			return
		}
		claims, err := security.ParseSessionToken(m.sessionSecret, cookie.Value)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Your session has expired. Please log in again.", "", nil)
			return
		}

		token := r.Header.Get("X-CSRF-Token")
		if !m.csrf.ValidateToken(claims.SessionID, claims.ParticipantID, token) {
			respondWithError(w, http.StatusForbidden, "Invalid request token. Please reload the page.", "", nil)
			return
		}
		next(w, r)
	}
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// SessionFromContext retrieves the session state from the request context
func SessionFromContext(ctx context.Context) *service.SessionState {
	state, ok := ctx.Value(SessionContextKey).(*service.SessionState)
	if !ok {
		return nil
	}
	return state
}

// ParticipantFromContext retrieves the participant ID from the request context
func ParticipantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ParticipantContextKey).(string)
	return id
}
