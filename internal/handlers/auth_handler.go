package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"plstudy/internal/security"
	"plstudy/internal/service"
	"plstudy/internal/validation"
)

// AuthHandler handles participant login and logout.
type AuthHandler struct {
	enroll          *service.EnrollService
	sessions        *service.SessionService
	csrf            *security.CSRFGenerator
	limiter         *security.LoginLimiter
	sessionSecret   string
	sessionDuration time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(enroll *service.EnrollService, sessions *service.SessionService, csrf *security.CSRFGenerator, limiter *security.LoginLimiter, sessionSecret string, sessionDuration time.Duration) *AuthHandler {
	return &AuthHandler{
		enroll:          enroll,
		sessions:        sessions,
		csrf:            csrf,
		limiter:         limiter,
		sessionSecret:   sessionSecret,
		sessionDuration: sessionDuration,
	}
}

type loginRequest struct {
	ParticipantID string `json:"participant_id"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

type loginResponse struct {
	ParticipantID string `json:"participant_id"`
	CSRFToken     string `json:"csrf_token"`
	Returning     bool   `json:"returning"`
}

// Login checks the participant against the approved roster, creating the
// study record on first contact, and issues the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := security.GetClientIP(r)
	if !h.limiter.Allow(ip) {
		respondWithError(w, http.StatusTooManyRequests, "Too many login attempts. Please wait a moment.", "", nil)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.", "decoding login request", err)
		return
	}

	id := validation.NormalizeParticipantID(req.ParticipantID)
	if err := validation.ValidateParticipantID(id); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), "", nil)
		return
	}
	if !req.AcceptedTerms {
		respondWithError(w, http.StatusUnprocessableEntity, "Please accept the consent terms to participate.", "", nil)
		return
	}

	rec, returning, err := h.enroll.Enroll(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, "enrolling participant", err)
		return
	}

	sessionID := h.sessions.Create(rec.ParticipantID)
	token, err := security.SignSessionToken(h.sessionSecret, sessionID, rec.ParticipantID, h.sessionDuration)
	if err != nil {
		h.sessions.Delete(sessionID)
		respondWithError(w, http.StatusInternalServerError, "Something went wrong on our side.", "signing session token", err)
		return
	}
	csrfToken, err := h.csrf.GenerateToken(sessionID, rec.ParticipantID)
	if err != nil {
		h.sessions.Delete(sessionID)
		respondWithError(w, http.StatusInternalServerError, "Something went wrong on our side.", "generating CSRF token", err)
		return
	}

	h.limiter.Reset(ip)
	http.SetCookie(w, security.CreateSessionCookie(r, token, time.Now().Add(h.sessionDuration)))
	log.Printf("Participant %s logged in (returning=%t)", rec.ParticipantID, returning)

	writeJSON(w, http.StatusOK, loginResponse{
		ParticipantID: rec.ParticipantID,
		CSRFToken:     csrfToken,
		Returning:     returning,
	})
}

// Logout flushes the resume pointer and drops the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(security.SessionCookieName); err == nil {
		if claims, err := security.ParseSessionToken(h.sessionSecret, cookie.Value); err == nil {
			if ep, err := h.sessions.Enter(r.Context(), claims.ParticipantID); err == nil && ep.Unit != nil {
				if lerr := h.sessions.Leave(r.Context(), ep.Record, ep.Locator, ep.Unit.Stage); lerr != nil {
					log.Printf("Error saving resume pointer for %s: %v", claims.ParticipantID, lerr)
				}
			}
			h.sessions.Delete(claims.SessionID)
		}
	}

	http.SetCookie(w, security.CreateDeleteCookie(r))
	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}
