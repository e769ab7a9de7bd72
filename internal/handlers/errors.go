package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"plstudy/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	writeJSON(w, status, errorResponse{Error: userMsg})
}

// respondWithServiceError maps the service error taxonomy onto HTTP status
// codes. Validation failures carry the participant-facing message verbatim;
// upstream and integrity failures hide the detail behind a generic message
// and log the cause.
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: vErr.Reason, Field: vErr.Field})
		return
	}

	var extErr *service.ExternalError
	if errors.As(err, &extErr) {
		log.Printf("%s: %v", logMsg, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: "The assistant is temporarily unavailable. Please try again.",
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotApproved):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "This ID is not on the participant list for this study."})
	case errors.Is(err, service.ErrNoAssignments):
		log.Printf("%s: %v", logMsg, err)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "No study materials are assigned to this ID. Please contact the research team."})
	case errors.Is(err, service.ErrBatchLocked):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "This part of the study is locked. Enter the passcode to continue."})
	case errors.Is(err, service.ErrStudyCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "You have already completed the study."})
	default:
		// IntegrityError and anything unclassified.
		log.Printf("%s: %v", logMsg, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Something went wrong on our side. Please contact the research team."})
	}
}
