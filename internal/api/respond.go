package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/haywire-mail/relay-crm/internal/importer"
	"github.com/haywire-mail/relay-crm/internal/repository"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// writeError maps service and repository sentinels onto HTTP statuses.
// Validation failures are 422 so the UI can show the message verbatim;
// conflicts (duplicate email, send already running) are 409.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, campaign.ErrEmptySubject),
		errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrScheduleInPast),
		errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrMissingEmailColumn):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, campaign.ErrSendInProgress),
		errors.Is(err, campaign.ErrAlreadySent),
		errors.Is(err, repository.ErrDuplicateEmail),
		errors.Is(err, repository.ErrDuplicateName):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}
