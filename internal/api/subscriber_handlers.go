package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haywire-mail/relay-crm/internal/domain"
)

func (s *Server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscriber
	if !decodeJSON(w, r, &sub) {
		return
	}
	if sub.Email == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "email is required"})
		return
	}
	databaseID := chi.URLParam(r, "databaseID")
	id, err := s.store.AddSubscriber(r.Context(), databaseID, &sub)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.store.GetSubscriber(r.Context(), databaseID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.GetSubscriber(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscriber
	if !decodeJSON(w, r, &sub) {
		return
	}
	sub.ID = chi.URLParam(r, "subscriberID")
	sub.DatabaseID = chi.URLParam(r, "databaseID")
	if err := s.store.UpdateSubscriber(r.Context(), &sub); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.store.GetSubscriber(r.Context(), sub.DatabaseID, sub.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteSubscriber(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnsubscribe stamps the subscriber's unsubscribed_at. The record
// stays in the database as an inactive member. Calling it again is a no-op;
// the original timestamp is kept.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	databaseID := chi.URLParam(r, "databaseID")
	sub, err := s.store.GetSubscriber(ctx, databaseID, chi.URLParam(r, "subscriberID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sub.UnsubscribedAt == nil {
		now := time.Now().UTC()
		sub.UnsubscribedAt = &now
		if err := s.store.UpdateSubscriber(ctx, sub); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleLinkTag(w http.ResponseWriter, r *http.Request) {
	err := s.store.LinkTag(r.Context(), chi.URLParam(r, "databaseID"),
		chi.URLParam(r, "subscriberID"), chi.URLParam(r, "tagID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlinkTag(w http.ResponseWriter, r *http.Request) {
	err := s.store.UnlinkTag(r.Context(), chi.URLParam(r, "databaseID"),
		chi.URLParam(r, "subscriberID"), chi.URLParam(r, "tagID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportSubscribers accepts a CSV upload, multipart ("file" field) or
// raw body.
func (s *Server) handleImportSubscribers(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
			return
		}
		defer file.Close()
		body = file
	}

	result, err := s.importer.Import(r.Context(), chi.URLParam(r, "databaseID"), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportSubscribers(w http.ResponseWriter, r *http.Request) {
	databaseID := chi.URLParam(r, "databaseID")
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "subscribers-"+databaseID+".csv"))
	if err := s.importer.Export(r.Context(), databaseID, w); err != nil {
		// Headers are out; the truncated body is the best we can signal.
		writeError(w, err)
	}
}
