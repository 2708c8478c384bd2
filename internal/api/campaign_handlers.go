package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

type campaignInput struct {
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
	Target  domain.Target `json:"target"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaignInput
	if !decodeJSON(w, r, &input) {
		return
	}
	c := &domain.Campaign{
		Subject: input.Subject,
		Body:    input.Body,
		Status:  domain.CampaignDraft,
		Target:  input.Target,
	}
	id, err := s.store.AddCampaign(r.Context(), chi.URLParam(r, "databaseID"), c)
	if err != nil {
		writeError(w, err)
		return
	}
	c.ID = id
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.Get(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateCampaign edits content fields. Delivery state is owned by the
// lifecycle actions; a campaign in flight or already sent is not editable.
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaignInput
	if !decodeJSON(w, r, &input) {
		return
	}
	ctx := r.Context()
	c, err := s.campaigns.Get(ctx,
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		writeError(w, campaign.ErrInvalidTransition)
		return
	}

	c.Subject = input.Subject
	c.Body = input.Body
	c.Target = input.Target
	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	err := s.campaigns.Delete(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEstimate previews the recipient count for an arbitrary target
// without touching any campaign.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Target domain.Target `json:"target"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	n, err := s.campaigns.Estimate(r.Context(), chi.URLParam(r, "databaseID"), input.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recipient_count": n})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	ctx := r.Context()
	databaseID := chi.URLParam(r, "databaseID")
	id := chi.URLParam(r, "campaignID")
	if err := s.campaigns.Schedule(ctx, databaseID, id, input.ScheduledAt); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.campaigns.Get(ctx, databaseID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	databaseID := chi.URLParam(r, "databaseID")
	id := chi.URLParam(r, "campaignID")
	if err := s.campaigns.Unschedule(ctx, databaseID, id); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.campaigns.Get(ctx, databaseID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	databaseID := chi.URLParam(r, "databaseID")
	id := chi.URLParam(r, "campaignID")
	n, err := s.campaigns.Send(ctx, databaseID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.campaigns.Get(ctx, databaseID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign":        c,
		"recipient_count": n,
	})
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	clone, err := s.campaigns.Duplicate(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}

func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var input struct {
		TestTagID string `json:"test_tag_id"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.TestTagID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "test_tag_id is required"})
		return
	}
	test, err := s.campaigns.TestSend(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "campaignID"), input.TestTagID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}
