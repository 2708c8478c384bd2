package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haywire-mail/relay-crm/internal/domain"
)

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var tag domain.Tag
	if !decodeJSON(w, r, &tag) {
		return
	}
	if tag.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "name is required"})
		return
	}
	id, err := s.store.AddTag(r.Context(), chi.URLParam(r, "databaseID"), &tag)
	if err != nil {
		writeError(w, err)
		return
	}
	tag.ID = id
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	var tag domain.Tag
	if !decodeJSON(w, r, &tag) {
		return
	}
	tag.ID = chi.URLParam(r, "tagID")
	tag.DatabaseID = chi.URLParam(r, "databaseID")
	if err := s.store.UpdateTag(r.Context(), &tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// handleDeleteTag removes the tag and its subscriber links. Campaign targets
// referencing the tag keep the id and simply stop matching.
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteTag(r.Context(),
		chi.URLParam(r, "databaseID"), chi.URLParam(r, "tagID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
