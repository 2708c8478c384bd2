package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haywire-mail/relay-crm/internal/domain"
)

// handleListDatabases returns all databases plus the active pointer.
func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dbs, err := s.store.ListDatabases(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	activeID, err := s.store.GetActiveDatabaseID(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if dbs == nil {
		dbs = []domain.Database{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"databases": dbs,
		"active_id": activeID,
		"total":     len(dbs),
	})
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var db domain.Database
	if !decodeJSON(w, r, &db) {
		return
	}
	if db.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "name is required"})
		return
	}
	id, err := s.store.AddDatabase(r.Context(), &db)
	if err != nil {
		writeError(w, err)
		return
	}
	db.ID = id
	writeJSON(w, http.StatusCreated, db)
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	db, err := s.store.GetDatabase(r.Context(), chi.URLParam(r, "databaseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// handleUpdateDatabase replaces the database record, company profile
// included.
func (s *Server) handleUpdateDatabase(w http.ResponseWriter, r *http.Request) {
	var db domain.Database
	if !decodeJSON(w, r, &db) {
		return
	}
	db.ID = chi.URLParam(r, "databaseID")
	if err := s.store.UpdateDatabase(r.Context(), &db); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

func (s *Server) handleDeleteDatabase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDatabase(r.Context(), chi.URLParam(r, "databaseID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateDatabase moves the active pointer. The scheduler picks up
// the change on its next tick.
func (s *Server) handleActivateDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "databaseID")
	if err := s.store.SetActiveDatabaseID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_id": id})
}

func (s *Server) handleGetActiveDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := s.store.GetActiveDatabaseID(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if id == "" {
		writeJSON(w, http.StatusOK, map[string]any{"database": nil})
		return
	}
	db, err := s.store.GetDatabase(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"database": db})
}

func (s *Server) handleGetContents(w http.ResponseWriter, r *http.Request) {
	contents, err := s.store.GetDatabaseContents(r.Context(), chi.URLParam(r, "databaseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if contents.Subscribers == nil {
		contents.Subscribers = []domain.Subscriber{}
	}
	if contents.Tags == nil {
		contents.Tags = []domain.Tag{}
	}
	if contents.Campaigns == nil {
		contents.Campaigns = []domain.Campaign{}
	}
	writeJSON(w, http.StatusOK, contents)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetDatabaseStats(r.Context(), chi.URLParam(r, "databaseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
