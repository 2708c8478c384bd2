// Package api exposes the admin HTTP surface: databases, subscribers, tags,
// and campaigns, plus the campaign lifecycle actions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/importer"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
)

// Store is the full persistence surface the HTTP handlers need. Both the
// Postgres store and the in-memory store satisfy it.
type Store interface {
	ListDatabases(ctx context.Context) ([]domain.Database, error)
	GetDatabase(ctx context.Context, id string) (*domain.Database, error)
	AddDatabase(ctx context.Context, db *domain.Database) (string, error)
	UpdateDatabase(ctx context.Context, db *domain.Database) error
	DeleteDatabase(ctx context.Context, id string) error
	GetActiveDatabaseID(ctx context.Context) (string, error)
	SetActiveDatabaseID(ctx context.Context, id string) error
	GetDatabaseContents(ctx context.Context, databaseID string) (*domain.DatabaseContents, error)
	GetDatabaseStats(ctx context.Context, databaseID string) (*domain.DatabaseStats, error)

	GetSubscriber(ctx context.Context, databaseID, id string) (*domain.Subscriber, error)
	AddSubscriber(ctx context.Context, databaseID string, sub *domain.Subscriber) (string, error)
	UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error
	DeleteSubscriber(ctx context.Context, databaseID, id string) error
	LinkTag(ctx context.Context, databaseID, subscriberID, tagID string) error
	UnlinkTag(ctx context.Context, databaseID, subscriberID, tagID string) error

	AddTag(ctx context.Context, databaseID string, tag *domain.Tag) (string, error)
	UpdateTag(ctx context.Context, tag *domain.Tag) error
	DeleteTag(ctx context.Context, databaseID, id string) error

	GetCampaign(ctx context.Context, databaseID, id string) (*domain.Campaign, error)
	AddCampaign(ctx context.Context, databaseID string, c *domain.Campaign) (string, error)
	UpdateCampaign(ctx context.Context, c *domain.Campaign) error
}

// Server is the admin API server.
type Server struct {
	store     Store
	campaigns *campaign.Service
	importer  *importer.Importer
	handler   http.Handler
	server    *http.Server
}

// NewServer wires handlers and routes.
func NewServer(store Store, campaigns *campaign.Service, imp *importer.Importer) *Server {
	s := &Server{store: store, campaigns: campaigns, importer: imp}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/databases", func(r chi.Router) {
			r.Get("/", s.handleListDatabases)
			r.Post("/", s.handleCreateDatabase)
			r.Get("/active", s.handleGetActiveDatabase)

			r.Route("/{databaseID}", func(r chi.Router) {
				r.Get("/", s.handleGetDatabase)
				r.Put("/", s.handleUpdateDatabase)
				r.Delete("/", s.handleDeleteDatabase)
				r.Post("/activate", s.handleActivateDatabase)
				r.Get("/contents", s.handleGetContents)
				r.Get("/stats", s.handleGetStats)

				r.Route("/subscribers", func(r chi.Router) {
					r.Post("/", s.handleCreateSubscriber)
					r.Post("/import", s.handleImportSubscribers)
					r.Get("/export", s.handleExportSubscribers)
					r.Route("/{subscriberID}", func(r chi.Router) {
						r.Get("/", s.handleGetSubscriber)
						r.Put("/", s.handleUpdateSubscriber)
						r.Delete("/", s.handleDeleteSubscriber)
						r.Post("/unsubscribe", s.handleUnsubscribe)
						r.Post("/tags/{tagID}", s.handleLinkTag)
						r.Delete("/tags/{tagID}", s.handleUnlinkTag)
					})
				})

				r.Route("/tags", func(r chi.Router) {
					r.Post("/", s.handleCreateTag)
					r.Put("/{tagID}", s.handleUpdateTag)
					r.Delete("/{tagID}", s.handleDeleteTag)
				})

				r.Route("/campaigns", func(r chi.Router) {
					r.Post("/", s.handleCreateCampaign)
					r.Post("/estimate", s.handleEstimate)
					r.Route("/{campaignID}", func(r chi.Router) {
						r.Get("/", s.handleGetCampaign)
						r.Put("/", s.handleUpdateCampaign)
						r.Delete("/", s.handleDeleteCampaign)
						r.Post("/schedule", s.handleSchedule)
						r.Post("/unschedule", s.handleUnschedule)
						r.Post("/send", s.handleSend)
						r.Post("/duplicate", s.handleDuplicate)
						r.Post("/test-send", s.handleTestSend)
					})
				})
			})
		})
	})

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
