package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/mundstockGG/dreamlet/internal/config"
	"github.com/mundstockGG/dreamlet/internal/database"
	"github.com/mundstockGG/dreamlet/internal/server"
	"github.com/mundstockGG/dreamlet/internal/stats"
	"github.com/teris-io/shortid"
)

type DreamletApp struct {
	log            *log.Logger
	db             database.DreamletRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string

	// swappable in tests
	generateShortId func() (string, error)
}

func NewDreamletApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.DreamletRepository, sp stats.StatsProvider, cfg *config.Config) *DreamletApp {
	s := &DreamletApp{
		log:             logger,
		db:              db,
		cs:              cs,
		stats:           sp,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))

	mux.Handle("POST /api/environments", s.authMiddleware(s.createEnvironment))
	mux.Handle("GET /api/environments", s.authMiddleware(s.listEnvironments))
	mux.Handle("GET /api/environments/{id}", s.authMiddleware(s.getEnvironment))
	mux.Handle("DELETE /api/environments/{id}", s.authMiddleware(s.deleteEnvironment))
	mux.Handle("PUT /api/environments/{id}/lock", s.authMiddleware(s.lockEnvironment))
	mux.Handle("POST /api/environments/join", s.authMiddleware(s.joinEnvironment))
	mux.Handle("POST /api/environments/{id}/leave", s.authMiddleware(s.leaveEnvironment))

	mux.Handle("GET /api/environments/{id}/members", s.authMiddleware(s.listMembers))
	mux.Handle("POST /api/environments/{id}/members/{userId}/promote", s.authMiddleware(s.promoteMember))
	mux.Handle("POST /api/environments/{id}/members/{userId}/kick", s.authMiddleware(s.kickMember))
	mux.Handle("POST /api/environments/{id}/members/{userId}/ban", s.authMiddleware(s.banMember))
	mux.Handle("POST /api/environments/{id}/members/{userId}/mute", s.authMiddleware(s.toggleMuteMember))

	mux.Handle("POST /api/environments/{id}/places", s.authMiddleware(s.createPlace))
	mux.Handle("GET /api/environments/{id}/places", s.authMiddleware(s.listPlaces))
	mux.Handle("PUT /api/places/{id}", s.authMiddleware(s.updatePlace))
	mux.Handle("PUT /api/places/{id}/lock", s.authMiddleware(s.lockPlace))
	mux.Handle("DELETE /api/places/{id}", s.authMiddleware(s.deletePlace))

	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *DreamletApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *DreamletApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
