package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/integrityx/forensics/internal/auth"
	"github.com/integrityx/forensics/internal/diff"
	"github.com/integrityx/forensics/internal/fingerprint"
	"github.com/integrityx/forensics/internal/ledger"
	"github.com/integrityx/forensics/internal/patterns"
	"github.com/integrityx/forensics/internal/storage"
	"github.com/integrityx/forensics/internal/timeline"
)

// ServerConfig carries the external wiring for the API server.
type ServerConfig struct {
	DB        *sql.DB
	JWTSecret string
	Ledger    ledger.Ledger
}

type Server struct {
	router *chi.Mux

	authService auth.Service
	documents   storage.DocumentRepository
	events      storage.EventRepository
	prints      storage.FingerprintRepository
	ledger      ledger.Ledger

	diffEngine *diff.Engine
	fpEngine   *fingerprint.Engine
	analyzer   *timeline.Analyzer
	detector   *patterns.Detector
}

func NewServer(cfg ServerConfig) (*Server, error) {
	diffEngine, err := diff.NewEngine(diff.DefaultConfig())
	if err != nil {
		return nil, err
	}
	fpEngine, err := fingerprint.NewEngine(fingerprint.DefaultConfig())
	if err != nil {
		return nil, err
	}
	analyzer, err := timeline.NewAnalyzer(timeline.DefaultConfig())
	if err != nil {
		return nil, err
	}
	detector, err := patterns.NewDetector(patterns.DefaultConfig())
	if err != nil {
		return nil, err
	}

	authConfig := auth.DefaultConfig()
	if cfg.JWTSecret != "" {
		authConfig.SecretKey = cfg.JWTSecret
	}

	ldg := cfg.Ledger
	if ldg == nil {
		ldg = ledger.NewNoopLedger()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router:      r,
		authService: auth.NewJWTService(authConfig, auth.NewPostgresRepository(cfg.DB)),
		documents:   storage.NewPostgresDocumentRepository(cfg.DB),
		events:      storage.NewPostgresEventRepository(cfg.DB),
		prints:      storage.NewPostgresFingerprintRepository(cfg.DB),
		ledger:      ldg,
		diffEngine:  diffEngine,
		fpEngine:    fpEngine,
		analyzer:    analyzer,
		detector:    detector,
	}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.authService))

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", s.handleIngestDocument)
				r.Get("/", s.handleListDocuments)
				r.Get("/{documentID}", s.handleGetDocument)

				r.Post("/{documentID}/events", s.handleRecordEvent)
				r.Get("/{documentID}/events", s.handleListEvents)
				r.Get("/{documentID}/timeline", s.handleTimeline)

				r.Get("/{documentID}/fingerprint", s.handleGetFingerprint)
				r.Get("/{documentID}/similar", s.handleFindSimilar)

				r.Post("/{documentID}/seal", s.handleSealDocument)
				r.Get("/{documentID}/verify", s.handleVerifyDocument)
			})

			r.Post("/diff", s.handleDiff)
			r.Post("/patterns/scan", s.handlePatternScan)
		})
	})
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
