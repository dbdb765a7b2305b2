package core

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ssoware/cascade/internal/mockcas"
	"github.com/ssoware/cascade/pkg/cas"
)

// Server is the demo service provider: a small application protected by the
// CAS middleware, optionally hosting the mock CAS server under /cas.
type Server struct {
	config  *Config
	auth    *cas.Middleware
	mockCAS *mockcas.Server
	router  chi.Router
}

// NewServer creates a new server instance
func NewServer(cfg *Config, auth *cas.Middleware, mock *mockcas.Server) *Server {
	s := &Server{
		config:  cfg,
		auth:    auth,
		mockCAS: mock,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery)
	r.Use(RequestLogger)
	r.Use(SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(100, time.Minute)
	r.Use(rateLimiter.Limit)

	// Health check
	r.Get("/health", s.handleHealth)

	// Embedded mock CAS server
	if s.mockCAS != nil {
		r.Route("/cas", s.mockCAS.Routes)
	}

	// Ticket callback, single-log-out and impersonation endpoints
	s.auth.Routes(r)

	// Public pages: authentication resolved when present, never demanded
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Authenticate)
		r.Get("/", s.handleHome)
		r.Get("/logout", s.auth.SignOut)
	})

	// Protected API
	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Get("/me", s.handleMe)
	})

	s.router = r
}

// Health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: "1.0.0"})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if !cas.IsAuthenticated(r) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "not signed in",
			"login":   s.auth.Handler().Config().CallbackPath,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "signed in",
		"user":    cas.Username(r),
	})
}

// Me response for the protected API
type MeResponse struct {
	User          string            `json:"user"`
	AuthType      string            `json:"auth_type"`
	Roles         []string          `json:"roles"`
	ServiceTicket string            `json:"service_ticket,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	t, ok := cas.TicketFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No session")
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		User:          t.Principal.Name,
		AuthType:      t.Principal.AuthType,
		Roles:         t.Principal.Roles,
		ServiceTicket: t.ServiceTicket(),
		Properties:    t.Properties,
	})
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
