package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/triage"
)

// pinger is implemented by the real *pgxpool.Pool-backed store; readyz
// degrades gracefully (reports "unknown") against a Store without a Ping
// method.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server wires Store-backed handlers behind chi middleware groups scoped by
// spec §4.9's role predicates: unauthenticated routes, agent-authenticated
// ingestion (C5), and session-authenticated query/triage (C9/C10/C8).
type Server struct {
	router chi.Router
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time

	jwtSecret []byte
	jwtExpiry time.Duration

	// oauth2Config and oidcVerifier are nil unless WithSSO was called.
	oauth2Config *oauth2.Config
	oidcVerifier *oidc.IDTokenVerifier

	triage *triage.Machine
}

// New builds a Server with every route registered.
func New(store Store, logger zerolog.Logger, jwtSecret []byte, jwtExpiry time.Duration) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		Store:     store,
		Logger:    logger,
		Now:       time.Now,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
	s.triage = &triage.Machine{Store: store, Now: s.now}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(requestLogger(s.Logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Unauthenticated: login/signup and device registration (registration
	// authenticates via the one-time invitation token, not a session).
	s.router.Post("/auth/login", s.handleLogin)
	s.router.Post("/auth/signup", s.handleSignup)
	s.router.Post("/auth/sso/login", s.handleSSOLogin)
	s.router.Post("/auth/sso/callback", s.handleSSOCallback)
	s.router.Post("/api/device/register", s.handleDeviceRegister)

	// C5 ingestion: agent-authenticated via X-Aegis-Agent-ID.
	s.router.Group(func(r chi.Router) {
		r.Use(s.deviceAuth)
		r.Post("/api/ingest", s.handleIngestLogs)
		r.Post("/api/metrics", s.handleIngestMetric)
		r.Post("/api/processes", s.handleIngestProcesses)
		r.Post("/api/commands", s.handleIngestCommands)
		r.Post("/api/alerts", s.handleIngestAlerts)
		r.Get("/api/commands/last-sync/{agent_id}", s.handleLastCommandSync)
	})

	// C8/C9/C10: session-authenticated users, gated further per route by
	// internal/authz predicates applied inside each handler.
	s.router.Group(func(r chi.Router) {
		r.Use(s.sessionAuth)

		r.Post("/api/device/create-invitation", s.handleCreateInvitation)
		r.Get("/api/devices", s.handleListDevices)
		r.With(requireRole(models.RoleOwner)).Post("/api/devices/assign-by-pattern", s.handleAssignDevicesByPattern)

		r.Get("/api/logs", s.handleQueryLogs)
		r.Get("/api/commands", s.handleQueryCommands)
		r.Get("/api/metrics/{agent_id}", s.handleQueryMetrics)
		r.Get("/api/processes/{agent_id}", s.handleQueryProcesses)

		r.Get("/api/alerts", s.handleListAlerts)
		r.Get("/api/alerts/my-assignments", s.handleMyAssignments)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Get("/api/alerts/unassigned", s.handleUnassignedAlerts)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Get("/api/alerts/by-status/{status}", s.handleAlertsByStatus)

		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Post("/api/alerts/{id}/claim", s.handleClaim)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Put("/api/alerts/{id}/status", s.handleSetStatus)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Post("/api/alerts/{id}/escalate", s.handleEscalate)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Post("/api/alerts/{id}/comment", s.handleComment)
		r.With(requireRole(models.RoleOwner, models.RoleAdmin)).Post("/api/alerts/{id}/bulk_assign", s.handleBulkAssign)

		r.Get("/api/incidents", s.handleListIncidents)
		r.Get("/api/incidents/{id}/report.pdf", s.handleIncidentReport)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "unknown"
	code := http.StatusOK
	if p, ok := s.Store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			status = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"store": status})
}

// ServeHTTP implements http.Handler, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
