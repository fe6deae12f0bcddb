package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

type contextKey string

const (
	deviceContextKey contextKey = "aegis_device"
	userContextKey   contextKey = "aegis_user"
)

// AgentIDHeader is the device-identity header every agent-authenticated
// endpoint requires (spec §6).
const AgentIDHeader = "X-Aegis-Agent-ID"

// sessionClaims are the JWT claims issued by POST /auth/login (spec §6:
// "claims {sub: email, role, user_id, exp}").
type sessionClaims struct {
	jwt.RegisteredClaims
	Role   models.Role `json:"role"`
	UserID string      `json:"user_id"`
}

func (s *Server) issueToken(u models.User, now time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:   u.Role,
		UserID: u.ID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// deviceAuth validates X-Aegis-Agent-ID against a registered Device and
// records it as online (spec §4.5 "side effects common to all"). Every C5
// ingestion route runs behind this middleware.
func (s *Server) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get(AgentIDHeader)
		if agentID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+AgentIDHeader+" header")
			return
		}

		device, ok, err := s.Store.GetDeviceByAgentID(r.Context(), agentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unregistered agent id")
			return
		}

		now := s.now()
		if err := s.Store.TouchDevice(r.Context(), agentID, now); err != nil {
			s.Logger.Warn().Err(err).Str("agent_id", agentID).Msg("httpapi: touch device failed")
		}
		device.LastSeen = now
		device.Status = models.DeviceOnline

		ctx := context.WithValue(r.Context(), deviceContextKey, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceFromContext returns the Device attached by deviceAuth.
func deviceFromContext(ctx context.Context) models.Device {
	d, _ := ctx.Value(deviceContextKey).(models.Device)
	return d
}

// sessionAuth validates the Authorization: Bearer JWT issued by
// POST /auth/login and attaches the resolved User to the request context.
// Every C8/C9/C10 route runs behind this middleware.
func (s *Server) sessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		var claims sessionClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, ok, err := s.Store.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "account disabled or missing")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext returns the User attached by sessionAuth.
func userFromContext(ctx context.Context) models.User {
	u, _ := ctx.Value(userContextKey).(models.User)
	return u
}

// requireRole rejects requests from a User whose Role is not in allowed.
func requireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "role does not permit this action")
		})
	}
}

// requestLogger logs each request at Info with the chi request ID.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With().Str("request_id", chimw.GetReqID(r.Context())).Logger()
			r = r.WithContext(reqLogger.WithContext(r.Context()))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			reqLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "aegis_http_requests_total", Help: "Total HTTP requests handled by the server."},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "aegis_http_request_duration_seconds", Help: "HTTP request latency.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

// metrics records per-route request counts and latency.
func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
