package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"opsdesk/api/internal/rbac"
)

type sessionKey struct{}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log.With().Str("component", "http").Logger()}
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Post("/session", s.handleSignIn)
		r.Get("/session", s.handleSession)
		r.Delete("/session", s.handleSignOut)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/permissions", s.handlePermissions)
			r.Get("/roles/assignable", s.handleAssignableRoles)
			r.Get("/notifications", s.handleNotifications)

			r.Route("/documents", func(r chi.Router) {
				r.With(s.require(rbac.ContentView)).Get("/", s.handleListDocuments)
				r.With(s.require(rbac.ContentCreate)).Post("/", s.handleCreateDocument)
				r.Route("/{documentID}", func(r chi.Router) {
					r.With(s.require(rbac.ContentView)).Get("/", s.handleGetDocument)
					r.With(s.require(rbac.ContentEdit)).Patch("/", s.handleUpdateDocument)
					r.With(s.require(rbac.ContentDelete)).Delete("/", s.handleDeleteDocument)

					r.With(s.require(rbac.ContentView)).Get("/versions", s.handleListVersions)
					r.With(s.require(rbac.ContentEdit)).Post("/versions", s.handleCreateVersion)
					r.With(s.require(rbac.ContentEdit)).Post("/versions/{number}/restore", s.handleRestoreVersion)

					r.With(s.require(rbac.ContentEdit)).Post("/links", s.handleLinkDocument)
					r.With(s.require(rbac.ContentEdit)).Delete("/links/{linkID}", s.handleUnlinkDocument)

					r.With(s.require(rbac.ContentView)).Get("/history", s.handleHistory)
					r.With(s.require(rbac.ContentView)).Get("/history/{hash}", s.handleHistoryContent)
					r.With(s.require(rbac.ContentView, rbac.ReportsExport)).Get("/export", s.handleExport)
				})
			})

			r.With(s.require(rbac.ContentView)).Get("/search", s.handleSearch)
			r.With(s.require(rbac.ContentView)).Post("/suggestions", s.handleSuggestions)
			r.With(s.requireAny(rbac.ContentCreate, rbac.ContentEdit)).Post("/summaries", s.handleSummary)
			r.With(s.require(rbac.ContentView)).Post("/markdown/preview", s.handlePreview)
		})
	})
	return router
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mode": s.service.Mode()})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"backend": map[string]any{"status": "ok", "mode": s.service.Mode()},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["backend"] = map[string]any{
			"status": "error",
			"mode":   s.service.Mode(),
			"error":  err.Error(),
		}
	}
	if remote, err := s.service.PingCache(ctx); remote {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["cache"] = map[string]any{"status": "ok"}
		}
	}
	// Index health is informational only.
	if configured, healthy := s.service.SearchIndexHealthy(); configured {
		indexStatus := "ok"
		if !healthy {
			indexStatus = "degraded"
		}
		checks["search"] = map[string]any{"status": indexStatus}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeMappedError(w, errUnauthorized)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			s.log.Debug().Err(err).Msg("session lookup failed")
			writeMappedError(w, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

// require admits the request only when the session holds every permission.
func (s *HTTPServer) require(permissions ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r)
			if session == nil || !session.Policy.HasAllPermissions(permissions...) {
				s.forbid(w, r, permissions)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) requireAny(permissions ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r)
			if session == nil || !session.Policy.HasAnyPermission(permissions...) {
				s.forbid(w, r, permissions)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, permissions []rbac.Permission) {
	event := s.log.Info().Str("path", r.URL.Path).Interface("permissions", permissions)
	if session := sessionFrom(r); session != nil {
		event = event.Str("session_id", session.ID).Str("role", string(session.Policy.CurrentRole()))
	}
	event.Msg("permission denied")
	writeMappedError(w, errForbidden)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		started := time.Now()
		writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		status := writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

func sessionFrom(r *http.Request) *Session {
	session, _ := r.Context().Value(sessionKey{}).(*Session)
	return session
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
