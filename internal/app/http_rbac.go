package app

import (
	"net/http"
	"strings"

	"opsdesk/api/internal/rbac"
)

type roleOption struct {
	Value rbac.Role `json:"value"`
	Label string    `json:"label"`
	Level int       `json:"level"`
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":       token,
		"expiresAt":   session.ExpiresAt,
		"profile":     session.Profile(),
		"permissions": session.Policy.Flags(),
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "profile": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "profile": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"profile":       session.Profile(),
		"permissions":   session.Policy.Flags(),
		"mode":          session.Workflow.Mode(),
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			s.service.Logout(r.Context(), session)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePermissions(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	flags := session.Policy.Flags()
	if raw := strings.TrimSpace(r.URL.Query().Get("check")); raw != "" {
		checks := map[string]bool{}
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				checks[name] = session.Policy.HasPermission(rbac.Permission(name))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"flags": flags, "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

func (s *HTTPServer) handleAssignableRoles(w http.ResponseWriter, r *http.Request) {
	roles := sessionFrom(r).Policy.GetAssignableRoles()
	items := make([]roleOption, 0, len(roles))
	for _, role := range roles {
		items = append(items, roleOption{Value: role, Label: role.Label(), Level: role.Level()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": items})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notifications": sessionFrom(r).Feed.Drain()})
}
