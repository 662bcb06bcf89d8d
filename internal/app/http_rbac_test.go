package app

import (
	"net/http"
	"testing"
)

func TestPermissionFlagsPerRole(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		role           string
		isAdmin        bool
		canManageUsers bool
		viewerOnly     bool
		assignable     int
	}{
		{role: "viewer", viewerOnly: true, assignable: 0},
		{role: "member", assignable: 1},
		{role: "admin", isAdmin: true, canManageUsers: true, assignable: 2},
		{role: "system_admin", isAdmin: true, canManageUsers: true, assignable: 3},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			email := tc.role + "@example.com"
			env.addAccount(t, email, tc.role)
			token := env.signIn(t, email)

			flags := decodeJSON(t, env.do(t, http.MethodGet, "/api/permissions", token, nil))["flags"].(map[string]any)
			if flags["role"] != tc.role || flags["isAdmin"] != tc.isAdmin ||
				flags["canManageUsers"] != tc.canManageUsers || flags["isViewerOnly"] != tc.viewerOnly {
				t.Fatalf("unexpected flags %v", flags)
			}

			roles := decodeJSON(t, env.do(t, http.MethodGet, "/api/roles/assignable", token, nil))["roles"].([]any)
			if len(roles) != tc.assignable {
				t.Fatalf("expected %d assignable roles, got %v", tc.assignable, roles)
			}
		})
	}
}

func TestPermissionChecksQuery(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, "m@example.com", "member")
	token := env.signIn(t, "m@example.com")

	payload := decodeJSON(t, env.do(t, http.MethodGet, "/api/permissions?check=content.edit,content.publish,bogus", token, nil))
	checks := payload["checks"].(map[string]any)
	if checks["content.edit"] != true || checks["content.publish"] != false || checks["bogus"] != false {
		t.Fatalf("unexpected checks %v", checks)
	}
}

func TestRouteGuards(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, "viewer@example.com", "viewer")
	env.addAccount(t, "member@example.com", "member")
	env.addAccount(t, "admin@example.com", "admin")
	viewer := env.signIn(t, "viewer@example.com")
	member := env.signIn(t, "member@example.com")
	admin := env.signIn(t, "admin@example.com")

	created := decodeJSON(t, env.do(t, http.MethodPost, "/api/documents", member, map[string]any{"title": "Guarded"}))
	id := created["document"].(map[string]any)["id"].(string)

	cases := []struct {
		name   string
		token  string
		method string
		path   string
		body   any
		status int
	}{
		{"viewer reads", viewer, http.MethodGet, "/api/documents", nil, http.StatusOK},
		{"viewer cannot create", viewer, http.MethodPost, "/api/documents", map[string]any{"title": "x"}, http.StatusForbidden},
		{"viewer cannot edit", viewer, http.MethodPatch, "/api/documents/" + id, map[string]any{"title": "x"}, http.StatusForbidden},
		{"viewer cannot summarize", viewer, http.MethodPost, "/api/summaries", map[string]any{"content": "x"}, http.StatusForbidden},
		{"viewer cannot export", viewer, http.MethodGet, "/api/documents/" + id + "/export", nil, http.StatusForbidden},
		{"member cannot publish on create", member, http.MethodPost, "/api/documents", map[string]any{"title": "x", "status": "published"}, http.StatusForbidden},
		{"member cannot publish on update", member, http.MethodPatch, "/api/documents/" + id, map[string]any{"status": "published"}, http.StatusForbidden},
		{"member cannot delete", member, http.MethodDelete, "/api/documents/" + id, nil, http.StatusForbidden},
		{"member cannot export", member, http.MethodGet, "/api/documents/" + id + "/export", nil, http.StatusForbidden},
		{"admin publishes", admin, http.MethodPatch, "/api/documents/" + id, map[string]any{"status": "published"}, http.StatusOK},
		{"admin exports", admin, http.MethodGet, "/api/documents/" + id + "/export?format=html", nil, http.StatusOK},
		{"admin deletes", admin, http.MethodDelete, "/api/documents/" + id, nil, http.StatusOK},
	}
	for _, tc := range cases {
		rr := env.do(t, tc.method, tc.path, tc.token, tc.body)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.status, rr.Code, rr.Body.String())
		}
	}
}
