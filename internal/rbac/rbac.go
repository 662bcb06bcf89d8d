// Package rbac answers what the current actor may do. It holds no state of
// its own; every answer is recomputed from the active profile.
package rbac

import (
	"strings"

	"opsdesk/api/internal/store"
)

type Role string
type Permission string

const (
	RoleViewer      Role = "viewer"
	RoleMember      Role = "member"
	RoleAdmin       Role = "admin"
	RoleSystemAdmin Role = "system_admin"
)

const (
	UsersView        Permission = "users.view"
	UsersCreate      Permission = "users.create"
	UsersEdit        Permission = "users.edit"
	UsersDelete      Permission = "users.delete"
	UsersManageRoles Permission = "users.manage_roles"

	TasksView   Permission = "tasks.view"
	TasksCreate Permission = "tasks.create"
	TasksEdit   Permission = "tasks.edit"
	TasksDelete Permission = "tasks.delete"
	TasksAssign Permission = "tasks.assign"

	ContentView    Permission = "content.view"
	ContentCreate  Permission = "content.create"
	ContentEdit    Permission = "content.edit"
	ContentDelete  Permission = "content.delete"
	ContentPublish Permission = "content.publish"

	StrategyView Permission = "strategy.view"
	StrategyEdit Permission = "strategy.edit"

	ReportsView   Permission = "reports.view"
	ReportsExport Permission = "reports.export"

	SystemSettings   Permission = "system.settings"
	SystemMonitoring Permission = "system.monitoring"
	SystemAudit      Permission = "system.audit"
)

var allPermissions = []Permission{
	UsersView, UsersCreate, UsersEdit, UsersDelete, UsersManageRoles,
	TasksView, TasksCreate, TasksEdit, TasksDelete, TasksAssign,
	ContentView, ContentCreate, ContentEdit, ContentDelete, ContentPublish,
	StrategyView, StrategyEdit,
	ReportsView, ReportsExport,
	SystemSettings, SystemMonitoring, SystemAudit,
}

// Grants are literal lists; a test keeps them monotonic in role level.
var grants = map[Role][]Permission{
	RoleViewer: {
		TasksView, ContentView, StrategyView, ReportsView,
	},
	RoleMember: {
		TasksView, ContentView, StrategyView, ReportsView,
		UsersView, TasksCreate, TasksEdit, ContentCreate, ContentEdit,
	},
	RoleAdmin: {
		TasksView, ContentView, StrategyView, ReportsView,
		UsersView, TasksCreate, TasksEdit, ContentCreate, ContentEdit,
		UsersCreate, UsersEdit, UsersManageRoles,
		TasksDelete, TasksAssign,
		ContentDelete, ContentPublish,
		StrategyEdit, ReportsExport, SystemMonitoring,
	},
	RoleSystemAdmin: allPermissions,
}

var levels = map[Role]int{
	RoleViewer:      10,
	RoleMember:      20,
	RoleAdmin:       50,
	RoleSystemAdmin: 100,
}

var labels = map[Role]string{
	RoleViewer:      "Viewer",
	RoleMember:      "Member",
	RoleAdmin:       "Administrator",
	RoleSystemAdmin: "System Administrator",
}

// Roles lists every role from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleMember, RoleAdmin, RoleSystemAdmin}
}

func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

func (r Role) Valid() bool {
	_, ok := levels[r]
	return ok
}

// Level is 0 for unknown roles.
func (r Role) Level() int {
	return levels[r]
}

func (r Role) Label() string {
	if label, ok := labels[r]; ok {
		return label
	}
	return string(r)
}

func PermissionsFor(role Role) []Permission {
	return append([]Permission(nil), grants[role]...)
}

func Can(role Role, permission Permission) bool {
	for _, granted := range grants[role] {
		if granted == permission {
			return true
		}
	}
	return false
}

// NormalizeRole maps a free-form role string onto a Role. Empty input is
// viewer while unrecognized input is member.
func NormalizeRole(raw string) Role {
	if strings.TrimSpace(raw) == "" {
		return RoleViewer
	}
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case strings.Contains(cleaned, "system") && strings.Contains(cleaned, "admin"):
		return RoleSystemAdmin
	case cleaned == "admin" || cleaned == "administrator":
		return RoleAdmin
	case cleaned == "member" || cleaned == "user":
		return RoleMember
	case cleaned == "viewer" || cleaned == "guest":
		return RoleViewer
	case Role(cleaned).Valid():
		return Role(cleaned)
	default:
		return RoleMember
	}
}

func RoleLabel(raw string) string {
	return NormalizeRole(raw).Label()
}

// AssignableRoles returns the roles strictly below role's level.
func AssignableRoles(role Role) []Role {
	var out []Role
	for _, candidate := range Roles() {
		if candidate.Level() < role.Level() {
			out = append(out, candidate)
		}
	}
	return out
}

type ProfileSource interface {
	ActiveProfile() (store.Profile, bool)
}

// Policy answers capability queries for whoever source reports as active.
type Policy struct {
	source ProfileSource
}

func NewPolicy(source ProfileSource) Policy {
	return Policy{source: source}
}

func (p Policy) CurrentRole() Role {
	if p.source == nil {
		return RoleViewer
	}
	profile, ok := p.source.ActiveProfile()
	if !ok || !profile.Active {
		return RoleViewer
	}
	return NormalizeRole(profile.Role)
}

func (p Policy) HasPermission(permission Permission) bool {
	return Can(p.CurrentRole(), permission)
}

func (p Policy) HasAnyPermission(permissions ...Permission) bool {
	role := p.CurrentRole()
	for _, permission := range permissions {
		if Can(role, permission) {
			return true
		}
	}
	return false
}

func (p Policy) HasAllPermissions(permissions ...Permission) bool {
	role := p.CurrentRole()
	for _, permission := range permissions {
		if !Can(role, permission) {
			return false
		}
	}
	return true
}

func (p Policy) IsSystemAdmin() bool { return p.CurrentRole() == RoleSystemAdmin }
func (p Policy) IsAdmin() bool       { return p.CurrentRole().Level() >= RoleAdmin.Level() }
func (p Policy) CanManageUsers() bool {
	return p.HasPermission(UsersManageRoles)
}
func (p Policy) CanEdit() bool {
	return p.HasAnyPermission(TasksEdit, ContentEdit)
}
func (p Policy) IsViewerOnly() bool { return p.CurrentRole() == RoleViewer }

func (p Policy) GetAssignableRoles() []Role {
	return AssignableRoles(p.CurrentRole())
}

// Flags is the snapshot of derived booleans the UI renders from.
type Flags struct {
	Role           Role         `json:"role"`
	RoleLabel      string       `json:"roleLabel"`
	Permissions    []Permission `json:"permissions"`
	IsSystemAdmin  bool         `json:"isSystemAdmin"`
	IsAdmin        bool         `json:"isAdmin"`
	CanManageUsers bool         `json:"canManageUsers"`
	CanEdit        bool         `json:"canEdit"`
	IsViewerOnly   bool         `json:"isViewerOnly"`
}

func (p Policy) Flags() Flags {
	role := p.CurrentRole()
	return Flags{
		Role:           role,
		RoleLabel:      role.Label(),
		Permissions:    PermissionsFor(role),
		IsSystemAdmin:  role == RoleSystemAdmin,
		IsAdmin:        role.Level() >= RoleAdmin.Level(),
		CanManageUsers: Can(role, UsersManageRoles),
		CanEdit:        Can(role, TasksEdit) || Can(role, ContentEdit),
		IsViewerOnly:   role == RoleViewer,
	}
}
