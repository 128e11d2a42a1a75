package auth

import "context"

// Action names the CRUD capabilities a permission entry can grant.
type Action string

const (
	ActionViewAny Action = "view_any"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

// PermissionItem mirrors one entry of the flat permission map carried in the
// token: a dotted "group.key" resolves to per-action booleans.
type PermissionItem struct {
	CanViewAny bool `json:"can_view_any"`
	CanView    bool `json:"can_view"`
	CanCreate  bool `json:"can_create"`
	CanUpdate  bool `json:"can_update"`
	CanDelete  bool `json:"can_delete"`
}

// Permissions maps "group.key" to its capability flags. A missing key means
// no access.
type Permissions map[string]PermissionItem

// Allows reports whether the given permission key grants the action.
func (p Permissions) Allows(key string, action Action) bool {
	item, ok := p[key]
	if !ok {
		return false
	}
	switch action {
	case ActionViewAny:
		return item.CanViewAny
	case ActionView:
		return item.CanView || item.CanViewAny
	case ActionCreate:
		return item.CanCreate
	case ActionUpdate:
		return item.CanUpdate
	case ActionDelete:
		return item.CanDelete
	default:
		return false
	}
}

type permissionsKey struct{}

// WithPermissions stores the verified permission map on the context.
func WithPermissions(ctx context.Context, perms Permissions) context.Context {
	return context.WithValue(ctx, permissionsKey{}, perms)
}

// PermissionsFromContext returns the permission map attached by RequireAuth.
func PermissionsFromContext(ctx context.Context) (Permissions, bool) {
	perms, ok := ctx.Value(permissionsKey{}).(Permissions)
	return perms, ok
}
