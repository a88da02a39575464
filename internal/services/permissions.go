package services

// Roles ordered by privilege. Researchers own their sessions; admins
// additionally see soft-deleted sessions.
const (
	RoleAdmin      = "admin"
	RoleResearcher = "researcher"
	RoleViewer     = "viewer"
)

const (
	ActionRead        = "read"
	ActionRename      = "rename"
	ActionDelete      = "delete"
	ActionViewDeleted = "view_deleted"
)

// CanSession is the session-level permission matrix consulted by the
// API layer. Ownership checks happen separately; this only gates what
// a role may ever do.
func CanSession(role, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleResearcher:
		switch action {
		case ActionRead, ActionRename, ActionDelete:
			return true
		}
	case RoleViewer:
		return action == ActionRead
	}
	return false
}
