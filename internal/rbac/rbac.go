package rbac

type Role string
type Action string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

const (
	// ActionRead lists and fetches organization data.
	ActionRead Action = "read"
	// ActionWrite creates and edits tasks, activities, incidents, documents and metrics.
	ActionWrite Action = "write"
	// ActionModerate resolves incidents and removes other members' documents.
	ActionModerate Action = "moderate"
	// ActionManage owns projects, resources, equipment, members and exports.
	ActionManage Action = "manage"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionModerate || action == ActionManage
	case RoleModerator:
		return action == ActionRead || action == ActionWrite || action == ActionModerate
	case RoleUser:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleModerator, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

// Valid reports whether role names a known role.
func Valid(role string) bool {
	switch Role(role) {
	case RoleUser, RoleModerator, RoleManager, RoleAdmin:
		return true
	}
	return false
}

func rank(role Role) int {
	switch role {
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Highest returns the more privileged of the given roles.
func Highest(roles ...Role) Role {
	best := RoleUser
	for _, role := range roles {
		if rank(role) > rank(best) {
			best = role
		}
	}
	return best
}
