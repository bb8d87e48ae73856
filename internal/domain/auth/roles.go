package auth

const (
	RoleEmployee    = "employee"
	RoleLineManager = "line_manager"
	RolePM          = "pm"
	RoleHR          = "hr"
	RoleAdmin       = "admin"
)

var Roles = []string{RoleEmployee, RoleLineManager, RolePM, RoleHR, RoleAdmin}

func IsValidRole(role string) bool {
	for _, candidate := range Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// CanManageReports reports whether a user with role may be set as someone's
// line manager.
func CanManageReports(role string) bool {
	return role == RoleLineManager || role == RoleHR || role == RoleAdmin
}

// UserContext is the authenticated caller attached to a request context.
type UserContext struct {
	UserID    string
	RoleName  string
	SessionID string
}

func (u UserContext) IsAdmin() bool { return u.RoleName == RoleAdmin }

func (u UserContext) IsHR() bool { return u.RoleName == RoleHR }

// HasAnyRole is true when the user is admin or holds one of roles.
func (u UserContext) HasAnyRole(roles ...string) bool {
	if u.IsAdmin() {
		return true
	}
	for _, role := range roles {
		if u.RoleName == role {
			return true
		}
	}
	return false
}
