package auth

import "context"

const (
	PermUsersRead        = "users.read"
	PermUsersWrite       = "users.write"
	PermProjectsRead     = "projects.read"
	PermProjectsWrite    = "projects.write"
	PermAllocationsRead  = "allocations.read"
	PermAllocationsWrite = "allocations.write"
	PermRequestsRead     = "requests.read"
	PermRequestsWrite    = "requests.write"
	PermRequestsApprove  = "requests.approve"
	PermTasksRead        = "tasks.read"
	PermTasksWrite       = "tasks.write"
	PermSkillsRead       = "skills.read"
	PermSkillsWrite      = "skills.write"
	PermEventsRead       = "events.read"
	PermEventsWrite      = "events.write"
	PermReportsRead      = "reports.read"
	PermAuditRead        = "audit.read"
	PermSystemAdmin      = "admin.system"
)

var DefaultPermissions = []string{
	PermUsersRead,
	PermUsersWrite,
	PermProjectsRead,
	PermProjectsWrite,
	PermAllocationsRead,
	PermAllocationsWrite,
	PermRequestsRead,
	PermRequestsWrite,
	PermRequestsApprove,
	PermTasksRead,
	PermTasksWrite,
	PermSkillsRead,
	PermSkillsWrite,
	PermEventsRead,
	PermEventsWrite,
	PermReportsRead,
	PermAuditRead,
	PermSystemAdmin,
}

var employeePermissions = []string{
	PermUsersRead,
	PermProjectsRead,
	PermAllocationsRead,
	PermRequestsRead,
	PermRequestsWrite,
	PermTasksRead,
	PermTasksWrite,
	PermSkillsRead,
	PermSkillsWrite,
	PermEventsRead,
	PermEventsWrite,
}

var RolePermissions = map[string][]string{
	RoleEmployee: employeePermissions,
	RoleLineManager: append(append([]string{}, employeePermissions...),
		PermRequestsApprove,
		PermReportsRead,
	),
	RolePM: append(append([]string{}, employeePermissions...),
		PermProjectsWrite,
		PermAllocationsWrite,
		PermReportsRead,
	),
	RoleHR: append(append([]string{}, employeePermissions...),
		PermUsersWrite,
		PermAllocationsWrite,
		PermRequestsApprove,
		PermReportsRead,
		PermAuditRead,
	),
	RoleAdmin: DefaultPermissions,
}

func IsKnownPermission(perm string) bool {
	for _, candidate := range DefaultPermissions {
		if candidate == perm {
			return true
		}
	}
	return false
}

// StaticPermissions answers permission checks from RolePermissions without a
// database. Used by tests and as a fallback before seeding.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
