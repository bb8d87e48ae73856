package reports

import "workforce/internal/domain/auth"

func EmployeeDashboard(c Counts) map[string]any {
	return map[string]any{
		"myOpenTasks":         c.MyOpenTasks,
		"myPendingRequests":   c.MyPendingRequests,
		"myUpcomingLeaveDays": c.MyUpcomingLeaveDays,
	}
}

func ManagerDashboard(c Counts) map[string]any {
	return map[string]any{
		"teamSize":         c.TeamSize,
		"pendingApprovals": c.TeamPendingLM,
		"teamOnLeaveToday": c.TeamOnLeaveToday,
	}
}

func ProjectDashboard(c Counts) map[string]any {
	return map[string]any{
		"activeProjects":          c.ManagedProjects,
		"openTasks":               c.ManagedOpenTasks,
		"pendingResourceRequests": c.MyResourceRequests,
	}
}

func HRDashboard(c Counts) map[string]any {
	return map[string]any{
		"pendingApprovals": c.PendingHR,
		"activeUsers":      c.ActiveUsers,
		"onLeaveToday":     c.OnLeaveToday,
	}
}

func AdminDashboard(c Counts) map[string]any {
	return map[string]any{
		"activeUsers":     c.ActiveUsers,
		"activeProjects":  c.ActiveProjects,
		"pendingRequests": c.PendingRequests,
		"onLeaveToday":    c.OnLeaveToday,
	}
}

// BuildDashboard assembles the sections visible to role. Every role gets the
// personal section.
func BuildDashboard(role string, c Counts) Dashboard {
	sections := map[string]any{"me": EmployeeDashboard(c)}
	switch role {
	case auth.RoleLineManager:
		sections["team"] = ManagerDashboard(c)
	case auth.RolePM:
		sections["projects"] = ProjectDashboard(c)
	case auth.RoleHR:
		sections["team"] = ManagerDashboard(c)
		sections["hr"] = HRDashboard(c)
	case auth.RoleAdmin:
		sections["admin"] = AdminDashboard(c)
		sections["hr"] = HRDashboard(c)
	}
	return Dashboard{Role: role, Sections: sections}
}
