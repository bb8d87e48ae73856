package reports

import (
	"context"
	"time"
)

type StoreAPI interface {
	// Counts loads the dashboard figures relevant to role.
	Counts(ctx context.Context, userID, role string, today time.Time) (Counts, error)
	// ActiveUsers lists active users, restricted to direct reports of
	// managerID when it is set.
	ActiveUsers(ctx context.Context, managerID string) ([]UserRow, error)
	LeaveRows(ctx context.Context, managerID string, from, to time.Time) ([]LeaveRow, error)
}
