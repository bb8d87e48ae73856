package tasks

import (
	"context"
	"time"
)

type StoreAPI interface {
	Get(ctx context.Context, taskID string) (Task, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	Create(ctx context.Context, t Task) (Task, error)
	Save(ctx context.Context, t Task) (Task, error)
	Delete(ctx context.Context, taskID string) error
	// IsAllocated reports whether userID has an active allocation on
	// projectID that has not ended before day.
	IsAllocated(ctx context.Context, userID, projectID string, day time.Time) (bool, error)
	// DueForReminder returns open, assigned tasks due on or before until that
	// were not reminded on today.
	DueForReminder(ctx context.Context, today, until time.Time) ([]Task, error)
	MarkReminded(ctx context.Context, taskIDs []string, today time.Time) error
}
