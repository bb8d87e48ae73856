package allocations

import (
	"context"
	"time"
)

type StoreAPI interface {
	Get(ctx context.Context, allocationID string) (Allocation, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	Create(ctx context.Context, a Allocation) (Allocation, error)
	Update(ctx context.Context, a Allocation) (Allocation, error)
	Delete(ctx context.Context, allocationID string) error
	ForUsersInRange(ctx context.Context, userIDs []string, from, to time.Time) ([]Allocation, error)
	ExpirePast(ctx context.Context, today time.Time) ([]Allocation, error)
}
