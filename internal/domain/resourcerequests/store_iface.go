package resourcerequests

import (
	"context"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/approvals"
)

type StoreAPI interface {
	Get(ctx context.Context, requestID string) (ResourceRequest, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	Create(ctx context.Context, r ResourceRequest) (ResourceRequest, error)
	// ApplyTransition persists t and its history row atomically. When alloc
	// is non-nil the allocation is created in the same transaction.
	ApplyTransition(ctx context.Context, requestID, actorID string, t approvals.Transition, alloc *allocations.Allocation) (ResourceRequest, error)
	History(ctx context.Context, requestID string) ([]approvals.Entry, error)
}
