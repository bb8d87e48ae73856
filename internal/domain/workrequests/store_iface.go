package workrequests

import (
	"context"
	"time"

	"workforce/internal/domain/approvals"
)

type StoreAPI interface {
	Get(ctx context.Context, requestID string) (WorkRequest, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	// Create inserts the request, failing with ErrOverlappingLeave when a
	// leave request overlaps another live leave of the same user.
	Create(ctx context.Context, w WorkRequest) (WorkRequest, error)
	Delete(ctx context.Context, requestID string) error
	ApplyTransition(ctx context.Context, requestID, actorID string, t approvals.Transition) (WorkRequest, error)
	History(ctx context.Context, requestID string) ([]approvals.Entry, error)

	Documents(ctx context.Context, requestID string) ([]Document, error)
	Document(ctx context.Context, requestID, documentID string) (Document, error)
	AddDocument(ctx context.Context, doc Document) (Document, error)

	Calendar(ctx context.Context, scope CalendarScope, from, to time.Time) ([]CalendarEntry, error)
}
