package events

import "context"

type StoreAPI interface {
	Get(ctx context.Context, eventID string) (Event, error)
	List(ctx context.Context, filter Filter) ([]Event, error)
	Create(ctx context.Context, e Event) (Event, error)
	Save(ctx context.Context, e Event) (Event, error)
	Delete(ctx context.Context, eventID string) error
	ActiveUserIDs(ctx context.Context, ids []string) ([]string, error)
}
