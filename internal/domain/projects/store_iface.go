package projects

import "context"

type StoreAPI interface {
	Get(ctx context.Context, projectID string) (Project, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	Create(ctx context.Context, input CreateInput, createdBy string) (Project, error)
	Save(ctx context.Context, project Project) (Project, error)
	Delete(ctx context.Context, projectID string) error
	Summary(ctx context.Context, projectID string) (Summary, error)
	Team(ctx context.Context, projectID string) ([]TeamMember, error)
	UserRole(ctx context.Context, userID string) (string, error)
}
