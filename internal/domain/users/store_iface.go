package users

import "context"

type StoreAPI interface {
	Get(ctx context.Context, userID string) (User, error)
	List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error)
	Create(ctx context.Context, input CreateInput, passwordHash string) (User, error)
	Update(ctx context.Context, userID string, input UpdateInput) (User, error)
	UpdateRole(ctx context.Context, userID, role string) error
	SetLineManager(ctx context.Context, userID, managerID string) error
	ManagerChain(ctx context.Context, userID string) ([]string, error)
	SetStatus(ctx context.Context, userID, status string) error
	DirectReports(ctx context.Context, managerID string) ([]User, error)
}
