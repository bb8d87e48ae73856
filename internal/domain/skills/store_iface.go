package skills

import (
	"context"
	"time"
)

type StoreAPI interface {
	List(ctx context.Context, category string) ([]Skill, error)
	Get(ctx context.Context, skillID string) (Skill, error)
	Create(ctx context.Context, name, category string) (Skill, error)
	Delete(ctx context.Context, skillID string) error

	ForUser(ctx context.Context, userID string) ([]UserSkill, error)
	UserSkill(ctx context.Context, userID, skillID string) (UserSkill, error)
	Upsert(ctx context.Context, us UserSkill) (UserSkill, error)
	Remove(ctx context.Context, userID, skillID string) error

	Search(ctx context.Context, skillIDs []string, minProficiency int, day time.Time, limit int) ([]Candidate, error)
}
