package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/platform/db"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const taskSelect = `
    SELECT t.id, t.project_id, p.name, p.pm_id, t.title, t.description, t.assignee_id::text, COALESCE(a.name, ''),
           t.status, t.priority, t.due_date, t.estimated_hours::float8, t.created_by::text, t.created_at, t.updated_at
    FROM tasks t
    JOIN projects p ON p.id = t.project_id
    LEFT JOIN users a ON a.id = t.assignee_id`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.ProjectName, &t.ProjectPMID, &t.Title, &t.Description, &t.AssigneeID, &t.AssigneeName,
		&t.Status, &t.Priority, &t.DueDate, &t.EstimatedHours, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func collect(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, taskID string) (Task, error) {
	return scanTask(s.DB.QueryRow(ctx, taskSelect+" WHERE t.id = $1", taskID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM tasks t"+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := taskSelect + where + fmt.Sprintf(" ORDER BY t.due_date NULLS LAST, t.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	list, err := collect(rows)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Tasks: list, Total: total}, nil
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND t.project_id = $%d", len(args))
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		where += fmt.Sprintf(" AND t.assignee_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if !filter.DueBefore.IsZero() {
		args = append(args, filter.DueBefore)
		where += fmt.Sprintf(" AND t.due_date <= $%d", len(args))
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, t Task) (Task, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO tasks (project_id, title, description, assignee_id, status, priority, due_date, estimated_hours, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `, t.ProjectID, t.Title, t.Description, t.AssigneeID, t.Status, t.Priority, t.DueDate, t.EstimatedHours, t.CreatedBy).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return Task{}, ErrInvalidAssignee
	}
	if err != nil {
		return Task{}, err
	}
	return s.Get(ctx, id)
}

// Save writes the mutable fields. A changed due date clears reminded_on so
// the reminder job picks the task up again.
func (s *Store) Save(ctx context.Context, t Task) (Task, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE tasks
    SET title = $1, description = $2, assignee_id = $3, status = $4, priority = $5,
        reminded_on = CASE WHEN due_date IS DISTINCT FROM $6 THEN NULL ELSE reminded_on END,
        due_date = $6, estimated_hours = $7, updated_at = now()
    WHERE id = $8
  `, t.Title, t.Description, t.AssigneeID, t.Status, t.Priority, t.DueDate, t.EstimatedHours, t.ID)
	if db.IsForeignKeyViolation(err) {
		return Task{}, ErrInvalidAssignee
	}
	if err != nil {
		return Task{}, err
	}
	if tag.RowsAffected() == 0 {
		return Task{}, ErrNotFound
	}
	return s.Get(ctx, t.ID)
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM tasks WHERE id = $1", taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IsAllocated(ctx context.Context, userID, projectID string, day time.Time) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM allocations
      WHERE user_id = $1 AND project_id = $2 AND status = 'active' AND end_date >= $3
    )
  `, userID, projectID, day).Scan(&ok)
	return ok, err
}

func (s *Store) DueForReminder(ctx context.Context, today, until time.Time) ([]Task, error) {
	rows, err := s.DB.Query(ctx, taskSelect+`
    WHERE t.assignee_id IS NOT NULL AND t.status <> 'done'
      AND t.due_date IS NOT NULL AND t.due_date <= $2
      AND (t.reminded_on IS NULL OR t.reminded_on < $1)
    ORDER BY t.due_date
  `, today, until)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) MarkReminded(ctx context.Context, taskIDs []string, today time.Time) error {
	if len(taskIDs) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, "UPDATE tasks SET reminded_on = $1 WHERE id = ANY($2::uuid[])", today, taskIDs)
	return err
}
