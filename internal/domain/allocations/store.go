package allocations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const allocationSelect = `
    SELECT a.id, a.user_id, COALESCE(u.name, ''), a.project_id, COALESCE(p.name, ''), a.percentage,
           a.start_date, a.end_date, a.role, a.status, a.resource_request_id::text, a.created_by::text, a.created_at
    FROM allocations a
    LEFT JOIN users u ON u.id = a.user_id
    LEFT JOIN projects p ON p.id = a.project_id`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.ProjectID, &a.ProjectName, &a.Percentage,
		&a.StartDate, &a.EndDate, &a.Role, &a.Status, &a.ResourceRequestID, &a.CreatedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func collect(rows pgx.Rows) ([]Allocation, error) {
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, allocationID string) (Allocation, error) {
	return scanAllocation(s.DB.QueryRow(ctx, allocationSelect+" WHERE a.id = $1", allocationID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM allocations a"+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := allocationSelect + where + fmt.Sprintf(" ORDER BY a.start_date DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	list, err := collect(rows)
	return ListResult{Allocations: list, Total: total}, err
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND a.user_id = $%d", len(args))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND a.project_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if !filter.ActiveOn.IsZero() {
		args = append(args, filter.ActiveOn)
		where += fmt.Sprintf(" AND a.status = 'active' AND a.start_date <= $%d AND a.end_date >= $%d", len(args), len(args))
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, a Allocation) (Allocation, error) {
	var id string
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		id, err = InsertChecked(ctx, tx, a)
		return err
	})
	if err != nil {
		return Allocation{}, err
	}
	return s.Get(ctx, id)
}

// InsertChecked inserts an active allocation after locking the user row and
// verifying capacity. It must run inside a transaction.
func InsertChecked(ctx context.Context, tx pgx.Tx, a Allocation) (string, error) {
	if err := lockAndCheck(ctx, tx, a); err != nil {
		return "", err
	}
	var id string
	err := tx.QueryRow(ctx, `
    INSERT INTO allocations (user_id, project_id, percentage, start_date, end_date, role, status, resource_request_id, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,'active',$7,$8)
    RETURNING id
  `, a.UserID, a.ProjectID, a.Percentage, a.StartDate, a.EndDate, a.Role, a.ResourceRequestID, a.CreatedBy).Scan(&id)
	return id, err
}

func lockAndCheck(ctx context.Context, tx pgx.Tx, a Allocation) error {
	var locked string
	if err := tx.QueryRow(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", a.UserID).Scan(&locked); err != nil {
		return err
	}
	rows, err := tx.Query(ctx, allocationSelect+`
    WHERE a.user_id = $1 AND a.status = 'active' AND a.start_date <= $3 AND a.end_date >= $2
  `, a.UserID, a.StartDate, a.EndDate)
	if err != nil {
		return err
	}
	existing, err := collect(rows)
	if err != nil {
		return err
	}
	return CheckCapacity(existing, a)
}

func (s *Store) Update(ctx context.Context, a Allocation) (Allocation, error) {
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if a.Status == StatusActive {
			if err := lockAndCheck(ctx, tx, a); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
      UPDATE allocations
      SET percentage = $1, start_date = $2, end_date = $3, role = $4, status = $5, updated_at = now()
      WHERE id = $6
    `, a.Percentage, a.StartDate, a.EndDate, a.Role, a.Status, a.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}
	return s.Get(ctx, a.ID)
}

func (s *Store) Delete(ctx context.Context, allocationID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM allocations WHERE id = $1", allocationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ForUsersInRange returns active allocations overlapping [from, to]. An empty
// userIDs slice means every user.
func (s *Store) ForUsersInRange(ctx context.Context, userIDs []string, from, to time.Time) ([]Allocation, error) {
	if userIDs == nil {
		userIDs = []string{}
	}
	rows, err := s.DB.Query(ctx, allocationSelect+`
    WHERE a.status = 'active' AND a.start_date <= $2 AND a.end_date >= $1
      AND (cardinality($3::uuid[]) = 0 OR a.user_id = ANY($3::uuid[]))
    ORDER BY a.user_id, a.start_date
  `, from, to, userIDs)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ExpirePast(ctx context.Context, today time.Time) ([]Allocation, error) {
	rows, err := s.DB.Query(ctx, `
    UPDATE allocations
    SET status = 'ended', updated_at = now()
    WHERE status = 'active' AND end_date < $1
    RETURNING id, user_id, project_id, percentage, start_date, end_date, role, status
  `, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProjectID, &a.Percentage, &a.StartDate, &a.EndDate, &a.Role, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
