package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const userSelect = `
    SELECT u.id, u.email, u.name, u.role, u.line_manager_id::text, COALESCE(m.name, ''),
           u.department, u.job_title, u.status, u.mfa_enabled, u.last_login, u.created_at
    FROM users u
    LEFT JOIN users m ON m.id = u.line_manager_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.LineManagerID, &u.LineManagerName,
		&u.Department, &u.JobTitle, &u.Status, &u.MFAEnabled, &u.LastLogin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (s *Store) Get(ctx context.Context, userID string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, userSelect+" WHERE u.id = $1", userID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM users u"+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := userSelect + where + fmt.Sprintf(" ORDER BY u.name, u.email LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	out := ListResult{Total: total}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Users = append(out.Users, u)
	}
	return out, rows.Err()
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.Role != "" {
		args = append(args, filter.Role)
		where += fmt.Sprintf(" AND u.role = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND u.status = $%d", len(args))
	}
	if filter.LineManagerID != "" {
		args = append(args, filter.LineManagerID)
		where += fmt.Sprintf(" AND u.line_manager_id = $%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where += fmt.Sprintf(" AND (lower(u.name) LIKE $%d OR lower(u.email) LIKE $%d)", len(args), len(args))
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, input CreateInput, passwordHash string) (User, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (email, name, password_hash, role, line_manager_id, department, job_title)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id
  `, input.Email, input.Name, passwordHash, input.Role, db.NullIfEmpty(input.LineManagerID), input.Department, input.JobTitle).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Update(ctx context.Context, userID string, input UpdateInput) (User, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users
    SET name = COALESCE($1, name),
        department = COALESCE($2, department),
        job_title = COALESCE($3, job_title),
        updated_at = now()
    WHERE id = $4
  `, input.Name, input.Department, input.JobTitle, userID)
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return s.Get(ctx, userID)
}

func (s *Store) UpdateRole(ctx context.Context, userID, role string) error {
	return s.execOne(ctx, "UPDATE users SET role = $1, updated_at = now() WHERE id = $2", role, userID)
}

func (s *Store) SetLineManager(ctx context.Context, userID, managerID string) error {
	return s.execOne(ctx, "UPDATE users SET line_manager_id = $1, updated_at = now() WHERE id = $2", db.NullIfEmpty(managerID), userID)
}

// ManagerChain walks line managers upward from userID (exclusive).
func (s *Store) ManagerChain(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    WITH RECURSIVE chain(id, depth) AS (
      SELECT line_manager_id, 1 FROM users WHERE id = $1 AND line_manager_id IS NOT NULL
      UNION ALL
      SELECT u.line_manager_id, c.depth + 1
      FROM users u JOIN chain c ON u.id = c.id
      WHERE u.line_manager_id IS NOT NULL AND c.depth < 64
    )
    SELECT id::text FROM chain ORDER BY depth
  `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, userID, status string) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE users SET status = $1, updated_at = now() WHERE id = $2", status, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if status != StatusInactive {
			return nil
		}
		_, err = tx.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID)
		return err
	})
}

func (s *Store) DirectReports(ctx context.Context, managerID string) ([]User, error) {
	rows, err := s.DB.Query(ctx, userSelect+" WHERE u.line_manager_id = $1 AND u.status = 'active' ORDER BY u.name", managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
