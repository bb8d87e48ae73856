package projects

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

const projectSelect = `
    SELECT p.id, p.name, p.code, p.description, p.pm_id, COALESCE(u.name, ''), p.status,
           p.start_date, p.end_date, p.created_at, p.updated_at
    FROM projects p
    LEFT JOIN users u ON u.id = p.pm_id`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.PMID, &p.PMName, &p.Status,
		&p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) Get(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.DB.QueryRow(ctx, projectSelect+" WHERE p.id = $1", projectID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM projects p"+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := projectSelect + where + fmt.Sprintf(" ORDER BY p.start_date DESC, p.name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	out := ListResult{Total: total}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Projects = append(out.Projects, p)
	}
	return out, rows.Err()
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	if filter.PMID != "" {
		args = append(args, filter.PMID)
		where += fmt.Sprintf(" AND p.pm_id = $%d", len(args))
	}
	if filter.Member != "" {
		args = append(args, filter.Member)
		where += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM allocations a WHERE a.project_id = p.id AND a.user_id = $%d AND a.status = 'active')", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where += fmt.Sprintf(" AND (lower(p.name) LIKE $%d OR lower(p.code) LIKE $%d)", len(args), len(args))
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, input CreateInput, createdBy string) (Project, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO projects (name, code, description, pm_id, status, start_date, end_date, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING id
  `, input.Name, input.Code, input.Description, input.PMID, input.Status, input.StartDate, input.EndDate, db.NullIfEmpty(createdBy)).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Project{}, ErrCodeTaken
		}
		return Project{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Save(ctx context.Context, p Project) (Project, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE projects
    SET name = $1, code = $2, description = $3, pm_id = $4, status = $5, start_date = $6, end_date = $7, updated_at = now()
    WHERE id = $8
  `, p.Name, p.Code, p.Description, p.PMID, p.Status, p.StartDate, p.EndDate, p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Project{}, ErrCodeTaken
		}
		return Project{}, err
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}
	return s.Get(ctx, p.ID)
}

// Delete removes a project unless it still has active allocations.
func (s *Store) Delete(ctx context.Context, projectID string) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var active int
		if err := tx.QueryRow(ctx, `
      SELECT COUNT(1) FROM allocations WHERE project_id = $1 AND status = 'active'
    `, projectID).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveAllocations
		}
		tag, err := tx.Exec(ctx, "DELETE FROM projects WHERE id = $1", projectID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) Summary(ctx context.Context, projectID string) (Summary, error) {
	out := Summary{TaskCounts: map[string]int{}}
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1), COALESCE(SUM(percentage), 0)
    FROM allocations
    WHERE project_id = $1 AND status = 'active' AND start_date <= CURRENT_DATE AND end_date >= CURRENT_DATE
  `, projectID).Scan(&out.ActiveAllocations, &out.AllocatedPercent); err != nil {
		return out, err
	}
	rows, err := s.DB.Query(ctx, "SELECT status, COUNT(1) FROM tasks WHERE project_id = $1 GROUP BY status", projectID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return out, err
		}
		out.TaskCounts[status] = count
	}
	return out, rows.Err()
}

func (s *Store) Team(ctx context.Context, projectID string) ([]TeamMember, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT a.id, u.id, u.name, u.email, a.role, a.percentage, a.start_date, a.end_date
    FROM allocations a
    JOIN users u ON u.id = a.user_id
    WHERE a.project_id = $1 AND a.status = 'active'
    ORDER BY u.name, a.start_date
  `, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.AllocationID, &m.UserID, &m.Name, &m.Email, &m.Role, &m.Percentage, &m.StartDate, &m.EndDate); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.DB.QueryRow(ctx, "SELECT role FROM users WHERE id = $1 AND status = 'active'", userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidPM
	}
	return role, err
}
