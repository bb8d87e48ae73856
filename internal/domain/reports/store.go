package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/domain/auth"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

type countQuery struct {
	dst   *int
	query string
	args  []any
}

func (s *Store) Counts(ctx context.Context, userID, role string, today time.Time) (Counts, error) {
	var c Counts
	queries := []countQuery{
		{&c.MyOpenTasks, "SELECT COUNT(1) FROM tasks WHERE assignee_id = $1 AND status <> 'done'", []any{userID}},
		{&c.MyPendingRequests, "SELECT COUNT(1) FROM work_requests WHERE user_id = $1 AND status IN ('pending_lm','pending_hr')", []any{userID}},
	}
	if role == auth.RoleLineManager || role == auth.RoleHR {
		queries = append(queries,
			countQuery{&c.TeamSize, "SELECT COUNT(1) FROM users WHERE line_manager_id = $1 AND status = 'active'", []any{userID}},
			countQuery{&c.TeamPendingLM, `
    SELECT (SELECT COUNT(1) FROM work_requests r JOIN users u ON u.id = r.user_id
            WHERE r.status = 'pending_lm' AND u.line_manager_id = $1)
         + (SELECT COUNT(1) FROM resource_requests r JOIN users u ON u.id = r.user_id
            WHERE r.status = 'pending_lm' AND u.line_manager_id = $1)
  `, []any{userID}},
			countQuery{&c.TeamOnLeaveToday, `
    SELECT COUNT(DISTINCT r.user_id) FROM work_requests r JOIN users u ON u.id = r.user_id
    WHERE u.line_manager_id = $1 AND r.type = 'leave' AND r.status = 'approved'
      AND r.start_date <= $2 AND r.end_date >= $2
  `, []any{userID, today}},
		)
	}
	if role == auth.RolePM {
		queries = append(queries,
			countQuery{&c.ManagedProjects, "SELECT COUNT(1) FROM projects WHERE pm_id = $1 AND status = 'active'", []any{userID}},
			countQuery{&c.ManagedOpenTasks, `
    SELECT COUNT(1) FROM tasks t JOIN projects p ON p.id = t.project_id
    WHERE p.pm_id = $1 AND t.status <> 'done'
  `, []any{userID}},
			countQuery{&c.MyResourceRequests, "SELECT COUNT(1) FROM resource_requests WHERE requested_by = $1 AND status IN ('pending_lm','pending_hr')", []any{userID}},
		)
	}
	if role == auth.RoleHR || role == auth.RoleAdmin {
		queries = append(queries,
			countQuery{&c.PendingHR, `
    SELECT (SELECT COUNT(1) FROM work_requests WHERE status = 'pending_hr')
         + (SELECT COUNT(1) FROM resource_requests WHERE status = 'pending_hr')
  `, nil},
			countQuery{&c.ActiveUsers, "SELECT COUNT(1) FROM users WHERE status = 'active'", nil},
			countQuery{&c.OnLeaveToday, `
    SELECT COUNT(DISTINCT user_id) FROM work_requests
    WHERE type = 'leave' AND status = 'approved' AND start_date <= $1 AND end_date >= $1
  `, []any{today}},
		)
	}
	if role == auth.RoleAdmin {
		queries = append(queries,
			countQuery{&c.ActiveProjects, "SELECT COUNT(1) FROM projects WHERE status = 'active'", nil},
			countQuery{&c.PendingRequests, `
    SELECT (SELECT COUNT(1) FROM work_requests WHERE status IN ('pending_lm','pending_hr'))
         + (SELECT COUNT(1) FROM resource_requests WHERE status IN ('pending_lm','pending_hr'))
  `, nil},
		)
	}
	for _, q := range queries {
		if err := s.DB.QueryRow(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return Counts{}, err
		}
	}
	if err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(SUM(days), 0)::float8 FROM work_requests
    WHERE user_id = $1 AND type = 'leave' AND status = 'approved' AND start_date >= $2
  `, userID, today).Scan(&c.MyUpcomingLeaveDays); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func (s *Store) ActiveUsers(ctx context.Context, managerID string) ([]UserRow, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, email, job_title
    FROM users
    WHERE status = 'active' AND ($1 = '' OR line_manager_id::text = $1)
    ORDER BY name
  `, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UserRow{}
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.JobTitle); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) LeaveRows(ctx context.Context, managerID string, from, to time.Time) ([]LeaveRow, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT r.user_id, u.name, r.leave_type, r.start_date, r.end_date, r.start_half, r.end_half, r.status
    FROM work_requests r
    JOIN users u ON u.id = r.user_id
    WHERE r.type = 'leave' AND r.status IN ('pending_lm','pending_hr','approved')
      AND r.end_date >= $1 AND r.start_date <= $2
      AND ($3 = '' OR u.line_manager_id::text = $3)
    ORDER BY u.name, r.start_date
  `, from, to, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LeaveRow{}
	for rows.Next() {
		var l LeaveRow
		if err := rows.Scan(&l.UserID, &l.Name, &l.LeaveType, &l.StartDate, &l.EndDate, &l.StartHalf, &l.EndHalf, &l.Status); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
