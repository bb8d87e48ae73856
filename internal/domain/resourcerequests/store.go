package resourcerequests

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/approvals"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const requestSelect = `
    SELECT r.id, r.project_id, p.name, p.pm_id, r.user_id, su.name, COALESCE(su.line_manager_id::text, ''),
           r.requested_by, rb.name, r.percentage, r.start_date, r.end_date, r.role, r.notes, r.status,
           r.lm_approver_id::text, r.lm_decided_at, r.hr_approver_id::text, r.hr_decided_at,
           r.rejection_reason, r.allocation_id::text, r.created_at, r.updated_at
    FROM resource_requests r
    JOIN projects p ON p.id = r.project_id
    JOIN users su ON su.id = r.user_id
    JOIN users rb ON rb.id = r.requested_by`

func scanRequest(row pgx.Row) (ResourceRequest, error) {
	var r ResourceRequest
	err := row.Scan(&r.ID, &r.ProjectID, &r.ProjectName, &r.ProjectPMID, &r.UserID, &r.UserName, &r.LineManagerID,
		&r.RequestedBy, &r.RequestedByName, &r.Percentage, &r.StartDate, &r.EndDate, &r.Role, &r.Notes, &r.Status,
		&r.LMApproverID, &r.LMDecidedAt, &r.HRApproverID, &r.HRDecidedAt,
		&r.RejectionReason, &r.AllocationID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *Store) Get(ctx context.Context, requestID string) (ResourceRequest, error) {
	return scanRequest(s.DB.QueryRow(ctx, requestSelect+" WHERE r.id = $1", requestID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM resource_requests r JOIN users su ON su.id = r.user_id`+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := requestSelect + where + fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	out := ListResult{Total: total}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Requests = append(out.Requests, r)
	}
	return out, rows.Err()
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND r.project_id = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND r.user_id = $%d", len(args))
	}
	if filter.InvolvedUserID != "" {
		args = append(args, filter.InvolvedUserID)
		where += fmt.Sprintf(" AND (r.user_id = $%d OR r.requested_by = $%d)", len(args), len(args))
	}
	if filter.Pending != nil {
		var clause string
		clause, args = approvals.PendingClause(*filter.Pending, "r.status", "su.line_manager_id", args)
		where += clause
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, r ResourceRequest) (ResourceRequest, error) {
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO resource_requests (project_id, user_id, requested_by, percentage, start_date, end_date, role, notes, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `, r.ProjectID, r.UserID, r.RequestedBy, r.Percentage, r.StartDate, r.EndDate, r.Role, r.Notes, r.Status).Scan(&id); err != nil {
		return ResourceRequest{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) ApplyTransition(ctx context.Context, requestID, actorID string, t approvals.Transition, alloc *allocations.Allocation) (ResourceRequest, error) {
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, "SELECT status FROM resource_requests WHERE id = $1 FOR UPDATE", requestID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != t.From {
			return approvals.ErrInvalidState
		}

		var allocationID *string
		if alloc != nil {
			id, err := allocations.InsertChecked(ctx, tx, *alloc)
			if err != nil {
				return err
			}
			allocationID = &id
		}

		reason := ""
		if t.Decision == approvals.DecisionRejected {
			reason = t.Comment
		}
		switch t.Stage {
		case approvals.StageLM:
			_, err := tx.Exec(ctx, `
        UPDATE resource_requests
        SET status = $1, rejection_reason = $2, lm_approver_id = $3, lm_decided_at = now(), updated_at = now()
        WHERE id = $4
      `, t.To, reason, actorID, requestID)
			if err != nil {
				return err
			}
		case approvals.StageHR:
			_, err := tx.Exec(ctx, `
        UPDATE resource_requests
        SET status = $1, rejection_reason = $2, hr_approver_id = $3, hr_decided_at = now(),
            allocation_id = COALESCE($4, allocation_id), updated_at = now()
        WHERE id = $5
      `, t.To, reason, actorID, allocationID, requestID)
			if err != nil {
				return err
			}
		default:
			if _, err := tx.Exec(ctx, "UPDATE resource_requests SET status = $1, updated_at = now() WHERE id = $2", t.To, requestID); err != nil {
				return err
			}
		}
		return approvals.Record(ctx, tx, approvals.KindResource, requestID, actorID, t)
	})
	if err != nil {
		return ResourceRequest{}, err
	}
	return s.Get(ctx, requestID)
}

func (s *Store) History(ctx context.Context, requestID string) ([]approvals.Entry, error) {
	return approvals.History(ctx, s.DB, approvals.KindResource, requestID)
}
