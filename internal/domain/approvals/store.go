package approvals

import (
	"context"
	"fmt"

	"workforce/internal/platform/db"
)

// Record appends a history row. q may be a transaction.
func Record(ctx context.Context, q db.Querier, kind, requestID, actorID string, t Transition) error {
	_, err := q.Exec(ctx, `
    INSERT INTO approvals (request_kind, request_id, stage, actor_id, decision, comment)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, kind, requestID, t.Stage, db.NullIfEmpty(actorID), t.Decision, t.Comment)
	return err
}

func History(ctx context.Context, q db.Querier, kind, requestID string) ([]Entry, error) {
	rows, err := q.Query(ctx, `
    SELECT a.id, a.request_kind, a.request_id, a.stage, COALESCE(a.actor_id::text, ''), COALESCE(u.name, ''),
           a.decision, a.comment, a.created_at
    FROM approvals a
    LEFT JOIN users u ON u.id = a.actor_id
    WHERE a.request_kind = $1 AND a.request_id = $2
    ORDER BY a.created_at
  `, kind, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestKind, &e.RequestID, &e.Stage, &e.ActorID, &e.ActorName, &e.Decision, &e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingClause renders the SQL condition for f. statusCol and managerCol
// name the request status and the subject's line manager columns.
func PendingClause(f PendingFilter, statusCol, managerCol string, args []any) (string, []any) {
	if f.Any {
		return fmt.Sprintf(" AND %s IN ('pending_lm','pending_hr')", statusCol), args
	}
	args = append(args, f.LineManagerID)
	clause := fmt.Sprintf("(%s = 'pending_lm' AND %s = $%d)", statusCol, managerCol, len(args))
	if f.IncludeHR {
		clause = fmt.Sprintf("(%s OR %s = 'pending_hr')", clause, statusCol)
	}
	return " AND " + clause, args
}
