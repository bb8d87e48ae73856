// Package approvals holds the two-stage approval state machine shared by
// resource requests and work requests.
package approvals

import (
	"errors"
	"strings"
	"time"

	"workforce/internal/domain/auth"
)

const (
	StatusPendingLM = "pending_lm"
	StatusPendingHR = "pending_hr"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

const (
	KindResource = "resource"
	KindWork     = "work"
)

const (
	StageLM = "lm"
	StageHR = "hr"
)

const (
	DecisionApproved  = "approved"
	DecisionRejected  = "rejected"
	DecisionCancelled = "cancelled"
)

var Statuses = []string{StatusPendingLM, StatusPendingHR, StatusApproved, StatusRejected, StatusCancelled}

var (
	ErrForbidden          = errors.New("Unauthorized")
	ErrInvalidState       = errors.New("request is not pending")
	ErrHRApprovalRequired = errors.New("hr approval required")
	ErrSelfApproval       = errors.New("cannot decide on your own request")
	ErrReasonRequired     = errors.New("rejection reason is required")
)

// Subject is the part of a request the workflow needs to decide.
type Subject struct {
	Status        string
	SubjectID     string
	RequesterID   string
	LineManagerID string
}

// Transition describes a decision. Stage is empty for cancellations.
type Transition struct {
	From     string
	To       string
	Stage    string
	Decision string
	Comment  string
}

// Final reports whether the transition moved the request to approved.
func (t Transition) Final() bool {
	return t.To == StatusApproved
}

// Entry is one row of a request's decision history.
type Entry struct {
	ID          string    `json:"id"`
	RequestKind string    `json:"requestKind"`
	RequestID   string    `json:"requestId"`
	Stage       string    `json:"stage"`
	ActorID     string    `json:"actorId"`
	ActorName   string    `json:"actorName"`
	Decision    string    `json:"decision"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"createdAt"`
}

func InitialStatus(hasLineManager bool) string {
	if hasLineManager {
		return StatusPendingLM
	}
	return StatusPendingHR
}

func IsPending(status string) bool {
	return status == StatusPendingLM || status == StatusPendingHR
}

func IsValidStatus(status string) bool {
	for _, candidate := range Statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func Approve(req Subject, actor auth.UserContext, comment string) (Transition, error) {
	stage, err := authorizeDecision(req, actor)
	if err != nil {
		return Transition{}, err
	}
	next := StatusApproved
	if stage == StageLM {
		next = StatusPendingHR
	}
	return Transition{From: req.Status, To: next, Stage: stage, Decision: DecisionApproved, Comment: strings.TrimSpace(comment)}, nil
}

func Reject(req Subject, actor auth.UserContext, reason string) (Transition, error) {
	reason = strings.TrimSpace(reason)
	stage, err := authorizeDecision(req, actor)
	if err != nil {
		return Transition{}, err
	}
	if reason == "" {
		return Transition{}, ErrReasonRequired
	}
	return Transition{From: req.Status, To: StatusRejected, Stage: stage, Decision: DecisionRejected, Comment: reason}, nil
}

func Cancel(req Subject, actor auth.UserContext) (Transition, error) {
	if !IsPending(req.Status) {
		return Transition{}, ErrInvalidState
	}
	if !actor.IsAdmin() && actor.UserID != req.RequesterID && actor.UserID != req.SubjectID {
		return Transition{}, ErrForbidden
	}
	return Transition{From: req.Status, To: StatusCancelled, Decision: DecisionCancelled}, nil
}

// CanDecide reports whether actor may approve or reject req right now.
func CanDecide(req Subject, actor auth.UserContext) bool {
	_, err := authorizeDecision(req, actor)
	return err == nil
}

func authorizeDecision(req Subject, actor auth.UserContext) (string, error) {
	if !IsPending(req.Status) {
		return "", ErrInvalidState
	}
	if actor.UserID == req.SubjectID && !actor.IsAdmin() {
		return "", ErrSelfApproval
	}
	switch req.Status {
	case StatusPendingLM:
		if actor.IsAdmin() || (req.LineManagerID != "" && actor.UserID == req.LineManagerID) {
			return StageLM, nil
		}
		return "", ErrForbidden
	default:
		if actor.IsAdmin() || actor.IsHR() {
			return StageHR, nil
		}
		if actor.RoleName == auth.RoleLineManager || actor.UserID == req.LineManagerID {
			return "", ErrHRApprovalRequired
		}
		return "", ErrForbidden
	}
}

// Recorder counts workflow decisions per request kind and resulting status.
type Recorder interface {
	Decision(kind, status string)
}

// Scope selects which requests a listing returns relative to the caller.
const (
	ScopeMine    = "mine"
	ScopePending = "pending"
	ScopeTeam    = "team"
	ScopeAll     = "all"
)

// PendingFilter describes which pending requests an actor can decide on:
// pending_lm requests of their reports, and pending_hr when they are hr.
type PendingFilter struct {
	LineManagerID string
	IncludeHR     bool
	Any           bool
}

func PendingFor(actor auth.UserContext) PendingFilter {
	if actor.IsAdmin() {
		return PendingFilter{Any: true}
	}
	return PendingFilter{LineManagerID: actor.UserID, IncludeHR: actor.IsHR()}
}
