package resourcerequests

import (
	"errors"
	"time"

	"workforce/internal/domain/approvals"
)

var (
	ErrNotFound  = errors.New("Resource request not found")
	ErrForbidden = errors.New("Unauthorized")
)

type ResourceRequest struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"projectId"`
	ProjectName     string     `json:"projectName"`
	ProjectPMID     string     `json:"-"`
	UserID          string     `json:"userId"`
	UserName        string     `json:"userName"`
	LineManagerID   string     `json:"-"`
	RequestedBy     string     `json:"requestedBy"`
	RequestedByName string     `json:"requestedByName"`
	Percentage      int        `json:"percentage"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	Role            string     `json:"role"`
	Notes           string     `json:"notes"`
	Status          string     `json:"status"`
	LMApproverID    *string    `json:"lmApproverId,omitempty"`
	LMDecidedAt     *time.Time `json:"lmDecidedAt,omitempty"`
	HRApproverID    *string    `json:"hrApproverId,omitempty"`
	HRDecidedAt     *time.Time `json:"hrDecidedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	AllocationID    *string    `json:"allocationId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (r ResourceRequest) subject() approvals.Subject {
	return approvals.Subject{
		Status:        r.Status,
		SubjectID:     r.UserID,
		RequesterID:   r.RequestedBy,
		LineManagerID: r.LineManagerID,
	}
}

type Detail struct {
	ResourceRequest
	History   []approvals.Entry `json:"history"`
	CanDecide bool              `json:"canDecide"`
}

type Filter struct {
	Status         string
	ProjectID      string
	UserID         string
	InvolvedUserID string
	Pending        *approvals.PendingFilter
}

type ListResult struct {
	Requests []ResourceRequest
	Total    int
}

type CreateInput struct {
	ProjectID  string
	UserID     string
	Percentage int
	StartDate  time.Time
	EndDate    time.Time
	Role       string
	Notes      string
}
