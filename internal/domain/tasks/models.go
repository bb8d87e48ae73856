package tasks

import (
	"errors"
	"time"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var (
	Statuses   = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone}
	Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
)

var (
	ErrNotFound        = errors.New("Task not found")
	ErrForbidden       = errors.New("Unauthorized")
	ErrTitleRequired   = errors.New("Title is required")
	ErrInvalidStatus   = errors.New("Invalid task status")
	ErrInvalidPriority = errors.New("Invalid task priority")
	ErrInvalidHours    = errors.New("Estimated hours must not be negative")
	ErrNotAllocated    = errors.New("Assignee must be allocated to the project")
	ErrInvalidAssignee = errors.New("Assignee not found")
)

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	ProjectName    string     `json:"projectName"`
	ProjectPMID    string     `json:"-"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AssigneeID     *string    `json:"assigneeId,omitempty"`
	AssigneeName   string     `json:"assigneeName,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours float64    `json:"estimatedHours"`
	CreatedBy      *string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Assignee returns the assignee id or "".
func (t Task) Assignee() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

type Filter struct {
	ProjectID  string
	AssigneeID string
	Status     string
	DueBefore  time.Time
}

type ListResult struct {
	Tasks []Task
	Total int
}

type CreateInput struct {
	ProjectID      string
	Title          string
	Description    string
	AssigneeID     string
	Priority       string
	DueDate        *time.Time
	EstimatedHours float64
}

type UpdateInput struct {
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	DueDate        *time.Time
	ClearDueDate   bool
	EstimatedHours *float64
}

// onlyStatus reports whether the update touches nothing but the status.
func (u UpdateInput) onlyStatus() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil && u.DueDate == nil &&
		!u.ClearDueDate && u.EstimatedHours == nil
}

func IsValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func IsValidPriority(priority string) bool {
	for _, p := range Priorities {
		if p == priority {
			return true
		}
	}
	return false
}
