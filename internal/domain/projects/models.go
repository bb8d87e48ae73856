package projects

import (
	"errors"
	"time"
)

const (
	StatusPlanning  = "planning"
	StatusActive    = "active"
	StatusOnHold    = "on_hold"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var Statuses = []string{StatusPlanning, StatusActive, StatusOnHold, StatusCompleted, StatusCancelled}

var (
	ErrNotFound          = errors.New("Project not found")
	ErrForbidden         = errors.New("Unauthorized")
	ErrCodeTaken         = errors.New("Project code already in use")
	ErrInvalidStatus     = errors.New("Invalid project status")
	ErrInvalidDateRange  = errors.New("End date must be after start date")
	ErrInvalidPM         = errors.New("Project manager must have the pm or admin role")
	ErrActiveAllocations = errors.New("Project has active allocations")
)

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Code        string     `json:"code"`
	Description string     `json:"description"`
	PMID        string     `json:"pmId"`
	PMName      string     `json:"pmName"`
	Status      string     `json:"status"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Summary struct {
	ActiveAllocations int            `json:"activeAllocations"`
	AllocatedPercent  int            `json:"allocatedPercent"`
	TaskCounts        map[string]int `json:"taskCounts"`
}

type Detail struct {
	Project
	Summary Summary `json:"summary"`
}

type TeamMember struct {
	AllocationID string    `json:"allocationId"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Percentage   int       `json:"percentage"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
}

type Filter struct {
	Status string
	PMID   string
	Query  string
	Member string
}

type ListResult struct {
	Projects []Project
	Total    int
}

type CreateInput struct {
	Name        string
	Code        string
	Description string
	PMID        string
	Status      string
	StartDate   time.Time
	EndDate     *time.Time
}

type UpdateInput struct {
	Name        *string
	Code        *string
	Description *string
	PMID        *string
	StartDate   *time.Time
	EndDate     *time.Time
	ClearEnd    bool
}

func IsValidStatus(status string) bool {
	for _, candidate := range Statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
