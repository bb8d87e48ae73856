package allocations

import (
	"errors"
	"time"
)

const (
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

const MaxCapacity = 100

var (
	ErrNotFound          = errors.New("Allocation not found")
	ErrForbidden         = errors.New("Unauthorized")
	ErrOverCapacity      = errors.New("Allocation exceeds available capacity")
	ErrInvalidPercentage = errors.New("Percentage must be between 0 and 100")
	ErrInvalidDateRange  = errors.New("End date must be after start date")
	ErrNotActive         = errors.New("Allocation is not active")
)

type Allocation struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	UserName          string    `json:"userName,omitempty"`
	ProjectID         string    `json:"projectId"`
	ProjectName       string    `json:"projectName,omitempty"`
	Percentage        int       `json:"percentage"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	ResourceRequestID *string   `json:"resourceRequestId,omitempty"`
	CreatedBy         *string   `json:"createdBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Filter struct {
	UserID    string
	ProjectID string
	Status    string
	ActiveOn  time.Time
}

type ListResult struct {
	Allocations []Allocation
	Total       int
}

type CreateInput struct {
	UserID     string
	ProjectID  string
	Percentage int
	StartDate  time.Time
	EndDate    time.Time
	Role       string
}

type UpdateInput struct {
	Percentage *int
	StartDate  *time.Time
	EndDate    *time.Time
	Role       *string
}

type DayLoad struct {
	Date       time.Time `json:"date"`
	Percentage int       `json:"percentage"`
}

type Utilization struct {
	UserID  string    `json:"userId"`
	Name    string    `json:"name,omitempty"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Days    []DayLoad `json:"days,omitempty"`
	Peak    int       `json:"peak"`
	Average float64   `json:"average"`
}
