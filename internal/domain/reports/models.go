package reports

import (
	"errors"
	"time"
)

var (
	ErrForbidden        = errors.New("Unauthorized")
	ErrInvalidDateRange = errors.New("End date must be after start date")
	ErrRangeTooLong     = errors.New("Report range must be at most 366 days")
	ErrReportNotFound   = errors.New("Report not found")
	ErrReportStorage    = errors.New("Report storage is not configured")
	ErrUnknownFormat    = errors.New("Unsupported export format")
)

const (
	FormatCSV = "csv"
	FormatPDF = "pdf"

	MaxRangeDays = 366
)

// Counts feeds the role dashboards. Fields that do not apply to a role stay
// zero and are omitted from its dashboard.
type Counts struct {
	MyOpenTasks         int
	MyPendingRequests   int
	MyUpcomingLeaveDays float64
	TeamSize            int
	TeamPendingLM       int
	TeamOnLeaveToday    int
	ManagedProjects     int
	ManagedOpenTasks    int
	MyResourceRequests  int
	PendingHR           int
	ActiveUsers         int
	ActiveProjects      int
	OnLeaveToday        int
	PendingRequests     int
}

type Dashboard struct {
	Role     string         `json:"role"`
	Sections map[string]any `json:"sections"`
}

type UserRow struct {
	ID       string
	Name     string
	Email    string
	JobTitle string
}

type UtilizationRow struct {
	UserID   string  `json:"userId"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	JobTitle string  `json:"jobTitle"`
	Average  float64 `json:"average"`
	Peak     int     `json:"peak"`
	Over     bool    `json:"overAllocated"`
}

type UtilizationReport struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Rows        []UtilizationRow `json:"rows"`
	TeamAverage float64          `json:"teamAverage"`
}

// LeaveRow is a live leave request overlapping the report range.
type LeaveRow struct {
	UserID    string
	Name      string
	LeaveType string
	StartDate time.Time
	EndDate   time.Time
	StartHalf string
	EndHalf   string
	Status    string
}

type LeaveUsage struct {
	UserID      string             `json:"userId"`
	Name        string             `json:"name"`
	ByType      map[string]float64 `json:"byType"`
	TotalDays   float64            `json:"totalDays"`
	PendingDays float64            `json:"pendingDays"`
}

// StoredReport points at a rendered report in blob storage.
type StoredReport struct {
	ID          string    `json:"id"`
	Key         string    `json:"-"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
