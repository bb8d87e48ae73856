package workrequests

import (
	"errors"
	"time"

	"workforce/internal/domain/approvals"
)

const (
	TypeLeave    = "leave"
	TypeOvertime = "overtime"
)

const (
	LeaveAnnual   = "annual"
	LeaveSick     = "sick"
	LeaveUnpaid   = "unpaid"
	LeaveParental = "parental"
	LeaveOther    = "other"
)

const (
	HalfNone = ""
	HalfAM   = "am"
	HalfPM   = "pm"
)

var (
	Types      = []string{TypeLeave, TypeOvertime}
	LeaveTypes = []string{LeaveAnnual, LeaveSick, LeaveUnpaid, LeaveParental, LeaveOther}
)

const (
	MaxDocuments    = 5
	MaxDocumentSize = 2 << 20
)

var AllowedDocumentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

var (
	ErrNotFound            = errors.New("Work request not found")
	ErrDocumentNotFound    = errors.New("Document not found")
	ErrForbidden           = errors.New("Unauthorized")
	ErrInvalidType         = errors.New("Invalid work request type")
	ErrInvalidLeaveType    = errors.New("Invalid leave type")
	ErrInvalidDateRange    = errors.New("End date must be after start date")
	ErrInvalidHalf         = errors.New("Invalid half-day selection")
	ErrMixedHalves         = errors.New("A single-day request cannot mix morning and afternoon halves")
	ErrNoWorkingDays       = errors.New("Request covers no working days")
	ErrInvalidHours        = errors.New("Overtime hours must be greater than 0 and at most 24 per day")
	ErrOverlappingLeave    = errors.New("Leave overlaps an existing request")
	ErrTooManyDocuments    = errors.New("A request can have at most 5 documents")
	ErrDocumentTooLarge    = errors.New("Documents must be at most 2 MiB")
	ErrDocumentType        = errors.New("Documents must be PDF, PNG or JPEG")
	ErrDocumentStorage     = errors.New("Document storage is not configured")
	ErrProjectNotFound     = errors.New("Project not found")
	ErrCannotFileForOthers = errors.New("Only HR or admin can file requests for another user")
)

type WorkRequest struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	UserName        string     `json:"userName"`
	LineManagerID   string     `json:"-"`
	RequestedBy     string     `json:"requestedBy"`
	Type            string     `json:"type"`
	LeaveType       string     `json:"leaveType,omitempty"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	StartHalf       string     `json:"startHalf,omitempty"`
	EndHalf         string     `json:"endHalf,omitempty"`
	Days            float64    `json:"days"`
	Hours           float64    `json:"hours,omitempty"`
	ProjectID       *string    `json:"projectId,omitempty"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	LMApproverID    *string    `json:"lmApproverId,omitempty"`
	LMDecidedAt     *time.Time `json:"lmDecidedAt,omitempty"`
	HRApproverID    *string    `json:"hrApproverId,omitempty"`
	HRDecidedAt     *time.Time `json:"hrDecidedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (w WorkRequest) subject() approvals.Subject {
	return approvals.Subject{
		Status:        w.Status,
		SubjectID:     w.UserID,
		RequesterID:   w.RequestedBy,
		LineManagerID: w.LineManagerID,
	}
}

func (w WorkRequest) label() string {
	if w.Type == TypeOvertime {
		return "overtime"
	}
	return w.LeaveType + " leave"
}

type Document struct {
	ID            string    `json:"id"`
	WorkRequestID string    `json:"workRequestId"`
	FileName      string    `json:"fileName"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	BlobKey       string    `json:"-"`
	UploadedBy    *string   `json:"uploadedBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Detail struct {
	WorkRequest
	History   []approvals.Entry `json:"history"`
	Documents []Document        `json:"documents"`
	CanDecide bool              `json:"canDecide"`
}

type Filter struct {
	Status         string
	Type           string
	UserID         string
	InvolvedUserID string
	TeamOf         string
	From           time.Time
	To             time.Time
	Pending        *approvals.PendingFilter
}

type ListResult struct {
	Requests []WorkRequest
	Total    int
}

type CreateInput struct {
	UserID    string
	Type      string
	LeaveType string
	StartDate time.Time
	EndDate   time.Time
	StartHalf string
	EndHalf   string
	Hours     float64
	ProjectID string
	Reason    string
	Documents []Upload
}

// Upload is a document supplied by the caller before it is stored.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type CalendarScope struct {
	All       bool
	UserID    string
	ManagerID string
}

type CalendarEntry struct {
	RequestID string    `json:"requestId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	LeaveType string    `json:"leaveType"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	StartHalf string    `json:"startHalf,omitempty"`
	EndHalf   string    `json:"endHalf,omitempty"`
	Days      float64   `json:"days"`
	Status    string    `json:"status"`
}

// MaxCalendarDays bounds Calendar and CalendarExport ranges.
const MaxCalendarDays = 366

var ErrRangeTooLong = errors.New("Calendar range must be at most 366 days")
