package notifications

import "errors"

const (
	TypeResourceRequestSubmitted = "resource_request_submitted"
	TypeResourceRequestPendingHR = "resource_request_pending_hr"
	TypeResourceRequestApproved  = "resource_request_approved"
	TypeResourceRequestRejected  = "resource_request_rejected"
	TypeResourceRequestCancelled = "resource_request_cancelled"
	TypeWorkRequestSubmitted     = "work_request_submitted"
	TypeWorkRequestPendingHR     = "work_request_pending_hr"
	TypeWorkRequestApproved      = "work_request_approved"
	TypeWorkRequestRejected      = "work_request_rejected"
	TypeWorkRequestCancelled     = "work_request_cancelled"
	TypeAllocationCreated        = "allocation_created"
	TypeAllocationEnded          = "allocation_ended"
	TypeTaskAssigned             = "task_assigned"
	TypeTaskCompleted            = "task_completed"
	TypeTaskDue                  = "task_due"
	TypeEventInvite              = "event_invite"
	TypeReportReady              = "report_ready"
)

// AnyType matches every notification type in a role default.
const AnyType = "*"

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

var Types = []string{
	TypeResourceRequestSubmitted,
	TypeResourceRequestPendingHR,
	TypeResourceRequestApproved,
	TypeResourceRequestRejected,
	TypeResourceRequestCancelled,
	TypeWorkRequestSubmitted,
	TypeWorkRequestPendingHR,
	TypeWorkRequestApproved,
	TypeWorkRequestRejected,
	TypeWorkRequestCancelled,
	TypeAllocationCreated,
	TypeAllocationEnded,
	TypeTaskAssigned,
	TypeTaskCompleted,
	TypeTaskDue,
	TypeEventInvite,
	TypeReportReady,
}

var (
	ErrNotFound    = errors.New("Notification not found")
	ErrUnknownType = errors.New("unknown notification type")
)

func IsKnownType(ntype string) bool {
	for _, candidate := range Types {
		if candidate == ntype {
			return true
		}
	}
	return false
}
