package resourcerequests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"workforce/internal/domain/allocations"
	"workforce/internal/domain/approvals"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/users"
)

type ProjectLookup interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
}

type UserLookup interface {
	Get(ctx context.Context, userID string) (users.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
	NotifyRole(ctx context.Context, role, ntype, title, body, link string) error
}

type Service struct {
	store    StoreAPI
	Projects ProjectLookup
	Users    UserLookup
	Notifier Notifier
	Metrics  approvals.Recorder
}

func NewService(store StoreAPI, projectLookup ProjectLookup, userLookup UserLookup, notifier Notifier) *Service {
	return &Service{store: store, Projects: projectLookup, Users: userLookup, Notifier: notifier}
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (ResourceRequest, error) {
	project, err := s.Projects.Get(ctx, input.ProjectID)
	if err != nil {
		return ResourceRequest{}, err
	}
	if !projects.CanManage(project, actor) {
		return ResourceRequest{}, ErrForbidden
	}
	if err := allocations.ValidatePercentage(input.Percentage); err != nil {
		return ResourceRequest{}, err
	}
	if err := allocations.ValidateDates(input.StartDate, input.EndDate); err != nil {
		return ResourceRequest{}, err
	}
	subject, err := s.Users.Get(ctx, input.UserID)
	if err != nil {
		return ResourceRequest{}, err
	}
	if subject.Status != users.StatusActive {
		return ResourceRequest{}, users.ErrNotFound
	}

	created, err := s.store.Create(ctx, ResourceRequest{
		ProjectID:   project.ID,
		UserID:      subject.ID,
		RequestedBy: actor.UserID,
		Percentage:  input.Percentage,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Role:        strings.TrimSpace(input.Role),
		Notes:       strings.TrimSpace(input.Notes),
		Status:      approvals.InitialStatus(subject.ManagerID() != ""),
	})
	if err != nil {
		return ResourceRequest{}, err
	}
	s.record(created.Status)

	title := fmt.Sprintf("Resource request: %s on %s", created.UserName, created.ProjectName)
	body := fmt.Sprintf("%d%% from %s to %s", created.Percentage, created.StartDate.Format("2006-01-02"), created.EndDate.Format("2006-01-02"))
	if created.Status == approvals.StatusPendingLM {
		s.notify(ctx, []string{created.LineManagerID}, notifications.TypeResourceRequestSubmitted, title, body, link(created))
	} else {
		s.notifyHR(ctx, notifications.TypeResourceRequestPendingHR, title, body, link(created))
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, actor auth.UserContext, requestID string) (Detail, error) {
	r, err := s.store.Get(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	if !canView(r, actor) {
		return Detail{}, ErrForbidden
	}
	history, err := s.store.History(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{ResourceRequest: r, History: history, CanDecide: approvals.CanDecide(r.subject(), actor)}, nil
}

func canView(r ResourceRequest, actor auth.UserContext) bool {
	if actor.HasAnyRole(auth.RoleHR) {
		return true
	}
	switch actor.UserID {
	case r.UserID, r.RequestedBy, r.LineManagerID, r.ProjectPMID:
		return true
	}
	return false
}

// List applies scope relative to the actor. Only hr and admin may list
// every request.
func (s *Service) List(ctx context.Context, actor auth.UserContext, scope string, filter Filter, limit, offset int) (ListResult, error) {
	switch scope {
	case approvals.ScopePending:
		pending := approvals.PendingFor(actor)
		filter.Pending = &pending
	case approvals.ScopeAll:
		if !actor.HasAnyRole(auth.RoleHR) {
			return ListResult{}, ErrForbidden
		}
	default:
		if !actor.HasAnyRole(auth.RoleHR) || scope == approvals.ScopeMine {
			filter.InvolvedUserID = actor.UserID
		}
	}
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Approve(ctx context.Context, actor auth.UserContext, requestID, comment string) (ResourceRequest, ResourceRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	t, err := approvals.Approve(before.subject(), actor, comment)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	var alloc *allocations.Allocation
	if t.Final() {
		requestRef := before.ID
		createdBy := actor.UserID
		alloc = &allocations.Allocation{
			UserID:            before.UserID,
			ProjectID:         before.ProjectID,
			Percentage:        before.Percentage,
			StartDate:         before.StartDate,
			EndDate:           before.EndDate,
			Role:              before.Role,
			Status:            allocations.StatusActive,
			ResourceRequestID: &requestRef,
			CreatedBy:         &createdBy,
		}
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t, alloc)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	s.record(after.Status)

	title := fmt.Sprintf("Resource request: %s on %s", after.UserName, after.ProjectName)
	if t.Final() {
		s.notify(ctx, []string{after.RequestedBy, after.UserID}, notifications.TypeResourceRequestApproved, title+" approved", "", link(after))
	} else {
		s.notifyHR(ctx, notifications.TypeResourceRequestPendingHR, title, "Approved by line manager, awaiting HR.", link(after))
		s.notify(ctx, []string{after.RequestedBy}, notifications.TypeResourceRequestPendingHR, title+" approved by line manager", "", link(after))
	}
	return before, after, nil
}

func (s *Service) Reject(ctx context.Context, actor auth.UserContext, requestID, reason string) (ResourceRequest, ResourceRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	t, err := approvals.Reject(before.subject(), actor, reason)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t, nil)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	s.record(after.Status)
	s.notify(ctx, []string{after.RequestedBy, after.UserID}, notifications.TypeResourceRequestRejected,
		fmt.Sprintf("Resource request: %s on %s rejected", after.UserName, after.ProjectName), t.Comment, link(after))
	return before, after, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.UserContext, requestID string) (ResourceRequest, ResourceRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	t, err := approvals.Cancel(before.subject(), actor)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t, nil)
	if err != nil {
		return before, ResourceRequest{}, err
	}
	s.record(after.Status)
	s.notify(ctx, others(actor.UserID, after.RequestedBy, after.UserID), notifications.TypeResourceRequestCancelled,
		fmt.Sprintf("Resource request: %s on %s cancelled", after.UserName, after.ProjectName), "", link(after))
	return before, after, nil
}

func link(r ResourceRequest) string {
	return "/resource-requests/" + r.ID
}

func others(actorID string, ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) record(status string) {
	if s.Metrics != nil {
		s.Metrics.Decision(approvals.KindResource, status)
	}
}

func (s *Service) notify(ctx context.Context, userIDs []string, ntype, title, body, link string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userIDs, ntype, title, body, link); err != nil {
		slog.Warn("resource request notification failed", "err", err)
	}
}

func (s *Service) notifyHR(ctx context.Context, ntype, title, body, link string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.NotifyRole(ctx, auth.RoleHR, ntype, title, body, link); err != nil {
		slog.Warn("resource request notification failed", "err", err)
	}
}
