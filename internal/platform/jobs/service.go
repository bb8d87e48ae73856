package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	JobAllocationExpiry  = "allocation_expiry"
	JobTaskDueReminders  = "task_due_reminders"
	JobUtilizationReport = "utilization_report"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

type RunStore interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
	ListRuns(ctx context.Context, jobType string, limit int) ([]Run, error)
}

type Recorder interface {
	JobRun(job, status string)
}

type Service struct {
	Runs     RunStore
	Recorder Recorder

	queue     chan job
	mu        sync.Mutex
	schedules []schedule
	wg        sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	jobType  string
	interval time.Duration
	run      RunFunc
}

func New(runs RunStore, recorder Recorder) *Service {
	return &Service{
		Runs:     runs,
		Recorder: recorder,
		queue:    make(chan job, 128),
	}
}

// Every registers a recurring job. Must be called before Start. Intervals
// <= 0 disable the schedule.
func (s *Service) Every(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	s.schedules = append(s.schedules, schedule{jobType: jobType, interval: interval, run: run})
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sched := range s.schedules {
		s.wg.Add(1)
		go func(sched schedule) {
			defer s.wg.Done()
			s.tick(ctx, sched)
		}(sched)
	}
}

// Wait blocks until the worker and schedulers have exited after ctx is done.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) Recent(ctx context.Context, jobType string, limit int) ([]Run, error) {
	if s.Runs == nil {
		return nil, nil
	}
	return s.Runs.ListRuns(ctx, jobType, limit)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context, sched schedule) {
	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sched.jobType, sched.run)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.Runs != nil {
		id, err := s.Runs.StartRun(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "partial": details}
	}
	if s.Recorder != nil {
		s.Recorder.JobRun(j.Type, status)
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}
