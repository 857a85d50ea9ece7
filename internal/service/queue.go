package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/slopecast/slopecast-api/internal/core"
	domainjob "github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	apperrors "github.com/slopecast/slopecast-api/internal/errors"
)

// statusQueueLimit caps the pending jobs listed in a status snapshot.
const statusQueueLimit = 50

// Kicker wakes the queue processor so a freshly created job is considered immediately.
type Kicker interface {
	Kick()
}

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Repo    core.JobRepository      // Required
	Gate    *domainjob.Gate         // Required
	Waiters *domainjob.WaiterBridge // Required
	Kicker  Kicker                  // Optional: without it jobs wait for the next tick
	Logger  *slog.Logger            // Optional
}

// QueueService is the enqueue and status surface of the job queue.
type QueueService struct {
	repo    core.JobRepository
	gate    *domainjob.Gate
	waiters *domainjob.WaiterBridge
	kicker  Kicker
	logger  *slog.Logger
}

// NewQueueService constructs a QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("rate gate is required")
	}
	if opts.Waiters == nil {
		return nil, errors.New("waiter bridge is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueService{
		repo:    opts.Repo,
		gate:    opts.Gate,
		waiters: opts.Waiters,
		kicker:  opts.Kicker,
		logger:  logger.With("component", "queue_service"),
	}, nil
}

// EnqueueHTTP creates an http job and returns a handle the caller can Wait on. The waiter is
// registered before the job becomes claimable so a fast completion is never missed.
func (s *QueueService) EnqueueHTTP(
	ctx context.Context,
	url string,
	timeoutMillis int,
	metadata json.RawMessage,
) (*domainjob.Handle, error) {
	req := &model.CreateJobRequest{
		ID:            uuid.NewString(),
		Kind:          model.JobKindHTTP,
		URL:           url,
		TimeoutMillis: timeoutMillis,
		Metadata:      metadata,
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	handle := s.waiters.Register(req.ID)
	j, err := s.repo.Create(ctx, req)
	if err != nil {
		s.waiters.Reject(req.ID, err)
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.DebugContext(ctx, "job enqueued", "job_id", j.ID, "url", j.URL)

	if s.kicker != nil {
		s.kicker.Kick()
	}
	return handle, nil
}

// GetStatus returns a snapshot of the queue: the rate in effect, counts, the active job and
// the next pending jobs in dispatch order.
func (s *QueueService) GetStatus(ctx context.Context) (*model.QueueStatus, error) {
	cpm, interval, err := s.gate.Rate(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "rate settings unavailable, reporting last known", "error", err)
	}

	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	active, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	pending, err := s.repo.ListPending(ctx, statusQueueLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	status := &model.QueueStatus{
		CallsPerMinute: cpm,
		IntervalMillis: interval.Milliseconds(),
		PendingCount:   stats.Pending,
		ActiveCount:    stats.Active,
		ActiveJob:      active,
		Queue:          pending,
	}
	if next, ok := s.gate.NextAllowedAt(); ok {
		status.NextAllowedAt = &next
	}
	return status, nil
}
