package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slopecast/slopecast-api/internal/core"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// ErrMemJobNotFound is returned by MemJobStore.GetByID for unknown ids.
var ErrMemJobNotFound = errors.New("job not found")

// MemJobStore is an in-memory core.JobRepository with the same transition rules as the
// Postgres store. ClaimErr, when set, is returned by ClaimNextDue until cleared.
type MemJobStore struct {
	Now func() time.Time

	mu       sync.Mutex
	jobs     map[string]*model.Job
	order    []string
	claimErr error
	marks    []string
}

var _ core.JobRepository = (*MemJobStore)(nil)

// NewMemJobStore creates an empty store using now as its clock.
func NewMemJobStore(now func() time.Time) *MemJobStore {
	if now == nil {
		now = time.Now
	}
	return &MemJobStore{Now: now, jobs: make(map[string]*model.Job)}
}

// SetClaimErr makes ClaimNextDue fail with err until called again with nil.
func (s *MemJobStore) SetClaimErr(err error) {
	s.mu.Lock()
	s.claimErr = err
	s.mu.Unlock()
}

// Marks returns the transitions applied so far, in order, as "<status>:<id>".
func (s *MemJobStore) Marks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.marks...)
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.Metadata = append(json.RawMessage(nil), j.Metadata...)
	return &cp
}

// Create implements core.JobRepository.
func (s *MemJobStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := req.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	now := s.Now().UTC()
	j := &model.Job{
		ID:        id,
		Kind:      req.Kind,
		Status:    model.JobStatusPending,
		URL:       req.URL,
		Timeout:   time.Duration(req.TimeoutMillis) * time.Millisecond,
		NextRunAt: now,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = j
	s.order = append(s.order, id)
	return cloneJob(j), nil
}

// GetByID implements core.JobRepository.
func (s *MemJobStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrMemJobNotFound
	}
	return cloneJob(j), nil
}

// ClaimNextDue implements core.JobRepository.
func (s *MemJobStore) ClaimNextDue(context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	now := s.Now().UTC()
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status != model.JobStatusPending || j.NextRunAt.After(now) {
			continue
		}
		j.Status = model.JobStatusActive
		j.Attempts++
		started := now
		j.StartedAt = &started
		j.UpdatedAt = now
		return cloneJob(j), nil
	}
	return nil, model.ErrNoJobsAvailable
}

func (s *MemJobStore) transition(id string, apply func(j *model.Job, now time.Time)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.JobStatusActive {
		return false
	}
	now := s.Now().UTC()
	apply(j, now)
	j.UpdatedAt = now
	s.marks = append(s.marks, string(j.Status)+":"+id)
	return true
}

// MarkDone implements core.JobRepository.
func (s *MemJobStore) MarkDone(_ context.Context, id string) (bool, error) {
	return s.transition(id, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusDone
		j.FinishedAt = &now
		j.LastError = nil
	}), nil
}

// MarkRetry implements core.JobRepository.
func (s *MemJobStore) MarkRetry(_ context.Context, p core.MarkRetryParams) (bool, error) {
	if p.Delay < 0 {
		return false, errors.New("retry delay must be >= 0")
	}
	return s.transition(p.ID, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusPending
		j.NextRunAt = now.Add(p.Delay)
		msg := p.ErrMsg
		j.LastError = &msg
	}), nil
}

// MarkError implements core.JobRepository.
func (s *MemJobStore) MarkError(_ context.Context, id, errMsg string) (bool, error) {
	return s.transition(id, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusError
		j.FinishedAt = &now
		j.LastError = &errMsg
	}), nil
}

// CountByStatus implements core.JobRepository.
func (s *MemJobStore) CountByStatus(context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.JobStats
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobStatusPending:
			st.Pending++
		case model.JobStatusActive:
			st.Active++
		case model.JobStatusDone:
			st.Done++
		case model.JobStatusError:
			st.Error++
		}
	}
	return &st, nil
}

// ListPending implements core.JobRepository.
func (s *MemJobStore) ListPending(_ context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0)
	for _, id := range s.order {
		if j := s.jobs[id]; j.Status == model.JobStatusPending {
			out = append(out, cloneJob(j))
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindActive implements core.JobRepository.
func (s *MemJobStore) FindActive(context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if j := s.jobs[id]; j.Status == model.JobStatusActive {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

// RecoverActive implements core.JobRepository.
func (s *MemJobStore) RecoverActive(_ context.Context, maxAttempts int) (core.RecoverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := s.Now().UTC()
	var res core.RecoverResult
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status != model.JobStatusActive {
			continue
		}
		j.NextRunAt = now
		j.UpdatedAt = now
		if j.Attempts >= maxAttempts {
			msg := "interrupted"
			j.Status = model.JobStatusError
			j.FinishedAt = &now
			j.LastError = &msg
			s.marks = append(s.marks, "error:"+id)
			res.Failed++
			continue
		}
		j.Status = model.JobStatusPending
		res.Requeued++
	}
	return res, nil
}
