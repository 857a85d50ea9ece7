// Package mocks provides gomock implementations of the repository ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().CountByStatus(gomock.Any()).Return(&model.JobStats{}, nil)
package mocks

// MockJobRepository covers the job queue store:
// Create, GetByID, ClaimNextDue, MarkDone, MarkRetry, MarkError, CountByStatus, ListPending, FindActive, RecoverActive
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/slopecast/slopecast-api/internal/core JobRepository

// MockAdminEventRepository covers admin event persistence: Insert, List, DeleteOlderThan
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=admin_event_repository_mock.go github.com/slopecast/slopecast-api/internal/core AdminEventRepository

// MockFreshnessStore covers per-model freshness markers: LastFetched, MarkFetched
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=freshness_store_mock.go github.com/slopecast/slopecast-api/internal/core FreshnessStore
