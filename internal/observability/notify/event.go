// Package notify defines the outbound notification contract for operator-facing events.
package notify

import (
	"context"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

// Sink describes a destination capable of consuming admin events.
type Sink interface {
	Send(ctx context.Context, event model.AdminEvent) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event model.AdminEvent) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, event model.AdminEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
