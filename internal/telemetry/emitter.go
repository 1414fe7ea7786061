// Package telemetry defines the event emitter used by the auth flows and the
// fan-out across concrete sinks (OTel logs, Kafka).
package telemetry

import (
	"context"

	"lm-identity/internal/telemetry/domain"
)

// EventEmitter emits telemetry events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Multi fans an event out to every emitter. Nil emitters are skipped; the
// first error is returned after all emitters have been tried.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *domain.Event) error {
	var firstErr error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
