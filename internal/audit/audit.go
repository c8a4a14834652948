// Package audit records authorization decisions for after-the-fact review.
// Recording is best effort: a sink failure is logged and never blocks or
// changes the decision itself.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one recorded authorization decision.
type Event struct {
	At         time.Time `json:"at"`
	SubjectID  string    `json:"subject_id"`
	Decision   string    `json:"decision"`
	Kind       string    `json:"kind,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Allowed    bool      `json:"allowed"`
}

// Sink persists events. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Recorder stamps and forwards events to a sink.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// Record appends one event. Failures are logged, not returned: audit must
// never fail a request.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.sink == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if err := r.sink.Append(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "audit append failed",
			"decision", event.Decision, "error", err)
	}
}
