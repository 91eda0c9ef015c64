package audittest

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
)

// Recorder writes every event straight into an in-memory Store so tests can
// assert on it without waiting for a background writer.
type Recorder struct {
	*Store
}

// NewRecorder creates a synchronous recorder over a fresh Store
func NewRecorder() *Recorder {
	return &Recorder{Store: NewStore()}
}

var _ audit.Recorder = (*Recorder)(nil)

// Record stamps and stores the event; write errors are swallowed like the
// real recorder does.
func (r *Recorder) Record(ctx context.Context, event *audit.AuditEvent) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.WithOriginFrom(ctx)
	_ = r.Append(ctx, event)
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []audit.EventType {
	events := r.Events()
	types := make([]audit.EventType, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	return types
}
