// Package bus provides event-sink transports for workflow lifecycle events.
// Delivery through every sink is best-effort fan-out; none of them persist
// events or guarantee ordering to consumers.
package bus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/workflow"
)

// envelope is the JSON wire shape shared by all transports.
type envelope struct {
	Type  workflow.EventType `json:"type"`
	Event workflow.Event     `json:"event"`
}

func encodeEvent(evt workflow.Event) ([]byte, error) {
	return json.Marshal(envelope{Type: evt.EventType(), Event: evt})
}

// subjectFor maps an event type onto a transport subject under a base,
// e.g. base "weft.workflow" and type "workflow.step.failed" yield
// "weft.workflow.step.failed".
func subjectFor(base string, t workflow.EventType) string {
	suffix := strings.TrimPrefix(string(t), "workflow.")
	if base == "" {
		return string(t)
	}
	return base + "." + suffix
}

// LogSink writes events through the logging package. It is the default sink
// for the daemon when no transport is configured.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, evt workflow.Event) error {
	ref := evt.Execution()
	logging.Info("events", string(evt.EventType()),
		"workflow_id", ref.WorkflowID,
		"execution_id", ref.ExecutionID,
		"status", string(ref.Status))
	return nil
}

// MultiSink fans one event out to several sinks. Each sink is attempted;
// the first error is returned after all sinks have seen the event.
type MultiSink []workflow.Sink

func (m MultiSink) Publish(ctx context.Context, evt workflow.Event) error {
	var firstErr error
	for _, s := range m {
		if err := s.Publish(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
