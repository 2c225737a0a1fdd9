package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/weftwork/weft/core/workflow"
)

func startedEvent() workflow.Event {
	return workflow.WorkflowStarted{ExecutionRef: workflow.ExecutionRef{
		WorkflowID:  "wf-1",
		ExecutionID: "exec-1",
		Status:      workflow.StatusRunning,
	}}
}

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent(workflow.StepFailed{
		ExecutionRef: workflow.ExecutionRef{WorkflowID: "wf-1", ExecutionID: "exec-1", Status: workflow.StatusRunning},
		StepRef:      workflow.StepRef{StepID: "deploy", Agent: "ops"},
		Error:        "boom",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded struct {
		Type  string `json:"type"`
		Event struct {
			WorkflowID string `json:"workflow_id"`
			StepID     string `json:"step_id"`
			Agent      string `json:"agent"`
			Error      string `json:"error"`
		} `json:"event"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != string(workflow.EventStepFailed) {
		t.Fatalf("unexpected type: %s", decoded.Type)
	}
	if decoded.Event.StepID != "deploy" || decoded.Event.Agent != "ops" || decoded.Event.Error != "boom" {
		t.Fatalf("unexpected payload: %+v", decoded.Event)
	}
}

func TestSubjectFor(t *testing.T) {
	cases := []struct {
		base string
		typ  workflow.EventType
		want string
	}{
		{"weft.workflow", workflow.EventWorkflowStarted, "weft.workflow.started"},
		{"weft.workflow", workflow.EventStepFailed, "weft.workflow.step.failed"},
		{"", workflow.EventWorkflowCompleted, "workflow.completed"},
	}
	for _, tc := range cases {
		if got := subjectFor(tc.base, tc.typ); got != tc.want {
			t.Fatalf("subjectFor(%q, %q) = %q, want %q", tc.base, tc.typ, got, tc.want)
		}
	}
}

func TestLogSink(t *testing.T) {
	if err := (LogSink{}).Publish(context.Background(), startedEvent()); err != nil {
		t.Fatalf("log sink publish: %v", err)
	}
}

type captureSink struct {
	events []workflow.Event
	err    error
}

func (c *captureSink) Publish(_ context.Context, evt workflow.Event) error {
	c.events = append(c.events, evt)
	return c.err
}

func TestMultiSinkFanout(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{err: errors.New("sink down")}
	c := &captureSink{}
	m := MultiSink{a, b, c}

	err := m.Publish(context.Background(), startedEvent())
	if err == nil || err.Error() != "sink down" {
		t.Fatalf("expected first sink error, got %v", err)
	}
	for i, s := range []*captureSink{a, b, c} {
		if len(s.events) != 1 {
			t.Fatalf("sink %d did not receive the event", i)
		}
	}
}
