package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/workflow"
)

var errNilNatsSink = errors.New("nats sink not initialized")

// NatsSink publishes workflow lifecycle events to NATS as JSON, one subject
// per event type under a common base subject.
type NatsSink struct {
	nc   *nats.Conn
	base string
}

// NewNatsSink dials NATS at the provided URL. Events are published under
// baseSubject (e.g. "weft.workflow" gives "weft.workflow.started").
func NewNatsSink(url, baseSubject string) (*NatsSink, error) {
	opts := []nats.Option{
		nats.Name("weft-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Error("bus", "disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "NATS connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsSink{nc: nc, base: baseSubject}, nil
}

// Publish sends one event. Errors are returned to the caller, who treats
// delivery as best-effort.
func (s *NatsSink) Publish(_ context.Context, evt workflow.Event) error {
	if s == nil || s.nc == nil {
		return errNilNatsSink
	}
	data, err := encodeEvent(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.nc.Publish(subjectFor(s.base, evt.EventType()), data)
}

// IsConnected reports whether the underlying connection is up.
func (s *NatsSink) IsConnected() bool {
	return s != nil && s.nc != nil && s.nc.IsConnected()
}

// Close shuts down the underlying NATS connection.
func (s *NatsSink) Close() {
	if s != nil && s.nc != nil {
		s.nc.Close()
	}
}
