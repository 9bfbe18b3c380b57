// Package notification fans journey events out to patient-facing sinks. The
// engine hands a Message to a Notifier after its transaction commits; delivery
// is best effort and never reports back to the caller.
package notification

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/journey/internal/platform/metrics"
)

// Event types carried on Message.Event.
const (
	EventStepStarted     = "step.started"
	EventStepCompleted   = "step.completed"
	EventStepTransferred = "step.transferred"
	EventStepReverted    = "step.reverted"
	EventStepCreated     = "step.created"
	EventNoteUpdated     = "note.updated"
	EventNoteRemoved     = "note.removed"
)

type Message struct {
	Event      string     `json:"event"`
	VisitID    uuid.UUID  `json:"visit_id"`
	VN         string     `json:"vn,omitempty"`
	StepID     *uuid.UUID `json:"step_id,omitempty"`
	Department string     `json:"department,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	TenantID   string     `json:"tenant_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`

	// PushToken is the device token registered on the visit, if any.
	PushToken string `json:"-"`
}

// Notifier is the fire-and-forget hook the engine calls.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Sink delivers one message to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher delivers each message to every sink on its own goroutine, under a
// context detached from the caller's cancellation and bounded by timeout.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With().Str("component", "notification").Logger(),
		metrics: m,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		for _, s := range d.sinks {
			d.deliver(sendCtx, s, msg)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, msg Message) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
		d.metrics.RecordNotification(s.Name(), err)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("sink", s.Name()).
				Str("event", msg.Event).
				Str("visit_id", msg.VisitID.String()).
				Msg("notification delivery failed")
		}
	}()
	err = s.Send(ctx, msg)
}

// Close waits for in-flight deliveries, then closes sinks that hold resources.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Msg("notification dispatcher closed with deliveries in flight")
	}

	var firstErr error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing %s sink: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) {}
