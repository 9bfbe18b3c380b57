package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehr/journey/internal/platform/websocket"
)

// LogSink writes every message to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("event", msg.Event).
		Str("visit_id", msg.VisitID.String()).
		Str("vn", msg.VN).
		Str("department", msg.Department).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("patient notification")
	return nil
}

// EventPublisher is satisfied by *websocket.Hub.
type EventPublisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// HubSink mirrors messages onto the visit topic and, when the step has a
// department, the department topic.
type HubSink struct {
	publisher EventPublisher
}

func NewHubSink(p EventPublisher) *HubSink {
	return &HubSink{publisher: p}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Send(ctx context.Context, msg Message) error {
	event := websocket.Event{
		Type:      msg.Event,
		VisitID:   msg.VisitID.String(),
		Title:     msg.Title,
		Body:      msg.Body,
		Timestamp: msg.OccurredAt,
	}
	if msg.StepID != nil {
		event.StepID = msg.StepID.String()
	}

	event.Topic = websocket.VisitTopic(msg.VisitID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		return err
	}
	if msg.Department != "" {
		event.Topic = websocket.DepartmentTopic(msg.Department)
		return s.publisher.Publish(ctx, event)
	}
	return nil
}
