package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ehr/journey/internal/platform/metrics"
)

// PushConfig configures the HTTP push gateway sink.
type PushConfig struct {
	Endpoint string
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type pushPayload struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// PushSink posts messages for visits with a registered device token to a push
// gateway. A circuit breaker stops hammering a gateway that is down.
type PushSink struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewPushSink(cfg PushConfig, client *http.Client, logger zerolog.Logger, m *metrics.Metrics) *PushSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			m.SetCircuitBreakerState(name, int(to))
		},
	}

	return &PushSink{
		endpoint: cfg.Endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *PushSink) Name() string { return "push" }

// Send is a no-op for visits without a push token.
func (s *PushSink) Send(ctx context.Context, msg Message) error {
	if msg.PushToken == "" {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		To:    msg.PushToken,
		Title: msg.Title,
		Body:  msg.Body,
		Data: map[string]string{
			"event":    msg.Event,
			"visit_id": msg.VisitID.String(),
			"vn":       msg.VN,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	// Rejected tokens are reported to the caller but count as breaker successes.
	var rejected error
	_, err = s.breaker.Execute(func() (interface{}, error) {
		err := s.post(ctx, payload)
		var se *GatewayStatusError
		if errors.As(err, &se) && se.Rejected() {
			rejected = err
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("push gateway unavailable: %w", err)
	}
	if err != nil {
		return err
	}
	return rejected
}

// GatewayStatusError is a non-2xx reply from the push gateway.
type GatewayStatusError struct {
	StatusCode int
}

func (e *GatewayStatusError) Error() string {
	return fmt.Sprintf("push gateway returned status %d", e.StatusCode)
}

// Rejected reports a 4xx reply other than 429, which is about the message or
// token rather than the gateway's health.
func (e *GatewayStatusError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func (s *PushSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &GatewayStatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (s *PushSink) State() gobreaker.State {
	return s.breaker.State()
}
