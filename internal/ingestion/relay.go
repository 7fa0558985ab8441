package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supplyline/internal/broadcast"
	"supplyline/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Relay republishes broadcast bus messages to JetStream for downstream
// consumers (dashboards, recorders). Publishing happens after the
// in-process fan-out and is best effort: a failed publish is logged,
// never propagated into game state.
//
// Subjects follow the pattern: supply.games.events.{kind}.{lobby_id}
type Relay struct {
	js      jetstream.JetStream
	input   chan broadcast.Message
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewRelay(js jetstream.JetStream, buffer int, metrics *observability.Metrics, log zerolog.Logger) *Relay {
	if buffer < 1 {
		buffer = 1
	}
	return &Relay{
		js:      js,
		input:   make(chan broadcast.Message, buffer),
		metrics: metrics,
		log:     log,
	}
}

// Relay enqueues a message for publishing. Non-blocking: when the
// buffer is full the message is dropped, since the engine must never
// stall on the relay.
func (r *Relay) Relay(msg broadcast.Message) {
	select {
	case r.input <- msg:
	default:
		if r.metrics != nil {
			r.metrics.RelayErrors.Inc()
		}
		r.log.Warn().
			Str("kind", string(msg.Kind)).
			Str("lobby_id", msg.LobbyID.String()).
			Msg("relay buffer full, message dropped")
	}
}

// Run drains the buffer until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-r.input:
			if err := r.publish(ctx, msg); err != nil {
				if r.metrics != nil {
					r.metrics.RelayErrors.Inc()
				}
				r.log.Warn().Err(err).
					Str("kind", string(msg.Kind)).
					Str("lobby_id", msg.LobbyID.String()).
					Msg("relay publish failed")
				continue
			}
			if r.metrics != nil {
				r.metrics.RelayPublishes.WithLabelValues(string(msg.Kind)).Inc()
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, msg broadcast.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	subject := fmt.Sprintf("supply.games.events.%s.%s", msg.Kind, msg.LobbyID)
	_, err = r.js.Publish(ctx, subject, data)
	return err
}

// EnsureEventStream creates the outbound events stream if absent.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SUPPLY_GAME_EVENTS",
		Subjects:  []string{"supply.games.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
