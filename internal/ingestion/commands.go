package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supplyline/internal/game"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// CommandHandler is the engine surface commands are dispatched to.
// Satisfied by registry.Engine.
type CommandHandler interface {
	SubmitRoundEnd(ctx context.Context, lobbyID, player uuid.UUID, quantity int64) error
	StartGame(ctx context.Context, lobbyID uuid.UUID, roster []uuid.UUID, classes map[uuid.UUID]game.ClassID) error
	StopGame(ctx context.Context, lobbyID uuid.UUID) error
}

const (
	commandStream  = "SUPPLY_GAME_COMMANDS"
	subjectOrder   = "supply.games.commands.order"
	subjectStart   = "supply.games.commands.start"
	subjectStop    = "supply.games.commands.stop"
	commandSubject = "supply.games.commands.>"
)

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type orderCommandJSON struct {
	LobbyID  string `json:"lobby_id"`
	PlayerID string `json:"player_id"`
	Quantity int64  `json:"quantity"`
}

type startCommandJSON struct {
	LobbyID string            `json:"lobby_id"`
	Players []string          `json:"players"`
	Classes map[string]uint32 `json:"classes"`
}

type stopCommandJSON struct {
	LobbyID string `json:"lobby_id"`
}

// OrderCommand is a parsed round-end submission from the command stream.
type OrderCommand struct {
	LobbyID  uuid.UUID
	PlayerID uuid.UUID
	Quantity int64
}

// StartCommand is a parsed game-start request from the command stream.
type StartCommand struct {
	LobbyID uuid.UUID
	Players []uuid.UUID
	Classes map[uuid.UUID]game.ClassID
}

// ParseOrderCommand validates and converts an order payload.
func ParseOrderCommand(data []byte) (OrderCommand, error) {
	var j orderCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return OrderCommand{}, fmt.Errorf("parse order command: %w", err)
	}
	lobbyID, err := uuid.Parse(j.LobbyID)
	if err != nil {
		return OrderCommand{}, fmt.Errorf("parse lobby_id: %w", err)
	}
	playerID, err := uuid.Parse(j.PlayerID)
	if err != nil {
		return OrderCommand{}, fmt.Errorf("parse player_id: %w", err)
	}
	if j.Quantity < 0 {
		return OrderCommand{}, fmt.Errorf("quantity must not be negative")
	}
	return OrderCommand{LobbyID: lobbyID, PlayerID: playerID, Quantity: j.Quantity}, nil
}

// ParseStartCommand validates and converts a start payload.
func ParseStartCommand(data []byte) (StartCommand, error) {
	var j startCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return StartCommand{}, fmt.Errorf("parse start command: %w", err)
	}
	lobbyID, err := uuid.Parse(j.LobbyID)
	if err != nil {
		return StartCommand{}, fmt.Errorf("parse lobby_id: %w", err)
	}

	players := make([]uuid.UUID, 0, len(j.Players))
	for _, p := range j.Players {
		id, err := uuid.Parse(p)
		if err != nil {
			return StartCommand{}, fmt.Errorf("parse player %q: %w", p, err)
		}
		players = append(players, id)
	}

	var classes map[uuid.UUID]game.ClassID
	if j.Classes != nil {
		classes = make(map[uuid.UUID]game.ClassID, len(j.Classes))
		for p, class := range j.Classes {
			id, err := uuid.Parse(p)
			if err != nil {
				return StartCommand{}, fmt.Errorf("parse class player %q: %w", p, err)
			}
			classes[id] = game.ClassID(class)
		}
	}
	return StartCommand{LobbyID: lobbyID, Players: players, Classes: classes}, nil
}

func parseStopCommand(data []byte) (uuid.UUID, error) {
	var j stopCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return uuid.Nil, fmt.Errorf("parse stop command: %w", err)
	}
	lobbyID, err := uuid.Parse(j.LobbyID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse lobby_id: %w", err)
	}
	return lobbyID, nil
}

// CommandSubscriber consumes game commands from JetStream and feeds
// them into the engine. An alternative front door to the HTTP API for
// automated drivers.
type CommandSubscriber struct {
	js       jetstream.JetStream
	handler  CommandHandler
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewCommandSubscriber(js jetstream.JetStream, handler CommandHandler, log zerolog.Logger) *CommandSubscriber {
	return &CommandSubscriber{js: js, handler: handler, log: log}
}

// Subscribe creates the durable consumer and starts dispatching.
// Malformed and rejected commands are acked; only persistence failures
// are naked for redelivery.
func (cs *CommandSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := cs.js.CreateOrUpdateConsumer(ctx, commandStream, jetstream.ConsumerConfig{
		Durable:       "supplyline-commands",
		FilterSubject: commandSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create command consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := cs.dispatch(ctx, msg.Subject(), msg.Data()); err != nil {
			if game.KindOf(err) == game.KindPersistence {
				cs.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("command deferred")
				msg.Nak()
				return
			}
			cs.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("command rejected")
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume commands: %w", err)
	}

	cs.consumer = consumeCtx
	cs.log.Info().Str("subject", commandSubject).Msg("command subscriber started")
	return nil
}

func (cs *CommandSubscriber) dispatch(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case subjectOrder:
		cmd, err := ParseOrderCommand(data)
		if err != nil {
			return err
		}
		return cs.handler.SubmitRoundEnd(ctx, cmd.LobbyID, cmd.PlayerID, cmd.Quantity)

	case subjectStart:
		cmd, err := ParseStartCommand(data)
		if err != nil {
			return err
		}
		return cs.handler.StartGame(ctx, cmd.LobbyID, cmd.Players, cmd.Classes)

	case subjectStop:
		lobbyID, err := parseStopCommand(data)
		if err != nil {
			return err
		}
		return cs.handler.StopGame(ctx, lobbyID)

	default:
		return fmt.Errorf("unknown command subject %s", subject)
	}
}

// Stop halts consumption.
func (cs *CommandSubscriber) Stop() {
	if cs.consumer != nil {
		cs.consumer.Stop()
	}
}

// EnsureCommandStream creates the inbound command stream if absent.
func EnsureCommandStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      commandStream,
		Subjects:  []string{commandSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create command stream: %w", err)
	}
	return nil
}
