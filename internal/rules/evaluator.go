package rules

import (
	"context"

	"supplyline/internal/broadcast"
	"supplyline/internal/game"
	"supplyline/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SnapshotReader loads persisted round rows; SingleChange conditions
// diff the live state against the previous round's row.
type SnapshotReader interface {
	LoadRound(ctx context.Context, gameID uuid.UUID, round int64) (*game.Snapshot, error)
}

// SettingsWriter persists a settings replacement triggered by a
// ChangeSettings action.
type SettingsWriter interface {
	UpdateLobbySettings(ctx context.Context, id uuid.UUID, s game.Settings) error
}

// Publisher delivers one broadcast message; failures are the caller's
// concern (the engine logs and continues).
type Publisher func(msg broadcast.Message)

// Evaluator runs a lobby's configured event list against freshly
// advanced round state. Events run in stored order, so later events
// observe the effects of earlier ones within the same pass.
type Evaluator struct {
	snapshots SnapshotReader
	settings  SettingsWriter
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewEvaluator(snapshots SnapshotReader, settings SettingsWriter, metrics *observability.Metrics, log zerolog.Logger) *Evaluator {
	return &Evaluator{snapshots: snapshots, settings: settings, metrics: metrics, log: log}
}

// Evaluate processes every event: condition first, then its actions in
// order against the target set the condition produced.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	lobbyID uuid.UUID,
	events game.GameEvents,
	rs *game.RoundState,
	publish Publisher,
) error {
	for _, event := range events.Events {
		met, targets, err := e.evaluateCondition(ctx, lobbyID, event.Condition, rs)
		if err != nil {
			return err
		}
		if !met {
			continue
		}

		e.metrics.RecordEventFired(string(event.Condition.Kind))
		e.log.Debug().
			Str("lobby_id", lobbyID.String()).
			Str("event", event.Name).
			Int("targets", len(targets)).
			Msg("game event fired")

		for _, action := range event.Actions {
			if err := e.applyAction(ctx, lobbyID, action, targets, rs, publish); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Evaluator) evaluateCondition(
	ctx context.Context,
	lobbyID uuid.UUID,
	cond game.EventCondition,
	rs *game.RoundState,
) (bool, []uuid.UUID, error) {
	switch cond.Kind {
	case game.CondRoundMet:
		return evaluateRoundMet(rs, cond.Round), allPlayers(rs, cond.Round == rs.Round), nil

	case game.CondValueExceed:
		met, targets, err := evaluateValueExceed(rs, cond)
		return met, targets, err

	case game.CondSingleChange:
		prior, err := e.snapshots.LoadRound(ctx, lobbyID, rs.Round-1)
		if err != nil {
			return false, nil, game.WrapErr(game.KindPersistence, err, "load prior round for single-change event")
		}
		return evaluateSingleChange(rs, prior, cond)

	default:
		return false, nil, game.Errorf(game.KindConfig, "unknown event condition %q", cond.Kind)
	}
}

func evaluateRoundMet(rs *game.RoundState, round int64) bool {
	return rs.Round == round && len(rs.UserStates) > 0
}

func allPlayers(rs *game.RoundState, met bool) []uuid.UUID {
	if !met {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(rs.UserStates))
	for id := range rs.UserStates {
		ids = append(ids, id)
	}
	return ids
}

func evaluateValueExceed(rs *game.RoundState, cond game.EventCondition) (bool, []uuid.UUID, error) {
	read, err := resourceReader(cond.Resource)
	if err != nil {
		return false, nil, err
	}

	var targets []uuid.UUID
	switch cond.MetBy {
	case game.MetBySinglePlayer:
		for id, us := range rs.UserStates {
			if read(&us) > cond.Value {
				targets = append(targets, id)
			}
		}
		return len(targets) > 0, targets, nil

	case game.MetByAverage:
		var sum int64
		for id, us := range rs.UserStates {
			sum += read(&us)
			targets = append(targets, id)
		}
		if len(targets) == 0 {
			return false, nil, nil
		}
		return sum/int64(len(targets)) > cond.Value, targets, nil

	case game.MetByAllPlayers:
		for id, us := range rs.UserStates {
			if read(&us) < cond.Value {
				return false, targets, nil
			}
			targets = append(targets, id)
		}
		return len(targets) > 0, targets, nil

	case game.MetByPlayerPercent:
		// Integer division before the multiply, as the original schema
		// revision computed it. Under-counts for small lobbies (1 of 3
		// exceeding evaluates to 0%); kept until product says otherwise.
		var exceeding int64
		for id, us := range rs.UserStates {
			if read(&us) > cond.Value {
				exceeding++
				targets = append(targets, id)
			}
		}
		total := int64(len(rs.UserStates))
		if total == 0 {
			return false, nil, nil
		}
		return (exceeding/total)*100 > cond.Percent, targets, nil

	default:
		return false, nil, game.Errorf(game.KindConfig, "unknown met-by policy %q", cond.MetBy)
	}
}

func evaluateSingleChange(rs *game.RoundState, prior *game.Snapshot, cond game.EventCondition) (bool, []uuid.UUID, error) {
	read, err := resourceReader(cond.Resource)
	if err != nil {
		return false, nil, err
	}

	var targets []uuid.UUID
	for id, us := range rs.UserStates {
		prev, ok := prior.UserStates[id]
		if !ok {
			// Player joined after the prior round was persisted; skip.
			continue
		}
		delta := read(&us) - read(&prev)
		if delta < 0 {
			delta = -delta
		}
		if delta > cond.Value {
			targets = append(targets, id)
		}
	}
	return len(targets) > 0, targets, nil
}

func (e *Evaluator) applyAction(
	ctx context.Context,
	lobbyID uuid.UUID,
	action game.EventAction,
	targets []uuid.UUID,
	rs *game.RoundState,
	publish Publisher,
) error {
	switch action.Kind {
	case game.ActionShowMessage:
		msg := broadcast.Message{Kind: broadcast.KindPopUp, LobbyID: lobbyID, Text: action.Message}
		if action.Target == game.TargetEventTarget {
			for _, id := range targets {
				publish(msg.Targeted(id))
			}
		} else {
			publish(msg)
		}
		return nil

	case game.ActionChangeSettings:
		if action.NewSettings == nil {
			return game.Errorf(game.KindConfig, "change-settings action carries no settings")
		}
		if err := e.settings.UpdateLobbySettings(ctx, lobbyID, *action.NewSettings); err != nil {
			return game.WrapErr(game.KindPersistence, err, "persist event settings change")
		}
		rs.Settings = *action.NewSettings
		publish(broadcast.Message{
			Kind:     broadcast.KindSettingsChanged,
			LobbyID:  lobbyID,
			Settings: action.NewSettings,
		})
		return nil

	case game.ActionAddResource:
		grant := func(id uuid.UUID) error {
			us, ok := rs.UserStates[id]
			if !ok {
				return game.Errorf(game.KindInternal, "expected user state for event target %s", id)
			}
			ref, ok := game.ResourceRef(&us, action.Resource)
			if !ok {
				return game.Errorf(game.KindConfig, "unknown resource %q", action.Resource)
			}
			*ref += action.Value
			rs.UserStates[id] = us
			return nil
		}

		msg := broadcast.Message{
			Kind:     broadcast.KindResourceGranted,
			LobbyID:  lobbyID,
			Resource: action.Resource,
			Value:    action.Value,
		}

		if action.Target == game.TargetEventTarget {
			for _, id := range targets {
				if err := grant(id); err != nil {
					return err
				}
				publish(msg.Targeted(id))
			}
			return nil
		}
		for id := range rs.UserStates {
			if err := grant(id); err != nil {
				return err
			}
		}
		publish(msg)
		return nil

	default:
		return game.Errorf(game.KindConfig, "unknown event action %q", action.Kind)
	}
}

// resourceReader returns the shared accessor for one ledger field; the
// same table drives conditions and actions so the two cannot drift.
func resourceReader(r game.Resource) (func(*game.UserState) int64, error) {
	var zero game.UserState
	if _, ok := game.ResourceRef(&zero, r); !ok {
		return nil, game.Errorf(game.KindConfig, "unknown resource %q", r)
	}
	return func(us *game.UserState) int64 {
		ref, _ := game.ResourceRef(us, r)
		return *ref
	}, nil
}
