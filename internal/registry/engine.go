package registry

import (
	"context"
	"time"

	"supplyline/internal/broadcast"
	"supplyline/internal/game"
	"supplyline/internal/observability"
	"supplyline/internal/rules"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence surface the engine needs. Satisfied by
// persistence.Store; tests substitute an in-memory fake.
type Store interface {
	SaveRound(ctx context.Context, snap *game.Snapshot) error
	LoadLatestRound(ctx context.Context, gameID uuid.UUID) (*game.Snapshot, error)
	GetLobby(ctx context.Context, id uuid.UUID) (*game.Lobby, error)
	StartedLobbies(ctx context.Context) ([]game.Lobby, error)
	SetLobbyStarted(ctx context.Context, id uuid.UUID, started bool) error
}

// EventEvaluator runs configured game events after a round transition.
// Satisfied by rules.Evaluator.
type EventEvaluator interface {
	Evaluate(ctx context.Context, lobbyID uuid.UUID, events game.GameEvents, rs *game.RoundState, publish rules.Publisher) error
}

// StatsProvider replays persisted history into the statistics bundle
// attached to the game-end payload. Satisfied by query.Service.
type StatsProvider interface {
	AllStats(ctx context.Context, gameID uuid.UUID) (map[string]map[uuid.UUID][]int64, error)
}

// RelayPublisher forwards broadcast messages to an external stream.
// Optional; nil means in-process fan-out only.
type RelayPublisher interface {
	Relay(msg broadcast.Message)
}

// Engine owns every live lobby and drives the round-transition
// cascade: submission, settlement, persistence, event evaluation, and
// broadcast. All per-lobby work runs under the lobby handle's mutex.
type Engine struct {
	registry  *Registry
	store     Store
	evaluator EventEvaluator
	stats     StatsProvider
	relay     RelayPublisher
	metrics   *observability.Metrics
	log       zerolog.Logger
	backlog   int
}

func NewEngine(
	store Store,
	evaluator EventEvaluator,
	stats StatsProvider,
	metrics *observability.Metrics,
	log zerolog.Logger,
	busBacklog int,
) *Engine {
	return &Engine{
		registry:  NewRegistry(),
		store:     store,
		evaluator: evaluator,
		stats:     stats,
		metrics:   metrics,
		log:       log,
		backlog:   busBacklog,
	}
}

// SetRelay attaches an external stream relay. Call before serving
// traffic; the field is not synchronized.
func (e *Engine) SetRelay(relay RelayPublisher) {
	e.relay = relay
}

func (e *Engine) publish(h *Handle, msg broadcast.Message) {
	before := h.Bus.Dropped()
	h.Bus.Publish(msg)
	e.metrics.RecordBroadcastDrops(h.Bus.Dropped() - before)
	if e.relay != nil {
		e.relay.Relay(msg)
	}
}

// lobbyHandle returns the live handle for a lobby, loading its row
// from the store on first touch.
func (e *Engine) lobbyHandle(ctx context.Context, lobbyID uuid.UUID) (*Handle, error) {
	if h := e.registry.Get(lobbyID); h != nil {
		return h, nil
	}

	lobby, err := e.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return e.registry.GetOrCreate(lobbyID, func() *Handle {
		return &Handle{
			Lobby:          lobby,
			PendingClasses: make(map[uuid.UUID]game.ClassID),
			Bus:            broadcast.NewBus(e.backlog),
		}
	}), nil
}

// Subscribe attaches a new observer to a lobby's broadcast bus.
func (e *Engine) Subscribe(ctx context.Context, lobbyID uuid.UUID) (<-chan broadcast.Message, func(), error) {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := h.Bus.Subscribe()
	if e.metrics != nil {
		e.metrics.BroadcastSubscribers.Inc()
		cancelOnce := cancel
		cancel = func() {
			cancelOnce()
			e.metrics.BroadcastSubscribers.Dec()
		}
	}
	return ch, cancel, nil
}

// UpdatePlayerClasses replaces the pending role assignment. Rejected
// once the game is running; roles are fixed at start.
func (e *Engine) UpdatePlayerClasses(ctx context.Context, lobbyID uuid.UUID, classes map[uuid.UUID]game.ClassID) error {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return err
	}
	h.Lock()
	defer h.Unlock()

	if h.Lobby.Started {
		return game.Errorf(game.KindConflict, "game already started")
	}

	pending := make(map[uuid.UUID]game.ClassID, len(classes))
	for player, class := range classes {
		pending[player] = class
	}
	h.PendingClasses = pending

	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindClassesUpdated,
		LobbyID: lobbyID,
		Classes: pending,
	})
	return nil
}

// StartGame seeds the round state from lobby settings, persists the
// initial round row, and announces the game to subscribers.
func (e *Engine) StartGame(ctx context.Context, lobbyID uuid.UUID, roster []uuid.UUID, classes map[uuid.UUID]game.ClassID) error {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return err
	}
	h.Lock()
	defer h.Unlock()

	if h.Lobby.Started || h.Round != nil {
		return game.Errorf(game.KindConflict, "game already started")
	}
	if len(roster) == 0 {
		return game.Errorf(game.KindBadRequest, "empty roster")
	}
	if max := int(h.Lobby.MaxPlayers); max > 0 && len(roster) > max {
		return game.Errorf(game.KindBadRequest, "roster exceeds lobby capacity %d", max)
	}
	if classes == nil {
		classes = h.PendingClasses
	}

	rs, err := game.NewGame(h.Lobby.Settings, roster, classes)
	if err != nil {
		return err
	}

	// Round 0 is persisted up front so the first transition's event
	// evaluation has a prior row to diff against.
	if err := e.store.SaveRound(ctx, rs.Snapshot(lobbyID)); err != nil {
		return game.WrapErr(game.KindPersistence, err, "persist initial round")
	}
	if err := e.store.SetLobbyStarted(ctx, lobbyID, true); err != nil {
		return game.WrapErr(game.KindPersistence, err, "mark lobby started")
	}

	h.Lobby.Started = true
	h.Round = rs
	if e.metrics != nil {
		e.metrics.GamesStarted.Inc()
		e.metrics.LiveLobbies.Inc()
	}

	update := rs.Update()
	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindGameStart,
		LobbyID: lobbyID,
		Update:  &update,
	})

	e.log.Info().
		Str("lobby_id", lobbyID.String()).
		Int("players", len(roster)).
		Int64("max_rounds", h.Lobby.Settings.MaxRounds).
		Msg("game started")
	return nil
}

// SubmitRoundEnd applies one player's order for the current round. The
// final submission of a round triggers the full transition: settle,
// advance on a copy, persist, swap, evaluate events, open the next
// round. A persistence failure aborts the transition with the live
// state untouched.
func (e *Engine) SubmitRoundEnd(ctx context.Context, lobbyID, player uuid.UUID, quantity int64) error {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return err
	}
	h.Lock()
	defer h.Unlock()

	if h.Round == nil {
		return game.Errorf(game.KindConflict, "game not started")
	}

	// Every submission of the round was already accepted when a prior
	// transition attempt failed at the snapshot write. Retry the
	// transition instead of taking another order.
	if h.Round.PlayersFinished == h.Round.Players {
		return e.finishRound(ctx, lobbyID, h)
	}

	complete, err := h.Round.ApplySubmission(player, quantity)
	if err != nil {
		e.metrics.RecordRejection(game.KindOf(err).String())
		e.publish(h, broadcast.Message{
			Kind:    broadcast.KindPlayerError,
			LobbyID: lobbyID,
			ErrKind: game.KindOf(err).String(),
			Text:    err.Error(),
		}.Targeted(player))
		return err
	}

	e.metrics.RecordAccepted()
	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindAck,
		LobbyID: lobbyID,
		Value:   quantity,
	}.Targeted(player))

	if !complete {
		return nil
	}
	return e.finishRound(ctx, lobbyID, h)
}

// finishRound runs the transition cascade. Caller holds h's mutex.
func (e *Engine) finishRound(ctx context.Context, lobbyID uuid.UUID, h *Handle) error {
	started := time.Now()

	closing := h.Round.Update()
	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindRoundEnd,
		LobbyID: lobbyID,
		Update:  &closing,
	})

	advanced := h.Round.Clone()
	if err := advanced.AdvanceRound(); err != nil {
		return err
	}

	if err := e.store.SaveRound(ctx, advanced.Snapshot(lobbyID)); err != nil {
		if e.metrics != nil {
			e.metrics.SnapshotFailures.Inc()
		}
		e.log.Error().Err(err).
			Str("lobby_id", lobbyID.String()).
			Int64("round", advanced.Round).
			Msg("round snapshot write failed, transition aborted")
		return game.WrapErr(game.KindPersistence, err, "persist round snapshot")
	}
	if e.metrics != nil {
		e.metrics.SnapshotWrites.Inc()
	}

	// Snapshot is durable; the advanced copy becomes the live state.
	h.Round = advanced

	if advanced.Finished() {
		e.finishGame(ctx, lobbyID, h)
		e.metrics.RecordTransition(time.Since(started).Seconds())
		return nil
	}

	err := e.evaluator.Evaluate(ctx, lobbyID, h.Lobby.Events, advanced, func(msg broadcast.Message) {
		e.publish(h, msg)
	})
	if err != nil {
		// The round row is already durable; a failing event pass must
		// not wedge the game.
		e.log.Warn().Err(err).
			Str("lobby_id", lobbyID.String()).
			Int64("round", advanced.Round).
			Msg("event evaluation failed")
	}
	// A ChangeSettings action replaces the live settings; keep the
	// lobby copy in sync for later rounds and restarts.
	h.Lobby.Settings = advanced.Settings

	update := advanced.BeginNextRound()
	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindRoundStart,
		LobbyID: lobbyID,
		Update:  &update,
	})

	e.metrics.RecordTransition(time.Since(started).Seconds())
	e.log.Info().
		Str("lobby_id", lobbyID.String()).
		Int64("round", advanced.Round).
		Msg("round advanced")
	return nil
}

// finishGame publishes the final payload and retires the live state.
// Caller holds h's mutex.
func (e *Engine) finishGame(ctx context.Context, lobbyID uuid.UUID, h *Handle) {
	stats, err := e.stats.AllStats(ctx, lobbyID)
	if err != nil {
		e.log.Error().Err(err).
			Str("lobby_id", lobbyID.String()).
			Msg("statistics replay failed, ending game without stats")
		stats = make(map[string]map[uuid.UUID][]int64)
	}

	end := game.GameEnd{
		PlayerStates: h.Round.Update().PlayerStates,
		Stats:        stats,
	}
	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindGameEnd,
		LobbyID: lobbyID,
		End:     &end,
	})

	if err := e.store.SetLobbyStarted(ctx, lobbyID, false); err != nil {
		e.log.Error().Err(err).
			Str("lobby_id", lobbyID.String()).
			Msg("mark lobby finished failed")
	}

	h.Lobby.Started = false
	h.Round = nil
	if e.metrics != nil {
		e.metrics.GamesFinished.Inc()
		e.metrics.LiveLobbies.Dec()
	}

	e.log.Info().Str("lobby_id", lobbyID.String()).Msg("game finished")
}

// DisconnectPlayer announces a departure. Game state is untouched; a
// running game keeps the player's ledger so they can rejoin.
func (e *Engine) DisconnectPlayer(ctx context.Context, lobbyID, player uuid.UUID) error {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return err
	}
	h.Lock()
	defer h.Unlock()

	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindPlayerLeft,
		LobbyID: lobbyID,
		Player:  player,
	})
	return nil
}

// StopGame force-ends a running game without a final settlement and
// kicks every subscriber.
func (e *Engine) StopGame(ctx context.Context, lobbyID uuid.UUID) error {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return err
	}
	h.Lock()
	defer h.Unlock()

	if !h.Lobby.Started {
		return game.Errorf(game.KindConflict, "game not started")
	}
	if err := e.store.SetLobbyStarted(ctx, lobbyID, false); err != nil {
		return game.WrapErr(game.KindPersistence, err, "mark lobby stopped")
	}

	h.Lobby.Started = false
	h.Round = nil
	if e.metrics != nil {
		e.metrics.LiveLobbies.Dec()
	}

	e.publish(h, broadcast.Message{
		Kind:    broadcast.KindKickAll,
		LobbyID: lobbyID,
	})

	// Retire the handle: the bus closes behind the buffered kick, so
	// subscribers drain it and then see end-of-stream. A later operation
	// reloads the lobby row from the store.
	e.registry.Remove(lobbyID)

	e.log.Info().Str("lobby_id", lobbyID.String()).Msg("game stopped")
	return nil
}

// CurrentUpdate returns the running game's full state, for clients
// that connect mid-game.
func (e *Engine) CurrentUpdate(ctx context.Context, lobbyID uuid.UUID) (*game.GameUpdate, error) {
	h, err := e.lobbyHandle(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	h.Lock()
	defer h.Unlock()

	if h.Round == nil {
		return nil, game.Errorf(game.KindConflict, "game not started")
	}
	update := h.Round.Update()
	return &update, nil
}

// Rehydrate loads every started lobby's latest round row into memory.
// Runs once at startup, before the server accepts traffic.
func (e *Engine) Rehydrate(ctx context.Context) error {
	lobbies, err := e.store.StartedLobbies(ctx)
	if err != nil {
		return game.WrapErr(game.KindPersistence, err, "load started lobbies")
	}

	for i := range lobbies {
		lobby := lobbies[i]
		snap, err := e.store.LoadLatestRound(ctx, lobby.ID)
		if err != nil {
			// Started flag with no round row means the start itself
			// never committed; nothing to restore.
			e.log.Error().Err(err).
				Str("lobby_id", lobby.ID.String()).
				Msg("started lobby has no persisted round, skipping")
			continue
		}

		rs := game.Restore(snap, lobby.Settings)
		e.registry.GetOrCreate(lobby.ID, func() *Handle {
			return &Handle{
				Lobby:          &lobby,
				Round:          rs,
				PendingClasses: make(map[uuid.UUID]game.ClassID),
				Bus:            broadcast.NewBus(e.backlog),
			}
		})
		if e.metrics != nil {
			e.metrics.LiveLobbies.Inc()
		}

		e.log.Info().
			Str("lobby_id", lobby.ID.String()).
			Int64("round", rs.Round).
			Msg("lobby rehydrated")
	}
	return nil
}

// LiveLobbies reports how many lobbies are loaded in memory.
func (e *Engine) LiveLobbies() int {
	return e.registry.Len()
}
