package query

import (
	"context"
	"time"

	"supplyline/internal/game"
	"supplyline/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RoundsLoader loads a game's full persisted history in round order.
// Satisfied by persistence.Store.
type RoundsLoader interface {
	LoadAllRounds(ctx context.Context, gameID uuid.UUID) ([]game.Snapshot, error)
}

// StatKind names one per-player series derivable from the round history.
type StatKind string

const (
	StatMoney         StatKind = "money"
	StatMagazine      StatKind = "magazine_state"
	StatPerformance   StatKind = "performance"
	StatPlacedOrder   StatKind = "placed_order"
	StatReceivedOrder StatKind = "received_order"
	StatBackOrder     StatKind = "back_order"
	StatSpentMoney    StatKind = "spent_money"
)

// AllStatKinds lists every series in a fixed order.
func AllStatKinds() []StatKind {
	return []StatKind{
		StatMoney, StatMagazine, StatPerformance,
		StatPlacedOrder, StatReceivedOrder,
		StatBackOrder, StatSpentMoney,
	}
}

// Valid reports whether the kind names a known series.
func (k StatKind) Valid() bool {
	switch k {
	case StatMoney, StatMagazine, StatPerformance,
		StatPlacedOrder, StatReceivedOrder, StatBackOrder, StatSpentMoney:
		return true
	}
	return false
}

func statValue(us game.UserState, kind StatKind) int64 {
	switch kind {
	case StatMoney:
		return us.Money
	case StatMagazine:
		return us.MagazineState
	case StatPerformance:
		return us.Performance
	case StatPlacedOrder:
		return us.PlacedOrder.Cost
	case StatReceivedOrder:
		return us.ReceivedOrder.Cost
	case StatBackOrder:
		return us.BackOrderSum
	case StatSpentMoney:
		return us.SpentMoney
	}
	return 0
}

// Service replays persisted round rows into per-player statistic
// series. It reads only history; the live round never appears until it
// has been persisted.
type Service struct {
	rounds  RoundsLoader
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewService(rounds RoundsLoader, metrics *observability.Metrics, log zerolog.Logger) *Service {
	return &Service{rounds: rounds, metrics: metrics, log: log}
}

// PlayerStats builds one series: for every persisted round in order,
// the stat value of each player present in that round.
func (s *Service) PlayerStats(ctx context.Context, gameID uuid.UUID, kind StatKind) (map[uuid.UUID][]int64, error) {
	if !kind.Valid() {
		return nil, game.Errorf(game.KindBadRequest, "unknown stat kind %q", kind)
	}

	stats, err := s.Stats(ctx, gameID, []StatKind{kind})
	if err != nil {
		return nil, err
	}
	return stats[string(kind)], nil
}

// Stats replays the history once and extracts every requested series.
func (s *Service) Stats(ctx context.Context, gameID uuid.UUID, kinds []StatKind) (map[string]map[uuid.UUID][]int64, error) {
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, game.Errorf(game.KindBadRequest, "unknown stat kind %q", kind)
		}
	}

	started := time.Now()
	rounds, err := s.rounds.LoadAllRounds(ctx, gameID)
	if err != nil {
		return nil, game.WrapErr(game.KindPersistence, err, "load round history")
	}
	if len(rounds) == 0 {
		return nil, game.Errorf(game.KindNotFound, "no persisted rounds for game %s", gameID)
	}

	out := make(map[string]map[uuid.UUID][]int64, len(kinds))
	for _, kind := range kinds {
		series := make(map[uuid.UUID][]int64)
		for _, snap := range rounds {
			for player, us := range snap.UserStates {
				series[player] = append(series[player], statValue(us, kind))
			}
		}
		out[string(kind)] = series

		if s.metrics != nil {
			s.metrics.StatsQueries.WithLabelValues(string(kind)).Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.StatsQueryDuration.Observe(time.Since(started).Seconds())
	}
	s.log.Debug().
		Str("game_id", gameID.String()).
		Int("rounds", len(rounds)).
		Int("kinds", len(kinds)).
		Msg("stats replayed")
	return out, nil
}

// AllStats replays every series; attached to the game-end payload.
func (s *Service) AllStats(ctx context.Context, gameID uuid.UUID) (map[string]map[uuid.UUID][]int64, error) {
	return s.Stats(ctx, gameID, AllStatKinds())
}
