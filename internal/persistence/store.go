package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"supplyline/internal/game"

	"github.com/google/uuid"
)

// Store persists lobby configuration and the append-only per-round
// game state log. Each finished round is one row; rehydration after a
// restart loads the highest round per started lobby.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRound appends one round row. The (game_id, round) pair is unique;
// a duplicate insert means two writers raced on the same transition and
// surfaces as an error rather than silently overwriting history.
func (s *Store) SaveRound(ctx context.Context, snap *game.Snapshot) error {
	userStates, err := json.Marshal(snap.UserStates)
	if err != nil {
		return fmt.Errorf("marshal user states: %w", err)
	}
	roundOrders, err := json.Marshal(snap.RoundOrders)
	if err != nil {
		return fmt.Errorf("marshal round orders: %w", err)
	}
	sendOrders, err := json.Marshal(snap.SendOrders)
	if err != nil {
		return fmt.Errorf("marshal send orders: %w", err)
	}
	classes, err := json.Marshal(snap.PlayerClasses)
	if err != nil {
		return fmt.Errorf("marshal player classes: %w", err)
	}
	flow, err := json.Marshal(snap.Flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_state
			(game_id, round, user_states, round_orders, send_orders, players_classes, flow, demand, supply)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, snap.GameID, snap.Round, userStates, roundOrders, sendOrders, classes, flow, snap.Demand, snap.Supply)
	if err != nil {
		return fmt.Errorf("insert round %d for game %s: %w", snap.Round, snap.GameID, err)
	}
	return nil
}

// LoadRound loads one persisted round.
func (s *Store) LoadRound(ctx context.Context, gameID uuid.UUID, round int64) (*game.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT game_id, round, user_states, round_orders, send_orders, players_classes, flow, demand, supply
		FROM game_state
		WHERE game_id = $1 AND round = $2
	`, gameID, round)
	return scanSnapshot(row)
}

// LoadLatestRound loads the highest persisted round for a game, or a
// not-found error when no round has been written yet.
func (s *Store) LoadLatestRound(ctx context.Context, gameID uuid.UUID) (*game.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT game_id, round, user_states, round_orders, send_orders, players_classes, flow, demand, supply
		FROM game_state
		WHERE game_id = $1
		ORDER BY round DESC
		LIMIT 1
	`, gameID)
	return scanSnapshot(row)
}

// LoadAllRounds loads every persisted round for a game in ascending
// round order; statistics replay walks this history.
func (s *Store) LoadAllRounds(ctx context.Context, gameID uuid.UUID) ([]game.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, round, user_states, round_orders, send_orders, players_classes, flow, demand, supply
		FROM game_state
		WHERE game_id = $1
		ORDER BY round ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query rounds for game %s: %w", gameID, err)
	}
	defer rows.Close()

	var snaps []game.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*game.Snapshot, error) {
	var (
		snap        game.Snapshot
		userStates  []byte
		roundOrders []byte
		sendOrders  []byte
		classes     []byte
		flow        []byte
	)
	err := row.Scan(
		&snap.GameID, &snap.Round,
		&userStates, &roundOrders, &sendOrders, &classes, &flow,
		&snap.Demand, &snap.Supply,
	)
	if err == sql.ErrNoRows {
		return nil, game.Errorf(game.KindNotFound, "round not persisted")
	}
	if err != nil {
		return nil, fmt.Errorf("scan round row: %w", err)
	}

	if err := json.Unmarshal(userStates, &snap.UserStates); err != nil {
		return nil, fmt.Errorf("unmarshal user states: %w", err)
	}
	if err := json.Unmarshal(roundOrders, &snap.RoundOrders); err != nil {
		return nil, fmt.Errorf("unmarshal round orders: %w", err)
	}
	if err := json.Unmarshal(sendOrders, &snap.SendOrders); err != nil {
		return nil, fmt.Errorf("unmarshal send orders: %w", err)
	}
	if err := json.Unmarshal(classes, &snap.PlayerClasses); err != nil {
		return nil, fmt.Errorf("unmarshal player classes: %w", err)
	}
	if err := json.Unmarshal(flow, &snap.Flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &snap, nil
}

// SaveLobby upserts lobby metadata, settings, and the event list.
func (s *Store) SaveLobby(ctx context.Context, lobby *game.Lobby) error {
	settings, err := json.Marshal(lobby.Settings)
	if err != nil {
		return fmt.Errorf("marshal lobby settings: %w", err)
	}
	events, err := json.Marshal(lobby.Events)
	if err != nil {
		return fmt.Errorf("marshal lobby events: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lobbies (id, name, max_players, started, owner_id, settings, events)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, max_players = $3, started = $4, owner_id = $5, settings = $6, events = $7
	`, lobby.ID, lobby.Name, lobby.MaxPlayers, lobby.Started, lobby.OwnerID, settings, events)
	if err != nil {
		return fmt.Errorf("upsert lobby %s: %w", lobby.ID, err)
	}
	return nil
}

// GetLobby loads one lobby by id.
func (s *Store) GetLobby(ctx context.Context, id uuid.UUID) (*game.Lobby, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, max_players, started, owner_id, settings, events
		FROM lobbies
		WHERE id = $1
	`, id)
	return scanLobby(row)
}

// StartedLobbies loads every lobby whose game is in progress; called
// once at startup to know which games need rehydration.
func (s *Store) StartedLobbies(ctx context.Context) ([]game.Lobby, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, max_players, started, owner_id, settings, events
		FROM lobbies
		WHERE started = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("query started lobbies: %w", err)
	}
	defer rows.Close()

	var lobbies []game.Lobby
	for rows.Next() {
		lobby, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, *lobby)
	}
	return lobbies, rows.Err()
}

func scanLobby(row rowScanner) (*game.Lobby, error) {
	var (
		lobby    game.Lobby
		settings []byte
		events   []byte
	)
	err := row.Scan(&lobby.ID, &lobby.Name, &lobby.MaxPlayers, &lobby.Started, &lobby.OwnerID, &settings, &events)
	if err == sql.ErrNoRows {
		return nil, game.Errorf(game.KindNotFound, "lobby not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan lobby row: %w", err)
	}
	if err := json.Unmarshal(settings, &lobby.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal lobby settings: %w", err)
	}
	if err := json.Unmarshal(events, &lobby.Events); err != nil {
		return nil, fmt.Errorf("unmarshal lobby events: %w", err)
	}
	return &lobby, nil
}

// UpdateLobbySettings replaces a lobby's settings JSON in place.
func (s *Store) UpdateLobbySettings(ctx context.Context, id uuid.UUID, settings game.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE lobbies SET settings = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update settings for lobby %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.Errorf(game.KindNotFound, "lobby %s not found", id)
	}
	return nil
}

// SetLobbyStarted flips the started flag; true when the owner starts
// the game, false when the game ends or is stopped.
func (s *Store) SetLobbyStarted(ctx context.Context, id uuid.UUID, started bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lobbies SET started = $2 WHERE id = $1`, id, started)
	if err != nil {
		return fmt.Errorf("set started for lobby %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return game.Errorf(game.KindNotFound, "lobby %s not found", id)
	}
	return nil
}
