package persistence_test

import (
	"context"
	"testing"

	"supplyline/internal/game"
	"supplyline/internal/persistence"
	"supplyline/internal/testutil"

	"github.com/google/uuid"
)

func setupStore(t *testing.T) (*persistence.Store, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return persistence.NewStore(db), cleanup
}

func sampleSnapshot(gameID uuid.UUID, round int64) *game.Snapshot {
	player := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	return &game.Snapshot{
		GameID: gameID,
		Round:  round,
		UserStates: map[uuid.UUID]game.UserState{
			player: {Money: 100, MagazineState: 40, IncomingOrders: []game.Order{{Recipient: player, Value: 5, Cost: 10}}},
		},
		RoundOrders:   map[uuid.UUID]game.Order{uuid.Nil: {Sender: player, Value: 12}},
		SendOrders:    map[uuid.UUID]game.Order{uuid.Nil: {Recipient: player, Value: 8}},
		PlayerClasses: map[uuid.UUID]game.ClassID{player: 2},
		Flow:          game.Flow{FirstPlayer: player, LastPlayer: player, Flow: map[uuid.UUID]uuid.UUID{player: uuid.Nil}},
		Demand:        12,
		Supply:        8,
	}
}

func TestSaveAndLoadRound(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	gameID := uuid.New()
	snap := sampleSnapshot(gameID, 1)
	if err := store.SaveRound(ctx, snap); err != nil {
		t.Fatalf("save round: %v", err)
	}

	got, err := store.LoadRound(ctx, gameID, 1)
	if err != nil {
		t.Fatalf("load round: %v", err)
	}
	if got.Round != 1 || got.Demand != 12 || got.Supply != 8 {
		t.Fatalf("round mismatch: %+v", got)
	}
	for id, us := range snap.UserStates {
		loaded, ok := got.UserStates[id]
		if !ok {
			t.Fatalf("player %s missing from loaded snapshot", id)
		}
		if loaded.Money != us.Money || loaded.MagazineState != us.MagazineState {
			t.Fatalf("loaded ledger mismatch: got %+v want %+v", loaded, us)
		}
		if len(loaded.IncomingOrders) != 1 || loaded.IncomingOrders[0].Value != 5 {
			t.Fatalf("incoming queue mismatch: %+v", loaded.IncomingOrders)
		}
	}
	if got.Flow.FirstPlayer != snap.Flow.FirstPlayer {
		t.Fatalf("flow mismatch: %+v", got.Flow)
	}
}

func TestSaveRoundRejectsDuplicate(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	snap := sampleSnapshot(uuid.New(), 1)
	if err := store.SaveRound(ctx, snap); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveRound(ctx, snap); err == nil {
		t.Fatal("duplicate (game_id, round) insert must fail")
	}
}

func TestLoadLatestAndAllRounds(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	gameID := uuid.New()
	for round := int64(1); round <= 3; round++ {
		if err := store.SaveRound(ctx, sampleSnapshot(gameID, round)); err != nil {
			t.Fatalf("save round %d: %v", round, err)
		}
	}

	latest, err := store.LoadLatestRound(ctx, gameID)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest.Round != 3 {
		t.Fatalf("latest round = %d, want 3", latest.Round)
	}

	all, err := store.LoadAllRounds(ctx, gameID)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d rounds, want 3", len(all))
	}
	for i, snap := range all {
		if snap.Round != int64(i+1) {
			t.Fatalf("rounds out of order: %d at index %d", snap.Round, i)
		}
	}
}

func TestLoadRoundNotFound(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.LoadRound(context.Background(), uuid.New(), 1)
	if game.KindOf(err) != game.KindNotFound {
		t.Fatalf("want not-found, got %v", err)
	}
	_, err = store.LoadLatestRound(context.Background(), uuid.New())
	if game.KindOf(err) != game.KindNotFound {
		t.Fatalf("want not-found for latest, got %v", err)
	}
}

func TestLobbyLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	lobby := &game.Lobby{
		ID:         uuid.New(),
		Name:       "brewery run",
		MaxPlayers: 4,
		OwnerID:    uuid.New(),
		Settings:   game.Settings{MaxRounds: 10, ResourceBasicPrice: 3},
	}
	if err := store.SaveLobby(ctx, lobby); err != nil {
		t.Fatalf("save lobby: %v", err)
	}

	got, err := store.GetLobby(ctx, lobby.ID)
	if err != nil {
		t.Fatalf("get lobby: %v", err)
	}
	if got.Name != "brewery run" || got.Settings.MaxRounds != 10 || got.Started {
		t.Fatalf("lobby mismatch: %+v", got)
	}

	if err := store.SetLobbyStarted(ctx, lobby.ID, true); err != nil {
		t.Fatalf("set started: %v", err)
	}
	started, err := store.StartedLobbies(ctx)
	if err != nil {
		t.Fatalf("started lobbies: %v", err)
	}
	if len(started) != 1 || started[0].ID != lobby.ID {
		t.Fatalf("started lobbies = %+v", started)
	}

	next := lobby.Settings
	next.MaxRounds = 25
	if err := store.UpdateLobbySettings(ctx, lobby.ID, next); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	got, err = store.GetLobby(ctx, lobby.ID)
	if err != nil {
		t.Fatalf("reload lobby: %v", err)
	}
	if got.Settings.MaxRounds != 25 {
		t.Fatalf("settings not updated: %+v", got.Settings)
	}

	if err := store.SetLobbyStarted(ctx, uuid.New(), true); game.KindOf(err) != game.KindNotFound {
		t.Fatalf("want not-found for unknown lobby, got %v", err)
	}
}
