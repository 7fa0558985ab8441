package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"supplyline/internal/game"
	"supplyline/internal/observability"
	"supplyline/internal/query"
	"supplyline/internal/registry"
	"supplyline/internal/rules"
	"supplyline/internal/server"
	"supplyline/internal/sim"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memStore struct {
	lobbies map[uuid.UUID]*game.Lobby
	rounds  map[uuid.UUID][]*game.Snapshot
}

func newMemStore() *memStore {
	return &memStore{
		lobbies: make(map[uuid.UUID]*game.Lobby),
		rounds:  make(map[uuid.UUID][]*game.Snapshot),
	}
}

func (m *memStore) SaveRound(_ context.Context, snap *game.Snapshot) error {
	m.rounds[snap.GameID] = append(m.rounds[snap.GameID], snap)
	return nil
}

func (m *memStore) LoadLatestRound(_ context.Context, gameID uuid.UUID) (*game.Snapshot, error) {
	rounds := m.rounds[gameID]
	if len(rounds) == 0 {
		return nil, game.Errorf(game.KindNotFound, "round not persisted")
	}
	return rounds[len(rounds)-1], nil
}

func (m *memStore) LoadAllRounds(_ context.Context, gameID uuid.UUID) ([]game.Snapshot, error) {
	out := make([]game.Snapshot, 0, len(m.rounds[gameID]))
	for _, snap := range m.rounds[gameID] {
		out = append(out, *snap)
	}
	return out, nil
}

func (m *memStore) GetLobby(_ context.Context, id uuid.UUID) (*game.Lobby, error) {
	lobby, ok := m.lobbies[id]
	if !ok {
		return nil, game.Errorf(game.KindNotFound, "lobby not found")
	}
	copied := *lobby
	return &copied, nil
}

func (m *memStore) StartedLobbies(context.Context) ([]game.Lobby, error) { return nil, nil }

func (m *memStore) SetLobbyStarted(_ context.Context, id uuid.UUID, started bool) error {
	lobby, ok := m.lobbies[id]
	if !ok {
		return game.Errorf(game.KindNotFound, "lobby not found")
	}
	lobby.Started = started
	return nil
}

type noopEvaluator struct{}

func (noopEvaluator) Evaluate(context.Context, uuid.UUID, game.GameEvents, *game.RoundState, rules.Publisher) error {
	return nil
}

func lobbySettings() game.Settings {
	return game.Settings{
		StartMoney:          map[game.ClassID]int64{1: 1000},
		StartMagazine:       map[game.ClassID]int64{1: 50},
		ResourcePrice:       map[game.ClassID]int64{1: 2},
		FixOrderCost:        map[game.ClassID]int64{1: 5},
		MagazineCost:        map[game.ClassID]int64{1: 1},
		IncomingStartQueue:  map[game.ClassID][]int64{1: {4, 4}},
		RequestedStartQueue: map[game.ClassID][]int64{1: {4, 4}},
		ResourceBasicPrice:  3,
		MaxRounds:           10,
		DemandStyle:         sim.GeneratedOrderStyle{Kind: sim.StyleDefault},
		SupplyStyle:         sim.GeneratedOrderStyle{Kind: sim.StyleDefault},
	}
}

type testAPI struct {
	srv     *httptest.Server
	store   *memStore
	lobbyID uuid.UUID
	players []uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := newMemStore()
	lobbyID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	store.lobbies[lobbyID] = &game.Lobby{
		ID:         lobbyID,
		Name:       "api lobby",
		MaxPlayers: 4,
		OwnerID:    p1,
		Settings:   lobbySettings(),
	}

	stats := query.NewService(store, nil, zerolog.Nop())
	engine := registry.NewEngine(store, noopEvaluator{}, stats, nil, zerolog.Nop(), 32)
	health := observability.NewHealthChecker()
	health.SetReady(true)

	api := server.New(engine, stats, health, nil, zerolog.Nop())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, store: store, lobbyID: lobbyID, players: []uuid.UUID{p1, p2}}
}

func (a *testAPI) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(a.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (a *testAPI) startGame(t *testing.T) {
	t.Helper()
	resp := a.post(t, fmt.Sprintf("/v1/games/%s/start", a.lobbyID), map[string]any{
		"players": a.players,
		"classes": map[string]int{a.players[0].String(): 1, a.players[1].String(): 1},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start game: status %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(a.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz status = %d", resp.StatusCode)
	}
}

func TestStartAndSubmitFlow(t *testing.T) {
	a := newTestAPI(t)
	a.startGame(t)

	// Double start conflicts.
	resp := a.post(t, fmt.Sprintf("/v1/games/%s/start", a.lobbyID), map[string]any{
		"players": a.players,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}

	for _, p := range a.players {
		resp := a.post(t, fmt.Sprintf("/v1/games/%s/orders", a.lobbyID), map[string]any{
			"player_id": p,
			"quantity":  5,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("order for %s: status %d", p, resp.StatusCode)
		}
	}

	// State advanced to round 1.
	stateResp, err := http.Get(a.srv.URL + fmt.Sprintf("/v1/games/%s/state", a.lobbyID))
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer stateResp.Body.Close()
	var update game.GameUpdate
	if err := json.NewDecoder(stateResp.Body).Decode(&update); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if update.Round != 1 {
		t.Fatalf("round = %d, want 1", update.Round)
	}
}

func TestOrderValidation(t *testing.T) {
	a := newTestAPI(t)
	a.startGame(t)

	resp := a.post(t, fmt.Sprintf("/v1/games/%s/orders", a.lobbyID), map[string]any{
		"player_id": a.players[0],
		"quantity":  -1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative quantity status = %d, want 400", resp.StatusCode)
	}

	resp = a.post(t, fmt.Sprintf("/v1/games/%s/orders", uuid.New()), map[string]any{
		"player_id": a.players[0],
		"quantity":  1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown game status = %d, want 404", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.startGame(t)

	resp, err := http.Get(a.srv.URL + fmt.Sprintf("/v1/games/%s/stats?kind=money", a.lobbyID))
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}

	var stats map[string]map[uuid.UUID][]int64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	series, ok := stats["money"]
	if !ok {
		t.Fatalf("missing money series: %v", stats)
	}
	if got := series[a.players[0]]; len(got) != 1 || got[0] != 1000 {
		t.Fatalf("money series = %v, want [1000]", got)
	}

	badResp, err := http.Get(a.srv.URL + fmt.Sprintf("/v1/games/%s/stats?kind=nonsense", a.lobbyID))
	if err != nil {
		t.Fatalf("GET bad stats: %v", err)
	}
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad stat kind status = %d, want 400", badResp.StatusCode)
	}
}

func TestClassesEndpointOnlyBeforeStart(t *testing.T) {
	a := newTestAPI(t)

	put := func() *http.Response {
		body, _ := json.Marshal(map[string]any{
			"classes": map[string]int{a.players[0].String(): 1, a.players[1].String(): 1},
		})
		req, err := http.NewRequest(http.MethodPut,
			a.srv.URL+fmt.Sprintf("/v1/games/%s/classes", a.lobbyID), bytes.NewReader(body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT classes: %v", err)
		}
		return resp
	}

	resp := put()
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("classes before start: status %d", resp.StatusCode)
	}

	a.startGame(t)
	resp = put()
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("classes after start: status %d, want 409", resp.StatusCode)
	}
}

func TestStopEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.startGame(t)

	resp := a.post(t, fmt.Sprintf("/v1/games/%s/stop", a.lobbyID), map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	if a.store.lobbies[a.lobbyID].Started {
		t.Fatal("lobby still started after stop")
	}
}
