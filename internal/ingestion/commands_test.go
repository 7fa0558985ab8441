package ingestion_test

import (
	"encoding/json"
	"testing"

	"supplyline/internal/ingestion"
)

func payloadJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseOrderCommand(t *testing.T) {
	payload := map[string]interface{}{
		"lobby_id":  "550e8400-e29b-41d4-a716-446655440000",
		"player_id": "660e8400-e29b-41d4-a716-446655440001",
		"quantity":  int64(12),
	}

	cmd, err := ingestion.ParseOrderCommand(payloadJSON(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.LobbyID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("lobby_id: got %s", cmd.LobbyID)
	}
	if cmd.PlayerID.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("player_id: got %s", cmd.PlayerID)
	}
	if cmd.Quantity != 12 {
		t.Errorf("quantity: got %d, want 12", cmd.Quantity)
	}
}

func TestParseOrderCommandRejectsBadInput(t *testing.T) {
	cases := []map[string]interface{}{
		{"lobby_id": "not-a-uuid", "player_id": "660e8400-e29b-41d4-a716-446655440001", "quantity": int64(1)},
		{"lobby_id": "550e8400-e29b-41d4-a716-446655440000", "player_id": "nope", "quantity": int64(1)},
		{"lobby_id": "550e8400-e29b-41d4-a716-446655440000", "player_id": "660e8400-e29b-41d4-a716-446655440001", "quantity": int64(-5)},
	}
	for i, payload := range cases {
		if _, err := ingestion.ParseOrderCommand(payloadJSON(t, payload)); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestParseStartCommand(t *testing.T) {
	payload := map[string]interface{}{
		"lobby_id": "550e8400-e29b-41d4-a716-446655440000",
		"players": []string{
			"660e8400-e29b-41d4-a716-446655440001",
			"770e8400-e29b-41d4-a716-446655440002",
		},
		"classes": map[string]uint32{
			"660e8400-e29b-41d4-a716-446655440001": 1,
			"770e8400-e29b-41d4-a716-446655440002": 2,
		},
	}

	cmd, err := ingestion.ParseStartCommand(payloadJSON(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(cmd.Players) != 2 {
		t.Fatalf("players: got %d, want 2", len(cmd.Players))
	}
	if cmd.Players[0].String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("roster order not preserved: %v", cmd.Players)
	}
	if got := cmd.Classes[cmd.Players[1]]; got != 2 {
		t.Errorf("class for second player: got %d, want 2", got)
	}
}

func TestParseStartCommandWithoutClasses(t *testing.T) {
	payload := map[string]interface{}{
		"lobby_id": "550e8400-e29b-41d4-a716-446655440000",
		"players":  []string{"660e8400-e29b-41d4-a716-446655440001"},
	}

	cmd, err := ingestion.ParseStartCommand(payloadJSON(t, payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Classes != nil {
		t.Errorf("classes should be nil when omitted, got %v", cmd.Classes)
	}
}
