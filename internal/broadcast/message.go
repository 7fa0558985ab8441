package broadcast

import (
	"supplyline/internal/game"

	"github.com/google/uuid"
)

// Kind names one broadcast payload variant.
type Kind string

const (
	KindGameStart       Kind = "game_start"
	KindRoundStart      Kind = "round_start"
	KindRoundEnd        Kind = "round_end"
	KindGameEnd         Kind = "game_end"
	KindSettingsChanged Kind = "settings_changed"
	KindPopUp           Kind = "pop_up"
	KindResourceGranted Kind = "resource_granted"
	KindAck             Kind = "ack"
	KindPlayerError     Kind = "player_error"
	KindClassesUpdated  Kind = "classes_updated"
	KindPlayerLeft      Kind = "player_left"
	KindKickAll         Kind = "kick_all"
)

// Message is one fan-out event on a lobby's bus. Target is nil for
// lobby-wide messages; when set, transports deliver the message only to
// that player's connections.
type Message struct {
	Kind    Kind       `json:"kind"`
	LobbyID uuid.UUID  `json:"lobby_id"`
	Target  *uuid.UUID `json:"target,omitempty"`

	Update   *game.GameUpdate           `json:"update,omitempty"`
	End      *game.GameEnd              `json:"end,omitempty"`
	Settings *game.Settings             `json:"settings,omitempty"`
	Classes  map[uuid.UUID]game.ClassID `json:"classes,omitempty"`
	Resource game.Resource              `json:"resource,omitempty"`
	Value    int64                      `json:"value,omitempty"`
	Text     string                     `json:"text,omitempty"`
	ErrKind  string                     `json:"err_kind,omitempty"`
	Player   uuid.UUID                  `json:"player,omitempty"`
}

// Targeted builds a copy of m addressed to a single player.
func (m Message) Targeted(player uuid.UUID) Message {
	p := player
	m.Target = &p
	return m
}
