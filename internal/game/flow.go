package game

import (
	"github.com/google/uuid"
)

// Flow is the supply-chain topology for one game instance: an ordered
// chain of sender→recipient links. External supply enters above
// FirstPlayer; external demand enters below LastPlayer. Built once at
// game start and immutable thereafter.
type Flow struct {
	FirstPlayer uuid.UUID               `json:"first_player"`
	LastPlayer  uuid.UUID               `json:"last_player"`
	Flow        map[uuid.UUID]uuid.UUID `json:"flow"`
}

// BuildFlow links the roster in order: each player ships to the next,
// the last player's outgoing edge is the nil sentinel.
func BuildFlow(roster []uuid.UUID) (Flow, error) {
	if len(roster) == 0 {
		return Flow{}, Errorf(KindConfig, "cannot build flow from an empty roster")
	}

	links := make(map[uuid.UUID]uuid.UUID, len(roster))
	for i, player := range roster {
		next := uuid.Nil
		if i+1 < len(roster) {
			next = roster[i+1]
		}
		links[player] = next
	}

	return Flow{
		FirstPlayer: roster[0],
		LastPlayer:  roster[len(roster)-1],
		Flow:        links,
	}, nil
}

// Recipient returns the player's customer: where its shipments go.
// The last player ships to the nil sentinel (external demand sink).
func (f Flow) Recipient(player uuid.UUID) (uuid.UUID, error) {
	next, ok := f.Flow[player]
	if !ok {
		return uuid.Nil, Errorf(KindInternal, "player %s not in flow", player)
	}
	return next, nil
}

// Sender returns the player's supplier: who its orders are addressed
// to. The first player is supplied by the nil sentinel (external
// supply source).
func (f Flow) Sender(player uuid.UUID) (uuid.UUID, error) {
	if _, ok := f.Flow[player]; !ok {
		return uuid.Nil, Errorf(KindInternal, "player %s not in flow", player)
	}
	for upstream, downstream := range f.Flow {
		if downstream == player {
			return upstream, nil
		}
	}
	return uuid.Nil, nil
}

// Contains reports whether player is part of this game's chain.
func (f Flow) Contains(player uuid.UUID) bool {
	_, ok := f.Flow[player]
	return ok
}
