package game

// Resource names a numeric field of a player ledger that event
// conditions read and event actions mutate. Both sides go through the
// same accessor (ResourceRef) so they cannot drift apart.
type Resource string

const (
	ResourceMoney         Resource = "money"
	ResourceMagazineState Resource = "magazine_state"
	ResourcePerformance   Resource = "performance"
	ResourceBackOrderSum  Resource = "back_order_sum"
)

// ResourceRef returns a pointer to the named field of us, or false for
// an unknown resource.
func ResourceRef(us *UserState, r Resource) (*int64, bool) {
	switch r {
	case ResourceMoney:
		return &us.Money, true
	case ResourceMagazineState:
		return &us.MagazineState, true
	case ResourcePerformance:
		return &us.Performance, true
	case ResourceBackOrderSum:
		return &us.BackOrderSum, true
	default:
		return nil, false
	}
}

// MetBy selects how a ValueExceed condition aggregates across players.
type MetBy string

const (
	MetBySinglePlayer MetBy = "single_player"
	MetByAverage      MetBy = "average"
	MetByAllPlayers   MetBy = "all_players"
	// MetByPlayerPercent survives from an earlier schema revision; the
	// Percent field of the condition holds the threshold.
	MetByPlayerPercent MetBy = "player_percent"
)

// ConditionKind tags an EventCondition.
type ConditionKind string

const (
	CondRoundMet     ConditionKind = "round_met"
	CondValueExceed  ConditionKind = "value_exceed"
	CondSingleChange ConditionKind = "single_change"
)

// EventCondition decides whether an event fires and which players it
// targets.
type EventCondition struct {
	Kind     ConditionKind `json:"kind"`
	Round    int64         `json:"round,omitempty"`
	Resource Resource      `json:"resource,omitempty"`
	MetBy    MetBy         `json:"met_by,omitempty"`
	Value    int64         `json:"value,omitempty"`
	Percent  int64         `json:"percent,omitempty"`
}

// ActionTarget selects whether an action applies to the players the
// condition picked out or to everyone in the lobby.
type ActionTarget string

const (
	TargetEventTarget ActionTarget = "event_target"
	TargetAllPlayers  ActionTarget = "all_players"
)

// ActionKind tags an EventAction.
type ActionKind string

const (
	ActionShowMessage    ActionKind = "show_message"
	ActionChangeSettings ActionKind = "change_settings"
	ActionAddResource    ActionKind = "add_resource"
)

// EventAction is one effect applied when the owning event's condition
// holds. Actions run in stored order.
type EventAction struct {
	Kind        ActionKind   `json:"kind"`
	Message     string       `json:"message,omitempty"`
	Target      ActionTarget `json:"target,omitempty"`
	NewSettings *Settings    `json:"new_settings,omitempty"`
	Resource    Resource     `json:"resource,omitempty"`
	Value       int64        `json:"value,omitempty"`
}

// GameEvent is one condition/action rule of a lobby.
//
// RunOnce is part of the persisted schema but no evaluation path checks
// it: events currently re-fire every round their condition holds.
// One-shot semantics await product clarification.
type GameEvent struct {
	Name      string         `json:"name"`
	Condition EventCondition `json:"condition"`
	Actions   []EventAction  `json:"actions"`
	RunOnce   bool           `json:"run_once"`
}

// GameEvents is the ordered rule list stored on a lobby. Order matters:
// later events observe the effects of earlier ones within the same pass.
type GameEvents struct {
	Events []GameEvent `json:"events"`
}
