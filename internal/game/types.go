package game

import (
	"supplyline/internal/sim"

	"github.com/google/uuid"
)

// ClassID selects which per-class row of the lobby Settings applies to
// a player (retailer, wholesaler, distributor, factory, ...).
type ClassID uint32

// Order is an immutable value moving through the chain. Cost is fixed at
// the point the order is finalized and never recomputed.
type Order struct {
	Recipient uuid.UUID `json:"recipient"`
	Sender    uuid.UUID `json:"sender"`
	Value     int64     `json:"value"`
	Cost      int64     `json:"cost"`
}

// Settings is the per-class economic configuration of a lobby. Immutable
// within a round; replaced wholesale by an event action or an authorized
// update between games.
type Settings struct {
	StartMoney          map[ClassID]int64       `json:"start_money"`
	StartMagazine       map[ClassID]int64       `json:"start_magazine"`
	ResourcePrice       map[ClassID]int64       `json:"resource_price"`
	FixOrderCost        map[ClassID]int64       `json:"fix_order_cost"`
	MagazineCost        map[ClassID]int64       `json:"magazine_cost"`
	IncomingStartQueue  map[ClassID][]int64     `json:"incoming_start_queue"`
	RequestedStartQueue map[ClassID][]int64     `json:"requested_start_queue"`
	ResourceBasicPrice  int64                   `json:"resource_basic_price"`
	MaxRounds           int64                   `json:"max_rounds"`
	DemandStyle         sim.GeneratedOrderStyle `json:"demand_style"`
	SupplyStyle         sim.GeneratedOrderStyle `json:"supply_style"`
}

// UserState is one player's ledger.
type UserState struct {
	UserID          uuid.UUID `json:"user_id"`
	Money           int64     `json:"money"`
	SpentMoney      int64     `json:"spent_money"`
	MagazineState   int64     `json:"magazine_state"`
	Performance     int64     `json:"performance"`
	BackOrderSum    int64     `json:"back_order_sum"`
	IncomingOrders  []Order   `json:"incoming_orders"`
	RequestedOrders []Order   `json:"requested_orders"`
	SentOrders      []Order   `json:"sent_orders"`
	PlacedOrder     Order     `json:"placed_order"`
	ReceivedOrder   Order     `json:"received_order"`
}

// Clone returns a deep copy; the queues must not alias the original.
func (u *UserState) Clone() UserState {
	c := *u
	c.IncomingOrders = append([]Order(nil), u.IncomingOrders...)
	c.RequestedOrders = append([]Order(nil), u.RequestedOrders...)
	c.SentOrders = append([]Order(nil), u.SentOrders...)
	return c
}

// Lobby is the configured game room as the engine sees it. CRUD and
// membership live with the external lobby service; the engine only
// reads settings, events and the started flag, and flips started.
type Lobby struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	MaxPlayers int16      `json:"max_players"`
	Started    bool       `json:"started"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Settings   Settings   `json:"settings"`
	Events     GameEvents `json:"events"`
}

// GameUpdate is the full state snapshot broadcast on game start and on
// every round start.
type GameUpdate struct {
	PlayerStates  map[uuid.UUID]UserState `json:"player_states"`
	Round         int64                   `json:"round"`
	Flow          Flow                    `json:"flow"`
	Settings      Settings                `json:"settings"`
	RoundOrders   map[uuid.UUID]Order     `json:"round_orders"`
	SendOrders    map[uuid.UUID]Order     `json:"send_orders"`
	PlayerClasses map[uuid.UUID]ClassID   `json:"player_classes"`
}

// GameEnd carries the final ledgers plus the aggregate statistics bundle.
type GameEnd struct {
	PlayerStates map[uuid.UUID]UserState            `json:"player_states"`
	Stats        map[string]map[uuid.UUID][]int64   `json:"stats"`
}

// Snapshot is one durable, append-only row of round state: everything
// needed to rebuild a live RoundState after a crash and to diff rounds
// for event evaluation and statistics.
type Snapshot struct {
	GameID        uuid.UUID               `json:"game_id"`
	Round         int64                   `json:"round"`
	UserStates    map[uuid.UUID]UserState `json:"user_states"`
	RoundOrders   map[uuid.UUID]Order     `json:"round_orders"`
	SendOrders    map[uuid.UUID]Order     `json:"send_orders"`
	PlayerClasses map[uuid.UUID]ClassID   `json:"players_classes"`
	Flow          Flow                    `json:"flow"`
	Demand        int64                   `json:"demand"`
	Supply        int64                   `json:"supply"`
}
