package game

import (
	"supplyline/internal/sim"

	"github.com/google/uuid"
)

// RoundState is the single authoritative live state of one in-progress
// game. All mutation happens under the owning lobby's lock; nothing in
// this file locks on its own.
type RoundState struct {
	Round           int64
	Players         int64
	PlayersFinished int64
	UserStates      map[uuid.UUID]UserState
	RoundOrders     map[uuid.UUID]Order
	SendOrders      map[uuid.UUID]Order
	PlayerClasses   map[uuid.UUID]ClassID
	Settings        Settings
	Flow            Flow
	Demand          int64
	Supply          int64
}

// NewGame builds the initial RoundState for a starting game: flow from
// roster order, per-class starting ledgers, seeded order queues, and
// the first demand/supply values. Any missing class lookup aborts the
// whole start; a partially initialized game is never returned.
func NewGame(settings Settings, roster []uuid.UUID, classes map[uuid.UUID]ClassID) (*RoundState, error) {
	if err := settings.DemandStyle.Validate(); err != nil {
		return nil, WrapErr(KindConfig, err, "demand style")
	}
	if err := settings.SupplyStyle.Validate(); err != nil {
		return nil, WrapErr(KindConfig, err, "supply style")
	}

	flow, err := BuildFlow(roster)
	if err != nil {
		return nil, err
	}

	states := make(map[uuid.UUID]UserState, len(roster))
	for _, pid := range roster {
		class, ok := classes[pid]
		if !ok {
			return nil, Errorf(KindConfig, "no class assignment for player %s", pid)
		}
		startMoney, ok := settings.StartMoney[class]
		if !ok {
			return nil, Errorf(KindConfig, "start money for class %d not configured", class)
		}
		startMagazine, ok := settings.StartMagazine[class]
		if !ok {
			return nil, Errorf(KindConfig, "start magazine for class %d not configured", class)
		}
		incomingValues, ok := settings.IncomingStartQueue[class]
		if !ok {
			return nil, Errorf(KindConfig, "incoming start queue for class %d not configured", class)
		}
		requestedValues, ok := settings.RequestedStartQueue[class]
		if !ok {
			return nil, Errorf(KindConfig, "requested start queue for class %d not configured", class)
		}

		sender, err := flow.Sender(pid)
		if err != nil {
			return nil, err
		}
		recipient, err := flow.Recipient(pid)
		if err != nil {
			return nil, err
		}

		incoming := make([]Order, 0, len(incomingValues))
		for _, v := range incomingValues {
			incoming = append(incoming, Order{
				Recipient: pid,
				Sender:    sender,
				Value:     v,
				Cost:      settings.ResourceBasicPrice * v,
			})
		}

		requested := make([]Order, 0, len(requestedValues))
		for _, v := range requestedValues {
			requested = append(requested, Order{
				Recipient: recipient,
				Sender:    pid,
				Value:     v,
				Cost:      settings.ResourceBasicPrice * v,
			})
		}

		states[pid] = UserState{
			UserID:          pid,
			Money:           startMoney,
			MagazineState:   startMagazine,
			IncomingOrders:  incoming,
			RequestedOrders: requested,
			SentOrders:      []Order{},
		}
	}

	demand, err := settings.DemandStyle.InitialValue()
	if err != nil {
		return nil, WrapErr(KindConfig, err, "demand style")
	}
	supply, err := settings.SupplyStyle.InitialValue()
	if err != nil {
		return nil, WrapErr(KindConfig, err, "supply style")
	}

	classCopy := make(map[uuid.UUID]ClassID, len(classes))
	for k, v := range classes {
		classCopy[k] = v
	}

	return &RoundState{
		Round:         0,
		Players:       int64(len(roster)),
		UserStates:    states,
		RoundOrders:   make(map[uuid.UUID]Order),
		SendOrders:    make(map[uuid.UUID]Order),
		PlayerClasses: classCopy,
		Settings:      settings,
		Flow:          flow,
		Demand:        demand,
		Supply:        supply,
	}, nil
}

// ApplySubmission ingests one player's end-of-round order: costs it,
// debits money and holding cost, credits the inventory inflow, settles
// the pending request into an outgoing shipment, and files both orders
// into the round maps. Returns true when this was the last outstanding
// submission of the round.
//
// The whole submission either commits or leaves the state untouched:
// all lookups and the money check run before any mutation, and the
// ledger is worked on a copy until the final commit.
func (rs *RoundState) ApplySubmission(player uuid.UUID, quantity int64) (bool, error) {
	class, ok := rs.PlayerClasses[player]
	if !ok {
		return false, Errorf(KindBadRequest, "class for player %s not found", player)
	}
	if _, ok := rs.RoundOrders[player]; ok {
		return false, Errorf(KindConflict, "player %s already submitted this round", player)
	}
	price, ok := rs.Settings.ResourcePrice[class]
	if !ok {
		return false, Errorf(KindBadRequest, "resource price for class %d not found", class)
	}
	fixCost, ok := rs.Settings.FixOrderCost[class]
	if !ok {
		return false, Errorf(KindBadRequest, "fix order cost for class %d not found", class)
	}
	magazineCost, ok := rs.Settings.MagazineCost[class]
	if !ok {
		return false, Errorf(KindBadRequest, "magazine cost for class %d not found", class)
	}

	stored, ok := rs.UserStates[player]
	if !ok {
		return false, Errorf(KindInternal, "expected a user state for %s", player)
	}

	cost := sim.OrderCost(quantity, price, fixCost)
	if cost > stored.Money {
		return false, Errorf(KindBadRequest, "not enough money for placed order")
	}

	sender, err := rs.Flow.Sender(player)
	if err != nil {
		return false, err
	}
	recipient, err := rs.Flow.Recipient(player)
	if err != nil {
		return false, err
	}

	us := stored.Clone()

	if len(us.IncomingOrders) == 0 {
		return false, Errorf(KindInternal, "expected a queued incoming order for %s", player)
	}
	if len(us.RequestedOrders) == 0 {
		return false, Errorf(KindInternal, "expected a queued requested order for %s", player)
	}

	placed := Order{Recipient: player, Sender: sender, Value: quantity, Cost: cost}
	us.Money -= cost
	us.SpentMoney += cost
	us.PlacedOrder = placed

	holding := us.MagazineState * magazineCost
	us.Money -= holding
	us.SpentMoney += holding

	received := us.IncomingOrders[0]
	us.IncomingOrders = us.IncomingOrders[1:]
	us.MagazineState += received.Value
	us.ReceivedOrder = received

	requested := us.RequestedOrders[0]
	us.RequestedOrders = us.RequestedOrders[1:]

	settled := sim.SettleBackorder(us.MagazineState, us.BackOrderSum, requested.Value)
	us.MagazineState = settled.NewMagazine
	us.BackOrderSum = settled.NewBackorder

	sent := Order{
		Recipient: recipient,
		Sender:    player,
		Value:     settled.SendValue,
		Cost:      sim.OrderCost(settled.SendValue, price, fixCost),
	}
	us.SentOrders = append(us.SentOrders, sent)

	rs.UserStates[player] = us
	rs.RoundOrders[player] = placed
	rs.SendOrders[player] = sent
	rs.PlayersFinished++

	return rs.PlayersFinished == rs.Players, nil
}

// AdvanceRound runs the round transition on this state: synthesizes the
// external demand and supply orders, folds the round's order maps into
// the per-player queues for the next round, and advances the round
// counter. Callers run this on a working copy and swap it in only after
// the snapshot is durably written.
func (rs *RoundState) AdvanceRound() error {
	nextDemand := sim.GenerateNext(rs.Demand, rs.Settings.DemandStyle)
	rs.RoundOrders[uuid.Nil] = Order{
		Recipient: uuid.Nil,
		Sender:    rs.Flow.LastPlayer,
		Value:     nextDemand,
		Cost:      rs.Settings.ResourceBasicPrice * nextDemand,
	}

	// The external supplier ships what the first player just ordered,
	// capped at the generated supply level when that is lower.
	firstOrder, ok := rs.RoundOrders[rs.Flow.FirstPlayer]
	if !ok {
		return Errorf(KindInternal, "first player order not found")
	}
	supplyOrder := firstOrder
	if nextSupply := sim.GenerateNext(rs.Supply, rs.Settings.SupplyStyle); nextSupply < firstOrder.Value {
		supplyOrder = Order{
			Recipient: rs.Flow.FirstPlayer,
			Sender:    uuid.Nil,
			Value:     nextSupply,
			Cost:      rs.Settings.ResourceBasicPrice * nextSupply,
		}
	}
	rs.SendOrders[uuid.Nil] = supplyOrder

	// Every placed order becomes a requested order on its supplier's
	// queue next round; the first player's order goes to the external
	// supplier and is answered by the supply sentinel instead.
	for _, order := range rs.RoundOrders {
		if order.Sender == uuid.Nil {
			continue
		}
		us, ok := rs.UserStates[order.Sender]
		if !ok {
			return Errorf(KindInternal, "no user state for requested order sender %s", order.Sender)
		}
		us.RequestedOrders = append(us.RequestedOrders, order)
		rs.UserStates[order.Sender] = us
	}

	// Every shipment becomes inventory inflow on its recipient's queue.
	for _, order := range rs.SendOrders {
		if order.Recipient == uuid.Nil {
			continue
		}
		us, ok := rs.UserStates[order.Recipient]
		if !ok {
			return Errorf(KindInternal, "no user state for shipment recipient %s", order.Recipient)
		}
		us.IncomingOrders = append(us.IncomingOrders, order)
		rs.UserStates[order.Recipient] = us
	}

	rs.Round++
	rs.Demand = nextDemand

	return nil
}

// Finished reports whether the game has reached its configured round
// limit.
func (rs *RoundState) Finished() bool {
	return rs.Round == rs.Settings.MaxRounds
}

// BeginNextRound resets the per-round bookkeeping and returns the
// round-start payload, which carries the order maps of the round that
// just closed.
func (rs *RoundState) BeginNextRound() GameUpdate {
	roundOrders := rs.RoundOrders
	sendOrders := rs.SendOrders

	rs.PlayersFinished = 0
	rs.RoundOrders = make(map[uuid.UUID]Order)
	rs.SendOrders = make(map[uuid.UUID]Order)

	return GameUpdate{
		PlayerStates:  cloneUserStates(rs.UserStates),
		Round:         rs.Round,
		Flow:          rs.Flow,
		Settings:      rs.Settings,
		RoundOrders:   roundOrders,
		SendOrders:    sendOrders,
		PlayerClasses: clonePlayerClasses(rs.PlayerClasses),
	}
}

// Update builds the full-state payload broadcast at game start.
func (rs *RoundState) Update() GameUpdate {
	return GameUpdate{
		PlayerStates:  cloneUserStates(rs.UserStates),
		Round:         rs.Round,
		Flow:          rs.Flow,
		Settings:      rs.Settings,
		RoundOrders:   cloneOrders(rs.RoundOrders),
		SendOrders:    cloneOrders(rs.SendOrders),
		PlayerClasses: clonePlayerClasses(rs.PlayerClasses),
	}
}

// Snapshot captures the state as one durable append-only row.
func (rs *RoundState) Snapshot(gameID uuid.UUID) *Snapshot {
	return &Snapshot{
		GameID:        gameID,
		Round:         rs.Round,
		UserStates:    cloneUserStates(rs.UserStates),
		RoundOrders:   cloneOrders(rs.RoundOrders),
		SendOrders:    cloneOrders(rs.SendOrders),
		PlayerClasses: clonePlayerClasses(rs.PlayerClasses),
		Flow:          rs.Flow,
		Demand:        rs.Demand,
		Supply:        rs.Supply,
	}
}

// Restore rebuilds a live RoundState from a persisted snapshot row plus
// the lobby settings (settings are stored on the lobby, not the row).
// Used on process restart before any traffic is accepted. The row's
// order maps describe the round that closed; the live round starts
// fresh, as after BeginNextRound.
func Restore(snap *Snapshot, settings Settings) *RoundState {
	return &RoundState{
		Round:           snap.Round,
		Players:         int64(len(snap.UserStates)),
		PlayersFinished: 0,
		UserStates:      cloneUserStates(snap.UserStates),
		RoundOrders:     make(map[uuid.UUID]Order),
		SendOrders:      make(map[uuid.UUID]Order),
		PlayerClasses:   clonePlayerClasses(snap.PlayerClasses),
		Settings:        settings,
		Flow:            snap.Flow,
		Demand:          snap.Demand,
		Supply:          snap.Supply,
	}
}

// Clone deep-copies the state for the persist-then-swap round
// transition.
func (rs *RoundState) Clone() *RoundState {
	c := *rs
	c.UserStates = cloneUserStates(rs.UserStates)
	c.RoundOrders = cloneOrders(rs.RoundOrders)
	c.SendOrders = cloneOrders(rs.SendOrders)
	c.PlayerClasses = clonePlayerClasses(rs.PlayerClasses)
	return &c
}

func cloneUserStates(in map[uuid.UUID]UserState) map[uuid.UUID]UserState {
	out := make(map[uuid.UUID]UserState, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

func cloneOrders(in map[uuid.UUID]Order) map[uuid.UUID]Order {
	out := make(map[uuid.UUID]Order, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clonePlayerClasses(in map[uuid.UUID]ClassID) map[uuid.UUID]ClassID {
	out := make(map[uuid.UUID]ClassID, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
