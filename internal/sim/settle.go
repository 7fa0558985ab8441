package sim

// OrderCost computes the money cost of an order of the given size.
// A zero-quantity order is free: the fixed cost applies only when
// something is actually ordered.
func OrderCost(value, unitPrice, fixedCost int64) int64 {
	if value == 0 {
		return 0
	}
	return value*unitPrice + fixedCost
}

// BackorderSettlement is the outcome of settling one requested order
// against a player's inventory and carried backorder debt.
type BackorderSettlement struct {
	SendValue    int64 // quantity committed to the outgoing shipment
	NewMagazine  int64 // inventory remaining after settlement
	NewBackorder int64 // debt carried into the next round
}

// SettleBackorder fulfills one requested order. Old backorder debt is
// drained from inventory first; the fresh request is then served from
// whatever remains. The shipment always commits the full requested
// quantity; when inventory falls short the shortfall becomes new debt,
// it never shrinks the shipment.
func SettleBackorder(magazine, backorder, requested int64) BackorderSettlement {
	var send int64

	if backorder > magazine {
		send = magazine
		backorder -= magazine
		magazine = 0
	} else if backorder > 0 {
		magazine -= backorder
		send = backorder
		backorder = 0
	}

	if requested <= magazine {
		magazine -= requested
	} else {
		backorder += requested - magazine
		magazine = 0
	}
	send += requested

	return BackorderSettlement{
		SendValue:    send,
		NewMagazine:  magazine,
		NewBackorder: backorder,
	}
}
