package domain

// orderTransitions is the closed table of allowed order status changes.
// pending is initial; delivered and cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderCancelled},
	OrderPaid:    {OrderShipped, OrderCancelled},
	OrderShipped: {OrderDelivered},
}

// CanTransitionOrder reports whether from -> to is in the transition table.
// Anything not listed is rejected, including self-transitions.
func CanTransitionOrder(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var ticketTransitions = map[TicketOrderStatus][]TicketOrderStatus{
	TicketPending: {TicketConfirmed, TicketCancelled},
}

func CanTransitionTicket(from, to TicketOrderStatus) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func ValidTicketStatus(s TicketOrderStatus) bool {
	switch s {
	case TicketPending, TicketConfirmed, TicketCancelled:
		return true
	}
	return false
}
