package orders

type Status string

const (
	StatusCart       Status = "CART"
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// CART is a placeholder for unfinished carts and has no outgoing edges here:
// an order only enters the lifecycle at PENDING.
var validNext = map[Status]map[Status]bool{
	StatusCart:       {},
	StatusPending:    {StatusPaid: true, StatusCancelled: true},
	StatusPaid:       {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaidOrLater reports whether a payment has already been recorded for an
// order in status s.
func (s Status) PaidOrLater() bool {
	switch s {
	case StatusPaid, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}
