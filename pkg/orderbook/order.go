// Package orderbook holds the locally-authoritative view of outstanding
// orders: local order records, the bijective correlation between a
// strategy's local order id and the broker's system order id, and the
// closed set of legal order-status transitions.
package orderbook

import "fmt"

// Side is the trading direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "Buy"
	}
	return "Sell"
}

// OrderType distinguishes a priced limit order from a market order.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

// Status is the closed set of states an order can occupy. It replaces
// the ad-hoc string statuses a broker wire protocol tends to hand back
// with an explicit, exhaustively-switchable type.
type Status int

const (
	StatusSubmitted Status = iota
	StatusAccepted
	StatusPartialFilled
	StatusFilled
	StatusCanceling
	StatusCancelled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusAccepted:
		return "Accepted"
	case StatusPartialFilled:
		return "PartialFilled"
	case StatusFilled:
		return "Filled"
	case StatusCanceling:
		return "Canceling"
	case StatusCancelled:
		return "Cancelled"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transitions are legal from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates every edge of the order lifecycle:
//
//	Submitted -> Accepted | Rejected
//	Accepted -> PartialFilled | Filled | Canceling | Cancelled | Rejected
//	PartialFilled -> PartialFilled | Filled | Canceling | Cancelled
//	Canceling -> Cancelled
var legalTransitions = map[Status]map[Status]bool{
	StatusSubmitted: {
		StatusAccepted: true,
		StatusRejected: true,
	},
	StatusAccepted: {
		StatusPartialFilled: true,
		StatusFilled:        true,
		StatusCanceling:     true,
		StatusCancelled:     true,
		StatusRejected:      true,
	},
	StatusPartialFilled: {
		StatusPartialFilled: true,
		StatusFilled:        true,
		StatusCanceling:     true,
		StatusCancelled:     true,
	},
	StatusCanceling: {
		StatusCancelled: true,
	},
}

// Transition validates and returns the result of moving an order from
// from to to, erroring on any edge not present in legalTransitions.
func Transition(from, to Status) (Status, error) {
	if from == to && from == StatusPartialFilled {
		return to, nil
	}
	if edges, ok := legalTransitions[from]; ok && edges[to] {
		return to, nil
	}
	return from, fmt.Errorf("orderbook: illegal status transition %s -> %s", from, to)
}

// Order is the local record of an order this process submitted, or (when
// IsLocal is false) observed via a broker push without having placed it
// itself — the case the limit-up guard watches for.
type Order struct {
	LocalID      string
	SystemID     string
	Symbol       string
	Side         Side
	Type         OrderType
	Price        float64
	Volume       int64
	Remark       string
	Status       Status
	FilledVolume int64
	FilledPrice  float64 // quantity-weighted average fill price
	LastFillPrice float64
	IsLocal      bool
}

// ApplyFill folds a new fill of qty shares at price into the order,
// recomputing the quantity-weighted average filled price and advancing
// status to PartialFilled or Filled.
func (o *Order) ApplyFill(qty int64, price float64) error {
	if qty <= 0 {
		return fmt.Errorf("orderbook: fill quantity must be positive, got %d", qty)
	}
	totalBefore := o.FilledVolume
	newTotal := totalBefore + qty
	if totalBefore == 0 {
		o.FilledPrice = price
	} else {
		o.FilledPrice = (o.FilledPrice*float64(totalBefore) + price*float64(qty)) / float64(newTotal)
	}
	o.FilledVolume = newTotal
	o.LastFillPrice = price

	next := StatusPartialFilled
	if o.FilledVolume >= o.Volume {
		next = StatusFilled
	}
	to, err := Transition(o.Status, next)
	if err != nil {
		return err
	}
	o.Status = to
	return nil
}

// SetStatus validates and applies a plain status transition (no fill).
func (o *Order) SetStatus(to Status) error {
	result, err := Transition(o.Status, to)
	if err != nil {
		return err
	}
	o.Status = result
	return nil
}
