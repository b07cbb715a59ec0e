package book

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups against ids or prices that do not
// exist. Recoverable for optional lookups (scanning a sparse price
// range), fatal for protocol-required ones.
var ErrNotFound = errors.New("book: not found")

// Level is the FIFO queue of resting orders sharing one price.
// The order that arrived first is matched first (price-time priority
// within the level). Volume always equals the sum of member sizes.
type Level struct {
	Price  uint64
	Volume uint64
	orders []*LimitOrder
}

func NewLevel(price uint64) *Level {
	return &Level{Price: price}
}

// Push appends an order at the tail of the queue.
func (l *Level) Push(o *LimitOrder) {
	l.orders = append(l.orders, o)
	l.Volume += o.Size
}

// PeekFront returns the oldest resting order without removing it.
func (l *Level) PeekFront() (*LimitOrder, error) {
	if len(l.orders) == 0 {
		return nil, fmt.Errorf("%w: level %d is empty", ErrNotFound, l.Price)
	}
	return l.orders[0], nil
}

// PopFront removes and returns the oldest resting order.
func (l *Level) PopFront() (*LimitOrder, error) {
	if len(l.orders) == 0 {
		return nil, fmt.Errorf("%w: level %d is empty", ErrNotFound, l.Price)
	}
	o := l.orders[0]
	l.orders = l.orders[1:]
	l.Volume -= o.Size
	return o, nil
}

// ReduceFront shrinks the oldest resting order in place by qty, keeping
// the level volume exact. Used when a taker consumes only part of the
// front order.
func (l *Level) ReduceFront(qty uint64) error {
	front, err := l.PeekFront()
	if err != nil {
		return err
	}
	if err := front.Reduce(qty); err != nil {
		return err
	}
	l.Volume -= qty
	return nil
}

func (l *Level) IsEmpty() bool {
	return len(l.orders) == 0
}

func (l *Level) Len() int {
	return len(l.orders)
}
