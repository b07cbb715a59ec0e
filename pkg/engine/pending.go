package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pairbook/pairbook/pkg/book"
)

// PendingRegistry holds in-flight taker snapshots keyed by order id. An
// entry exists from submission until the taker's finalization.
//
// Not self-locking: all access happens under the engine mutex.
type PendingRegistry struct {
	orders map[uint64]*book.LimitOrder
}

func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{orders: make(map[uint64]*book.LimitOrder)}
}

func (r *PendingRegistry) Put(o *book.LimitOrder) {
	r.orders[o.ID] = o
}

// Get returns the snapshot for id. A miss is a protocol violation for
// completion callbacks and surfaces as ErrNotFound.
func (r *PendingRegistry) Get(id uint64) (*book.LimitOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: no pending order %d", book.ErrNotFound, id)
	}
	return o, nil
}

func (r *PendingRegistry) Remove(id uint64) {
	delete(r.orders, id)
}

func (r *PendingRegistry) Len() int {
	return len(r.orders)
}

// matchKey identifies one dispatched fill by both parties. A partially
// consumed maker stays on the book and can be matched again by another
// taker before its first confirmation arrives, so the maker id alone
// does not identify a fill.
type matchKey struct {
	takerID uint64
	makerID uint64
}

// pendingMatch is what a confirmation settles: the maker's account and
// the matched quantity at the maker's price.
type pendingMatch struct {
	makerOwner common.Address
	qty        uint64
	price      uint64
}
