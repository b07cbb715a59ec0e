package book

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Side identifies which half of the book an order belongs to.
type Side bool

const (
	Bid Side = true  // buy
	Ask Side = false // sell
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	return !s
}

// Crosses reports whether an incoming order of this side trades at the
// given level price. A bid crosses levels at or below its price, an ask
// crosses levels at or above its price.
func (s Side) Crosses(takerPrice, levelPrice uint64) bool {
	if s == Bid {
		return takerPrice >= levelPrice
	}
	return takerPrice <= levelPrice
}

// ErrUnderflow is returned when a reduction exceeds the available size.
// It always indicates a matching-logic bug in the caller.
var ErrUnderflow = errors.New("book: size underflow")

// IDHasher maps an order's identity preimage to a fixed-width id.
// Injectable so tests can pin ids.
type IDHasher func(preimage []byte) uint64

// KeccakID is the default IDHasher: keccak256 truncated big-endian to
// the first 8 bytes.
func KeccakID(preimage []byte) uint64 {
	h := sha3.NewLegacyKeccak256()
	h.Write(preimage)
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// LimitOrder is a fixed-price order for the base asset.
//
// ID is derived deterministically from the order's attributes and is the
// sole key used to correlate asynchronous settlement completions back to
// the originating match. Callable is the settlement target; empty means
// the order settles synchronously with no external call.
type LimitOrder struct {
	ID        uint64
	Owner     common.Address
	Callable  string
	Side      Side
	Price     uint64
	Size      uint64
	Timestamp int64
	Locked    bool
}

// NewLimitOrder creates an order stamped with the current time, using
// the default keccak id hash.
func NewLimitOrder(owner common.Address, callable string, side Side, price, size uint64) *LimitOrder {
	return NewLimitOrderAt(owner, callable, side, price, size, time.Now().UnixNano(), KeccakID)
}

// NewLimitOrderAt creates an order with an explicit timestamp and hash
// function.
func NewLimitOrderAt(owner common.Address, callable string, side Side, price, size uint64, ts int64, hash IDHasher) *LimitOrder {
	o := &LimitOrder{
		Owner:     owner,
		Callable:  callable,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: ts,
	}
	o.ID = hash(o.idPreimage())
	return o
}

func (o *LimitOrder) idPreimage() []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		o.Owner.Hex(), o.Callable, o.Timestamp, o.Price, o.Size, o.Side))
}

// Lock marks the order as undergoing matching. Idempotent.
func (o *LimitOrder) Lock() {
	o.Locked = true
}

// Reduce subtracts amount from the order's size. Callers must check
// sufficiency first; reducing past zero returns ErrUnderflow and leaves
// the order unchanged.
func (o *LimitOrder) Reduce(amount uint64) error {
	if amount > o.Size {
		return fmt.Errorf("%w: reduce %d, have %d (order %d)", ErrUnderflow, amount, o.Size, o.ID)
	}
	o.Size -= amount
	return nil
}

// Filled reports whether the order has no remaining size.
func (o *LimitOrder) Filled() bool {
	return o.Size == 0
}

// HasCallable reports whether the order carries an external settlement
// target.
func (o *LimitOrder) HasCallable() bool {
	return o.Callable != ""
}

// Snapshot returns an independent copy of the order.
func (o *LimitOrder) Snapshot() *LimitOrder {
	cp := *o
	return &cp
}
