package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/book"
	"github.com/pairbook/pairbook/pkg/ledger"
	"github.com/pairbook/pairbook/pkg/settle"
)

// ErrLocked rejects an order that is already undergoing matching.
var ErrLocked = errors.New("engine: order is locked")

// Trade records one fill between a taker and a maker.
type Trade struct {
	ID        string    `json:"trade_id"`
	TakerID   uint64    `json:"taker_id"`
	MakerID   uint64    `json:"maker_id"`
	TakerSide book.Side `json:"-"`
	Price     uint64    `json:"price"`
	Quantity  uint64    `json:"quantity"`
	Settled   bool      `json:"settled"` // false while an external confirmation is outstanding
	Timestamp int64     `json:"timestamp"`
}

// Report is the finalization outcome of one taker order.
type Report struct {
	TakerID       uint64 `json:"taker_id"`
	RemainingSize uint64 `json:"remaining_size"`
	Status        string `json:"status"`
	Final         bool   `json:"final"`
}

// Engine owns the two level tables, the pending registry and the
// balance ledger, and orchestrates the life of an order: match, dispatch
// settlements, aggregate their completions, finalize.
//
// Book state is mutated under a single mutex; completions are applied
// one at a time by the Run loop draining the completion queue, so there
// is no true parallelism over the book.
type Engine struct {
	mu sync.Mutex

	bids *book.LevelTable
	asks *book.LevelTable

	pending *PendingRegistry
	// dispatched fills awaiting confirmation, keyed by the (taker,
	// maker) pair so repeated matches against one maker never share an
	// entry.
	matches map[matchKey]pendingMatch
	// outstanding settlement confirmations per taker id; the AND-join
	// barrier fires finalization when the count returns to zero.
	joins map[uint64]int

	ledger     *ledger.BalanceLedger
	dispatcher settle.Dispatcher
	queue      *settle.Queue

	// OnTrade and OnFinalization, when set, observe fills and terminal
	// reports (used to feed the websocket hub).
	OnTrade        func(Trade)
	OnFinalization func(Report)

	log *zap.SugaredLogger
}

func New(bl *ledger.BalanceLedger, d settle.Dispatcher, q *settle.Queue, log *zap.SugaredLogger) *Engine {
	return &Engine{
		bids:       book.NewLevelTable(book.Bid),
		asks:       book.NewLevelTable(book.Ask),
		pending:    NewPendingRegistry(),
		matches:    make(map[matchKey]pendingMatch),
		joins:      make(map[uint64]int),
		ledger:     bl,
		dispatcher: d,
		queue:      q,
		log:        log,
	}
}

// Ledger exposes the balance ledger for deposits and queries.
func (e *Engine) Ledger() *ledger.BalanceLedger {
	return e.ledger
}

// BidLevels returns the populated bid levels, best first.
func (e *Engine) BidLevels() []book.PriceLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bids.Snapshot()
}

// AskLevels returns the populated ask levels, best first.
func (e *Engine) AskLevels() []book.PriceLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.asks.Snapshot()
}

// PendingCount reports how many taker snapshots are in flight.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// MatchCount reports how many dispatched fills await confirmation.
func (e *Engine) MatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.matches)
}

// Submit matches an incoming order against the opposing side of the
// book. Fills against makers without a settlement target settle
// immediately; fills against callable makers dispatch a settlement
// request and the taker finalizes only after every confirmation has
// arrived. A residual that no level crosses rests on the taker's own
// side as maker liquidity.
//
// The returned report is final when no confirmations are outstanding.
func (e *Engine) Submit(ctx context.Context, o *book.LimitOrder) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o.Locked {
		return nil, fmt.Errorf("%w: order %d", ErrLocked, o.ID)
	}
	if o.Size == 0 {
		return nil, fmt.Errorf("%w: order %d has zero size", book.ErrUnderflow, o.ID)
	}

	o.Lock()
	e.pending.Put(o.Snapshot())

	opposing := e.asks
	if o.Side == book.Ask {
		opposing = e.bids
	}

	e.scan(ctx, o, opposing)

	if o.Size > 0 {
		rest := o.Snapshot()
		rest.Locked = false
		e.own(o.Side).AddOrder(rest)
		e.log.Infow("order_rested", "order_id", o.ID, "side", o.Side, "price", o.Price, "remaining", o.Size)
	}

	if e.joins[o.ID] == 0 {
		rep := e.finalizeLocked(o.ID)
		return rep, nil
	}

	snap, _ := e.pending.Get(o.ID)
	return &Report{
		TakerID:       o.ID,
		RemainingSize: snap.Size,
		Status:        "settlement pending",
	}, nil
}

func (e *Engine) own(s book.Side) *book.LevelTable {
	if s == book.Bid {
		return e.bids
	}
	return e.asks
}

// scan walks the opposing table's prices best-first over the closed
// populated range, consuming resting orders until the taker is
// exhausted. Gaps in the range are skipped as empty levels.
func (e *Engine) scan(ctx context.Context, taker *book.LimitOrder, opposing *book.LevelTable) {
	if opposing.Empty() {
		return
	}

	min, max := opposing.MinPrice(), opposing.MaxPrice()

	if taker.Side == book.Bid {
		// Asks: best price is the lowest. Both legs check the bound
		// before stepping so a range ending at a uint64 extreme cannot
		// wrap.
		for p := min; ; p++ {
			if !e.scanLevel(ctx, taker, opposing, p) {
				return
			}
			if p == max {
				return
			}
		}
	} else {
		// Bids: best price is the highest.
		for p := max; ; p-- {
			if !e.scanLevel(ctx, taker, opposing, p) {
				return
			}
			if p == min {
				return
			}
		}
	}
}

// scanLevel consumes makers at one price. Returns false once scanning
// should stop: taker exhausted, or the price no longer crosses (every
// later price is worse).
func (e *Engine) scanLevel(ctx context.Context, taker *book.LimitOrder, opposing *book.LevelTable, price uint64) bool {
	if taker.Size == 0 {
		return false
	}
	if !taker.Side.Crosses(taker.Price, price) {
		return false
	}

	lvl, ok := opposing.Level(price)
	if !ok || lvl.IsEmpty() {
		return true
	}

	for taker.Size > 0 && !lvl.IsEmpty() {
		maker, err := lvl.PeekFront()
		if err != nil {
			return true
		}

		qty := taker.Size
		if maker.Size < qty {
			qty = maker.Size
		}

		if qty == maker.Size {
			if _, err := lvl.PopFront(); err != nil {
				return true
			}
		} else {
			if err := lvl.ReduceFront(qty); err != nil {
				e.log.Errorw("level_reduce_failed", "price", price, "qty", qty, "err", err)
				return false
			}
		}

		if err := taker.Reduce(qty); err != nil {
			e.log.Errorw("taker_reduce_failed", "order_id", taker.ID, "qty", qty, "err", err)
			return false
		}

		e.fill(ctx, taker, maker, qty, price)
	}
	return true
}

// fill settles one match: synchronously when the maker has no
// settlement target, otherwise by dispatching a confirmation request and
// joining its completion into the taker's barrier.
func (e *Engine) fill(ctx context.Context, taker, maker *book.LimitOrder, qty, price uint64) {
	quoteAmt := qty * price
	settled := false

	if maker.HasCallable() {
		maker.Lock()
		e.matches[matchKey{taker.ID, maker.ID}] = pendingMatch{
			makerOwner: maker.Owner,
			qty:        qty,
			price:      price,
		}
		e.joins[taker.ID]++

		req := settle.NewRequest(maker.Callable, maker.ID, taker.ID, qty, price)
		if err := e.dispatcher.Dispatch(ctx, req); err != nil {
			e.log.Warnw("settlement_dispatch_failed", "maker_id", maker.ID, "taker_id", taker.ID, "err", err)
		}
	} else {
		if err := e.settleLocked(taker.ID, maker.Owner, qty, quoteAmt); err != nil {
			e.log.Warnw("sync_settlement_failed",
				"taker_id", taker.ID, "maker_id", maker.ID, "qty", qty, "err", err)
		} else {
			settled = true
		}
	}

	t := Trade{
		ID:        uuid.New().String(),
		TakerID:   taker.ID,
		MakerID:   maker.ID,
		TakerSide: taker.Side,
		Price:     price,
		Quantity:  qty,
		Settled:   settled,
		Timestamp: time.Now().UnixMilli(),
	}
	e.log.Infow("fill",
		"trade_id", t.ID, "taker_id", t.TakerID, "maker_id", t.MakerID,
		"price", price, "qty", qty, "settled", settled)
	if e.OnTrade != nil {
		e.OnTrade(t)
	}
}

// settleLocked moves both legs of a confirmed match and reduces the
// taker's pending snapshot by the settled base quantity.
func (e *Engine) settleLocked(takerID uint64, makerOwner common.Address, qty, quoteAmt uint64) error {
	snap, err := e.pending.Get(takerID)
	if err != nil {
		return err
	}
	if err := e.ledger.Settle(snap.Owner, makerOwner, qty, quoteAmt, snap.Side); err != nil {
		return err
	}
	return snap.Reduce(qty)
}

// OnSettlementComplete applies one settlement outcome. The taker id
// must resolve in the pending registry and the (taker, maker) pair in
// the match table; a completion for an unknown match is a protocol
// violation and mutates nothing. On success the match's balances move
// and the taker snapshot shrinks; on failure nothing moves. Either way
// the match entry is cleared and the taker's barrier is signalled,
// firing finalization after the last outstanding completion.
func (e *Engine) OnSettlementComplete(takerID, makerID uint64, success bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.pending.Get(takerID); err != nil {
		return err
	}
	key := matchKey{takerID: takerID, makerID: makerID}
	m, ok := e.matches[key]
	if !ok {
		return fmt.Errorf("%w: no pending match %d/%d", book.ErrNotFound, takerID, makerID)
	}

	if success {
		if err := e.settleLocked(takerID, m.makerOwner, m.qty, m.qty*m.price); err != nil {
			e.log.Warnw("settlement_transfer_failed",
				"taker_id", takerID, "maker_id", makerID, "err", err)
		}
	} else {
		e.log.Warnw("settlement_rejected", "taker_id", takerID, "maker_id", makerID)
	}

	delete(e.matches, key)

	if n := e.joins[takerID]; n > 0 {
		e.joins[takerID] = n - 1
		if n == 1 {
			rep := e.finalizeLocked(takerID)
			e.log.Infow("order_finalized_async", "taker_id", takerID, "status", rep.Status)
		}
	}
	return nil
}

// finalizeLocked produces the terminal report for a taker and retires
// its registry entry.
func (e *Engine) finalizeLocked(takerID uint64) *Report {
	rep := &Report{TakerID: takerID, Final: true}

	snap, err := e.pending.Get(takerID)
	if err == nil {
		rep.RemainingSize = snap.Size
		if snap.Size == 0 {
			rep.Status = fmt.Sprintf("order %d filled completely", takerID)
		} else {
			rep.Status = fmt.Sprintf("order %d filled partially, remaining = %d", takerID, snap.Size)
		}
	} else {
		rep.Status = fmt.Sprintf("order %d has no pending record", takerID)
	}

	e.pending.Remove(takerID)
	delete(e.joins, takerID)

	e.log.Infow("order_finalized", "taker_id", takerID, "remaining", rep.RemainingSize)
	if e.OnFinalization != nil {
		e.OnFinalization(*rep)
	}
	return rep
}

// Run drains the completion queue until the context is cancelled. All
// host-delivered settlement callbacks flow through here, one at a time.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-e.queue.C():
			if err := e.OnSettlementComplete(c.TakerID, c.MakerID, c.Success); err != nil {
				e.log.Warnw("completion_rejected",
					"taker_id", c.TakerID, "maker_id", c.MakerID, "err", err)
			}
		}
	}
}
