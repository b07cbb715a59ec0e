package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/book"
)

// Asset selects one of the two fungible assets of the book.
type Asset bool

const (
	AssetBase  Asset = true
	AssetQuote Asset = false
)

func (a Asset) String() string {
	if a == AssetBase {
		return "base"
	}
	return "quote"
}

// ParseAsset maps the wire names "base"/"quote" to an Asset.
func ParseAsset(s string) (Asset, error) {
	switch s {
	case "base":
		return AssetBase, nil
	case "quote":
		return AssetQuote, nil
	}
	return AssetBase, fmt.Errorf("%w: unknown asset %q", ErrUnknownAsset, s)
}

var (
	ErrSelfTransfer        = errors.New("ledger: transfer to self")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrUnknownAsset        = errors.New("ledger: unknown asset")
)

// balanceStore is the persistence the ledger writes through; *Store
// implements it.
type balanceStore interface {
	SaveBalances(writes []BalanceWrite) error
	LoadAll() (base, quote map[common.Address]uint64, err error)
}

// BalanceLedger tracks per-account balances of the base and quote
// assets. Transfers are zero-sum and never allowed to underflow; a
// transfer that would underflow is rejected without mutation.
//
// Persistence is optional: with a Store attached, every mutation is
// written through to pebble and existing balances are loaded at
// construction. Writes commit before the in-memory maps mutate, so a
// failed write leaves memory and disk agreeing.
type BalanceLedger struct {
	mu    sync.RWMutex
	base  map[common.Address]uint64
	quote map[common.Address]uint64
	store balanceStore
	log   *zap.SugaredLogger
}

// New creates an in-memory ledger.
func New(log *zap.SugaredLogger) *BalanceLedger {
	return &BalanceLedger{
		base:  make(map[common.Address]uint64),
		quote: make(map[common.Address]uint64),
		log:   log,
	}
}

// NewWithStore creates a ledger backed by a pebble store, reloading any
// persisted balances.
func NewWithStore(store *Store, log *zap.SugaredLogger) (*BalanceLedger, error) {
	l := New(log)
	l.store = store

	base, quote, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	l.base = base
	l.quote = quote
	return l, nil
}

func (l *BalanceLedger) balances(asset Asset) map[common.Address]uint64 {
	if asset == AssetBase {
		return l.base
	}
	return l.quote
}

// Deposit credits an account unconditionally. Deposits are trusted
// inputs from the external asset bridge.
func (l *BalanceLedger) Deposit(acct common.Address, amount uint64, asset Asset) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.balances(asset)
	next := m[acct] + amount

	if l.store != nil {
		if err := l.store.SaveBalances([]BalanceWrite{{asset, acct, next}}); err != nil {
			return fmt.Errorf("failed to persist deposit: %w", err)
		}
	}
	m[acct] = next

	l.log.Infow("deposit", "account", acct.Hex(), "asset", asset, "amount", amount)
	return nil
}

// Balance returns the account's balance for asset; zero for unknown
// accounts.
func (l *BalanceLedger) Balance(acct common.Address, asset Asset) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances(asset)[acct]
}

// Transfer moves amount of asset from one account to another. The
// decrement and increment happen together or not at all.
func (l *BalanceLedger) Transfer(from, to common.Address, amount uint64, asset Asset) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount, asset)
}

func (l *BalanceLedger) transferLocked(from, to common.Address, amount uint64, asset Asset) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, from.Hex())
	}

	m := l.balances(asset)
	if m[from] < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientBalance, from.Hex(), m[from], asset, amount)
	}

	fromNext := m[from] - amount
	toNext := m[to] + amount

	if l.store != nil {
		writes := []BalanceWrite{
			{asset, from, fromNext},
			{asset, to, toNext},
		}
		if err := l.store.SaveBalances(writes); err != nil {
			return fmt.Errorf("failed to persist transfer: %w", err)
		}
	}
	m[from] = fromNext
	m[to] = toNext
	return nil
}

// Settle applies both legs of a matched fill atomically: qty of the base
// asset moves between taker and maker, and quoteAmt of the quote asset
// moves the other way, with direction selected by the taker's side. Both
// preconditions are checked before either balance mutates, so a failed
// settle leaves the ledger untouched.
func (l *BalanceLedger) Settle(taker, maker common.Address, qty, quoteAmt uint64, takerSide book.Side) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if taker == maker {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, taker.Hex())
	}

	// Buyer receives base and pays quote.
	baseFrom, baseTo := maker, taker
	quoteFrom, quoteTo := taker, maker
	if takerSide == book.Ask {
		baseFrom, baseTo = taker, maker
		quoteFrom, quoteTo = maker, taker
	}

	if l.base[baseFrom] < qty {
		return fmt.Errorf("%w: %s has %d base, need %d", ErrInsufficientBalance, baseFrom.Hex(), l.base[baseFrom], qty)
	}
	if l.quote[quoteFrom] < quoteAmt {
		return fmt.Errorf("%w: %s has %d quote, need %d", ErrInsufficientBalance, quoteFrom.Hex(), l.quote[quoteFrom], quoteAmt)
	}

	baseFromNext := l.base[baseFrom] - qty
	baseToNext := l.base[baseTo] + qty
	quoteFromNext := l.quote[quoteFrom] - quoteAmt
	quoteToNext := l.quote[quoteTo] + quoteAmt

	if l.store != nil {
		writes := []BalanceWrite{
			{AssetBase, baseFrom, baseFromNext},
			{AssetBase, baseTo, baseToNext},
			{AssetQuote, quoteFrom, quoteFromNext},
			{AssetQuote, quoteTo, quoteToNext},
		}
		if err := l.store.SaveBalances(writes); err != nil {
			return fmt.Errorf("failed to persist settle: %w", err)
		}
	}
	l.base[baseFrom] = baseFromNext
	l.base[baseTo] = baseToNext
	l.quote[quoteFrom] = quoteFromNext
	l.quote[quoteTo] = quoteToNext

	l.log.Infow("settled",
		"taker", taker.Hex(), "maker", maker.Hex(),
		"qty", qty, "quote", quoteAmt, "taker_side", takerSide)
	return nil
}

// TotalSupply sums all balances of asset across accounts.
func (l *BalanceLedger) TotalSupply(asset Asset) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, v := range l.balances(asset) {
		total += v
	}
	return total
}
