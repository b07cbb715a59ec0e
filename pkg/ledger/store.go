package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store provides pebble-based persistence for balances.
// Thread-safe: all writes go through the ledger's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
		BytesPerSync: 512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeAmount(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeAmount(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid balance value length: %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// BalanceWrite is one balance update in an atomic write set.
type BalanceWrite struct {
	Asset  Asset
	Addr   common.Address
	Amount uint64
}

// SaveBalances persists a set of balance updates in one batch, so both
// legs of a transfer or all four legs of a settle land together.
func (s *Store) SaveBalances(writes []BalanceWrite) error {
	batch := s.db.NewBatch()
	for _, w := range writes {
		if err := batch.Set(balanceKey(w.Asset, w.Addr), encodeAmount(w.Amount), nil); err != nil {
			return fmt.Errorf("failed to stage balance write: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit balance writes: %w", err)
	}
	return nil
}

// LoadAll scans both asset prefixes and returns the persisted balance
// maps. Invalid entries are skipped.
func (s *Store) LoadAll() (base, quote map[common.Address]uint64, err error) {
	base, err = s.loadAsset(AssetBase)
	if err != nil {
		return nil, nil, err
	}
	quote, err = s.loadAsset(AssetQuote)
	if err != nil {
		return nil, nil, err
	}
	return base, quote, nil
}

func (s *Store) loadAsset(asset Asset) (map[common.Address]uint64, error) {
	prefix := []byte(balancePrefix(asset))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open balance iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := addrFromKey(iter.Key(), balancePrefix(asset))
		if err != nil {
			continue
		}
		amount, err := decodeAmount(iter.Value())
		if err != nil {
			continue
		}
		out[addr] = amount
	}
	return out, nil
}
