package book

import "sort"

// PriceLevel is an aggregate view of one populated level, used for
// snapshots and broadcasts.
type PriceLevel struct {
	Price  uint64 `json:"price"`
	Volume uint64 `json:"volume"`
}

// LevelTable holds one side of the book: a map from price to Level plus
// the min/max bounds of the populated price range. Tables are
// single-sided by construction; orders for the other side are ignored.
//
// A price inside [MinPrice, MaxPrice] that was never populated is a gap:
// Level reports it as absent and callers treat it as an empty level, not
// an error.
type LevelTable struct {
	side     Side
	levels   map[uint64]*Level
	minPrice uint64
	maxPrice uint64
}

func NewLevelTable(side Side) *LevelTable {
	return &LevelTable{
		side:   side,
		levels: make(map[uint64]*Level),
	}
}

func (t *LevelTable) Side() Side {
	return t.side
}

// AddOrder appends the order to the level at its price, creating the
// level and widening the price bounds on first use. Orders whose side
// does not match the table are dropped (guards against misrouting).
func (t *LevelTable) AddOrder(o *LimitOrder) {
	if o.Side != t.side {
		return
	}

	lvl, ok := t.levels[o.Price]
	if !ok {
		lvl = NewLevel(o.Price)
		t.levels[o.Price] = lvl
		if len(t.levels) == 1 {
			t.minPrice = o.Price
			t.maxPrice = o.Price
		} else {
			if o.Price < t.minPrice {
				t.minPrice = o.Price
			}
			if o.Price > t.maxPrice {
				t.maxPrice = o.Price
			}
		}
	}
	lvl.Push(o)
}

// Level returns the level at price, or (nil, false) if none was ever
// created there.
func (t *LevelTable) Level(price uint64) (*Level, bool) {
	lvl, ok := t.levels[price]
	return lvl, ok
}

// Empty reports whether the table holds no resting volume at all.
func (t *LevelTable) Empty() bool {
	for _, lvl := range t.levels {
		if !lvl.IsEmpty() {
			return false
		}
	}
	return true
}

func (t *LevelTable) MinPrice() uint64 {
	return t.minPrice
}

func (t *LevelTable) MaxPrice() uint64 {
	return t.maxPrice
}

// Snapshot returns the populated levels sorted best price first: bids
// high to low, asks low to high.
func (t *LevelTable) Snapshot() []PriceLevel {
	var out []PriceLevel
	for price, lvl := range t.levels {
		if lvl.IsEmpty() {
			continue
		}
		out = append(out, PriceLevel{Price: price, Volume: lvl.Volume})
	}
	sort.Slice(out, func(i, j int) bool {
		if t.side == Bid {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
