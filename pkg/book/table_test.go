package book

import "testing"

func TestTableRejectsWrongSide(t *testing.T) {
	bids := NewLevelTable(Bid)
	bids.AddOrder(NewLimitOrder(alice, "", Ask, 100, 5))

	if !bids.Empty() {
		t.Fatal("ask order should not land in the bid table")
	}
}

func TestTableBounds(t *testing.T) {
	asks := NewLevelTable(Ask)

	asks.AddOrder(NewLimitOrder(alice, "", Ask, 100, 1))
	if asks.MinPrice() != 100 || asks.MaxPrice() != 100 {
		t.Fatalf("first order bounds = [%d, %d], want [100, 100]", asks.MinPrice(), asks.MaxPrice())
	}

	asks.AddOrder(NewLimitOrder(alice, "", Ask, 95, 1))
	asks.AddOrder(NewLimitOrder(alice, "", Ask, 110, 1))
	if asks.MinPrice() != 95 || asks.MaxPrice() != 110 {
		t.Fatalf("bounds = [%d, %d], want [95, 110]", asks.MinPrice(), asks.MaxPrice())
	}
}

func TestTableGapIsNotAnError(t *testing.T) {
	asks := NewLevelTable(Ask)
	asks.AddOrder(NewLimitOrder(alice, "", Ask, 90, 1))
	asks.AddOrder(NewLimitOrder(alice, "", Ask, 110, 1))

	// 100 sits inside the populated range but was never used.
	if lvl, ok := asks.Level(100); ok {
		t.Fatalf("gap price returned a level: %+v", lvl)
	}
}

func TestTableAccumulatesAtSamePrice(t *testing.T) {
	bids := NewLevelTable(Bid)
	bids.AddOrder(NewLimitOrder(alice, "", Bid, 100, 3))
	bids.AddOrder(NewLimitOrder(bob, "", Bid, 100, 4))

	lvl, ok := bids.Level(100)
	if !ok {
		t.Fatal("level at 100 missing")
	}
	if lvl.Volume != 7 || lvl.Len() != 2 {
		t.Fatalf("level volume = %d len = %d, want 7 and 2", lvl.Volume, lvl.Len())
	}
}

func TestTableSnapshotOrdering(t *testing.T) {
	bids := NewLevelTable(Bid)
	for _, p := range []uint64{95, 110, 100} {
		bids.AddOrder(NewLimitOrder(alice, "", Bid, p, 1))
	}
	snap := bids.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d levels, want 3", len(snap))
	}
	if snap[0].Price != 110 || snap[1].Price != 100 || snap[2].Price != 95 {
		t.Fatalf("bid snapshot not best-first: %+v", snap)
	}

	asks := NewLevelTable(Ask)
	for _, p := range []uint64{95, 110, 100} {
		asks.AddOrder(NewLimitOrder(alice, "", Ask, p, 1))
	}
	snap = asks.Snapshot()
	if snap[0].Price != 95 || snap[1].Price != 100 || snap[2].Price != 110 {
		t.Fatalf("ask snapshot not best-first: %+v", snap)
	}
}

func TestTableSnapshotSkipsDrainedLevels(t *testing.T) {
	asks := NewLevelTable(Ask)
	asks.AddOrder(NewLimitOrder(alice, "", Ask, 100, 1))

	lvl, _ := asks.Level(100)
	if _, err := lvl.PopFront(); err != nil {
		t.Fatal(err)
	}

	if snap := asks.Snapshot(); len(snap) != 0 {
		t.Fatalf("drained level leaked into snapshot: %+v", snap)
	}
}
