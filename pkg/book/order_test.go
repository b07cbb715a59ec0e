package book

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestOrderIDDeterministic(t *testing.T) {
	ts := time.Now().UnixNano()

	a := NewLimitOrderAt(alice, "", Bid, 100, 5, ts, KeccakID)
	b := NewLimitOrderAt(alice, "", Bid, 100, 5, ts, KeccakID)
	if a.ID != b.ID {
		t.Fatalf("identical attributes hashed to different ids: %d vs %d", a.ID, b.ID)
	}

	c := NewLimitOrderAt(alice, "", Bid, 101, 5, ts, KeccakID)
	if a.ID == c.ID {
		t.Fatalf("different price produced the same id %d", a.ID)
	}

	d := NewLimitOrderAt(alice, "", Ask, 100, 5, ts, KeccakID)
	if a.ID == d.ID {
		t.Fatalf("different side produced the same id %d", a.ID)
	}

	e := NewLimitOrderAt(bob, "", Bid, 100, 5, ts, KeccakID)
	if a.ID == e.ID {
		t.Fatalf("different owner produced the same id %d", a.ID)
	}

	f := NewLimitOrderAt(alice, "http://settlor.example/hook", Bid, 100, 5, ts, KeccakID)
	if a.ID == f.ID {
		t.Fatalf("different callable produced the same id %d", a.ID)
	}
}

func TestOrderReduce(t *testing.T) {
	o := NewLimitOrder(alice, "", Bid, 100, 10)

	if err := o.Reduce(4); err != nil {
		t.Fatalf("reduce within size failed: %v", err)
	}
	if o.Size != 6 {
		t.Fatalf("size = %d, want 6", o.Size)
	}

	err := o.Reduce(7)
	if !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	if o.Size != 6 {
		t.Fatalf("failed reduce mutated size to %d", o.Size)
	}

	if err := o.Reduce(6); err != nil {
		t.Fatalf("reduce to zero failed: %v", err)
	}
	if !o.Filled() {
		t.Fatal("order with zero size should report Filled")
	}
}

func TestOrderLockIdempotent(t *testing.T) {
	o := NewLimitOrder(alice, "", Ask, 100, 1)
	o.Lock()
	o.Lock()
	if !o.Locked {
		t.Fatal("order should be locked")
	}
}

func TestOrderSnapshotIndependent(t *testing.T) {
	o := NewLimitOrder(alice, "", Bid, 100, 10)
	snap := o.Snapshot()

	if err := o.Reduce(3); err != nil {
		t.Fatal(err)
	}
	if snap.Size != 10 {
		t.Fatalf("snapshot size changed to %d after reducing original", snap.Size)
	}
	if snap.ID != o.ID {
		t.Fatalf("snapshot id %d != original %d", snap.ID, o.ID)
	}
}

func TestSideCrosses(t *testing.T) {
	cases := []struct {
		side       Side
		takerPrice uint64
		levelPrice uint64
		want       bool
	}{
		{Bid, 100, 90, true},   // bid crosses cheaper ask
		{Bid, 100, 100, true},  // bid crosses at its own price
		{Bid, 100, 101, false}, // bid does not cross a dearer ask
		{Ask, 100, 110, true},  // ask crosses a richer bid
		{Ask, 100, 100, true},
		{Ask, 100, 99, false},
	}
	for _, c := range cases {
		if got := c.side.Crosses(c.takerPrice, c.levelPrice); got != c.want {
			t.Errorf("%s taker %d vs level %d: crosses = %v, want %v",
				c.side, c.takerPrice, c.levelPrice, got, c.want)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	if Bid.Opposite() != Ask || Ask.Opposite() != Bid {
		t.Fatal("Opposite should flip the side")
	}
}

func TestHasCallable(t *testing.T) {
	plain := NewLimitOrder(alice, "", Bid, 100, 1)
	if plain.HasCallable() {
		t.Fatal("order without target should not report a callable")
	}
	hooked := NewLimitOrder(alice, "http://settlor.example/hook", Bid, 100, 1)
	if !hooked.HasCallable() {
		t.Fatal("order with target should report a callable")
	}
}
