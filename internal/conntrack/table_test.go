package conntrack

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

func testTuple(n byte) Tuple {
	return NewTuple(
		net.IPv4(10, 0, 0, n),
		net.IPv4(10, 0, 0, 1),
		layers.TCPPort(40000+int(n)),
		layers.TCPPort(80),
	)
}

func TestTableInsertAndLookup(t *testing.T) {
	tbl := NewTable(nil)
	tup := testTuple(2)

	if _, ok := tbl.Lookup(tup); ok {
		t.Fatalf("expected no record before insert")
	}

	r, err := tbl.Insert(tup)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if r.State != Uninitialized {
		t.Fatalf("new record state = %s, want UNINITIALIZED", r.State)
	}

	got, ok := tbl.Lookup(tup)
	if !ok || got != r {
		t.Fatalf("Lookup after Insert did not return the inserted record")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestTableRejectsInsertWhenFull(t *testing.T) {
	tbl := NewTable(nil)
	for i := 0; i < MaxEntries; i++ {
		tup := NewTuple(
			net.IPv4(10, 0, byte(i>>8), byte(i)),
			net.IPv4(10, 0, 0, 1),
			layers.TCPPort(1024+i),
			layers.TCPPort(80),
		)
		if _, err := tbl.Insert(tup); err != nil {
			t.Fatalf("unexpected error filling table at entry %d: %v", i, err)
		}
	}

	overflow := testTuple(255)
	if _, err := tbl.Insert(overflow); !errors.Is(err, stackerr.ErrTableFull) {
		t.Fatalf("Insert past capacity: err = %v, want ErrTableFull", err)
	}
}

func TestTableEvictsOnlyClosedRecords(t *testing.T) {
	tbl := NewTable(nil)
	tup := testTuple(3)
	r, err := tbl.Insert(tup)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tbl.EvictClosed(tup)
	if _, ok := tbl.Lookup(tup); !ok {
		t.Fatalf("record evicted while not in CLOSED state")
	}

	r.State = Closed
	tbl.EvictClosed(tup)
	if _, ok := tbl.Lookup(tup); ok {
		t.Fatalf("record still present after transitioning to CLOSED and evicting")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after eviction", tbl.Len())
	}
}
