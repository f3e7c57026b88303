package conntrack

import (
	"fmt"

	"github.com/daniel-mccarthy16/wtfistcp/internal/isn"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

// MaxEntries bounds the Connection Table's size. The reference source
// never evicts and grows without bound (spec §9's flagged design gap);
// this implementation rejects new inbound SYNs once the table is full
// and evicts any record that transitions to Closed.
const MaxEntries = 4096

// Table maps a Tuple to its Record. It is exclusively owned by the
// frame ingress loop and is not safe for concurrent use — spec §5
// requires the ingress loop to be the table's sole, unsynchronized
// owner.
type Table struct {
	entries map[Tuple]*Record
	isnGen  isn.Generator
}

// NewTable returns an empty table. gen, if non-nil, is used as the
// ISN generator for every record the table creates.
func NewTable(gen isn.Generator) *Table {
	return &Table{
		entries: make(map[Tuple]*Record),
		isnGen:  gen,
	}
}

// Lookup returns the record for tuple, if any.
func (t *Table) Lookup(tuple Tuple) (*Record, bool) {
	r, ok := t.entries[tuple]
	return r, ok
}

// Insert creates a new Uninitialized record for tuple and inserts it,
// rejecting the insert with ErrTableFull if the table is already at
// MaxEntries.
func (t *Table) Insert(tuple Tuple) (*Record, error) {
	if len(t.entries) >= MaxEntries {
		return nil, fmt.Errorf("%w: at capacity (%d entries)", stackerr.ErrTableFull, MaxEntries)
	}
	r := NewRecord(t.isnGen)
	t.entries[tuple] = r
	return r, nil
}

// EvictClosed removes tuple's record if its state is Closed. Safe to
// call unconditionally after processing a frame.
func (t *Table) EvictClosed(tuple Tuple) {
	if r, ok := t.entries[tuple]; ok && r.State == Closed {
		delete(t.entries, tuple)
	}
}

// Len returns the number of tracked flows.
func (t *Table) Len() int {
	return len(t.entries)
}
