// Package rewind implements the bounded ring buffer of per-block undo data
// (C4): enough to reverse any of the last N applied blocks.
package rewind

import "github.com/ledgertrail/utxoindex/internal/keys"

// UTXOID identifies a spent output.
type UTXOID struct {
	TxID [keys.TxIDSize]byte
	Vout uint32
}

// UTXOData is what the index had on file for a spent output, when it had
// anything (addressed outputs carry it; untracked-address outputs don't).
type UTXOData struct {
	Address [keys.AddressSize]byte
	HasAddr bool
	Value   uint64
}

// Entry is one undo record: the data needed to reconstruct a spent output,
// plus its raw transaction bytes when they were available at removal time.
type Entry struct {
	Data UTXOData
	Raw  []byte // nil if not cached at removal time
}

// Buffer is the fixed-size ring of per-block deltas, indexed by
// height mod N. N is the confirmation horizon: undoing a block older than
// N applications ago is not supported (ReorgTooDeep).
type Buffer struct {
	n     int
	slots []map[UTXOID]Entry
}

// New creates a rewind buffer with horizon n (n must be >= 1).
func New(n int) *Buffer {
	slots := make([]map[UTXOID]Entry, n)
	for i := range slots {
		slots[i] = make(map[UTXOID]Entry)
	}
	return &Buffer{n: n, slots: slots}
}

// N returns the confirmation horizon.
func (b *Buffer) N() int {
	return b.n
}

// Clear resets the slot for height, discarding whatever it held.
func (b *Buffer) Clear(height uint64) {
	b.slots[height%uint64(b.n)] = make(map[UTXOID]Entry)
}

// Insert records one undo entry into the slot for height.
func (b *Buffer) Insert(height uint64, id UTXOID, e Entry) {
	b.slots[height%uint64(b.n)][id] = e
}

// Entries returns the slot for height, for Undo to replay.
func (b *Buffer) Entries(height uint64) map[UTXOID]Entry {
	return b.slots[height%uint64(b.n)]
}
