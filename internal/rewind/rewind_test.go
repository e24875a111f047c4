package rewind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertAndEntries(t *testing.T) {
	buf := New(3)
	id := UTXOID{Vout: 1}
	buf.Insert(5, id, Entry{Data: UTXOData{Value: 42, HasAddr: true}})

	entries := buf.Entries(5)
	entry := entries[id]
	assert.Equal(t, uint64(42), entry.Data.Value)
}

func TestClearResetsSlot(t *testing.T) {
	buf := New(3)
	id := UTXOID{Vout: 1}
	buf.Insert(5, id, Entry{Data: UTXOData{Value: 42}})
	buf.Clear(5)

	assert.Empty(t, buf.Entries(5))
}

func TestSlotsReuseAcrossHorizon(t *testing.T) {
	buf := New(3)
	idA := UTXOID{Vout: 1}
	idB := UTXOID{Vout: 2}

	buf.Insert(2, idA, Entry{Data: UTXOData{Value: 1}})
	// height 5 shares slot 2 % 3 == 5 % 3 == 2
	buf.Clear(5)
	buf.Insert(5, idB, Entry{Data: UTXOData{Value: 2}})

	entries := buf.Entries(2)
	_, stillHasA := entries[idA]
	assert.False(t, stillHasA, "height 2's data should have been evicted when height 5 reused its slot")

	entries5 := buf.Entries(5)
	assert.Equal(t, uint64(2), entries5[idB].Data.Value)
}

func TestNReturnsHorizon(t *testing.T) {
	buf := New(7)
	assert.Equal(t, 7, buf.N())
}
