package utxoset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgertrail/utxoindex/internal/keys"
	"github.com/ledgertrail/utxoindex/internal/rewind"
)

type memKV map[string][]byte

func (m memKV) Get(key []byte) ([]byte, error) {
	v, ok := m[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m memKV) Put(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m[string(key)] = cp
	return nil
}

func (m memKV) Delete(key []byte) error {
	delete(m, string(key))
	return nil
}

func testAddress(b byte) (a [keys.AddressSize]byte) {
	a[0] = b
	return a
}

func testTxID(b byte) (id [keys.TxIDSize]byte) {
	id[0] = b
	return id
}

func TestAddWritesSlotBackrefAndLength(t *testing.T) {
	kv := memKV{}
	address := testAddress(1)
	u := UTXO{TxID: testTxID(1), Vout: 0, Value: 100, Address: address, HasAddr: true}
	raw := &RawTx{Bytes: []byte{0xde, 0xad}, OutputCount: 1}

	require.NoError(t, Add(kv, u, raw))

	length, err := readLen(kv, keys.AddressLenKey(address))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), length)

	slotKey := keys.AddressSlotKey(address, 0)
	id, data, err := DecodeSlot(slotKey, kv[string(slotKey)])
	require.NoError(t, err)
	assert.Equal(t, u.TxID, id.TxID)
	assert.Equal(t, uint64(100), data.Value)

	backref := kv[string(keys.BackrefKey(u.TxID, u.Vout))]
	assert.Equal(t, slotKey, backref)

	rawBytes, err := kv.Get(keys.TxRawKey(u.TxID))
	require.NoError(t, err)
	assert.Equal(t, raw.Bytes, rawBytes)
}

func TestAddWithoutAddressSkipsIndex(t *testing.T) {
	kv := memKV{}
	u := UTXO{TxID: testTxID(2), Vout: 0, Value: 5, HasAddr: false}

	require.NoError(t, Add(kv, u, nil))

	_, ok := kv[string(keys.TxRawKey(u.TxID))]
	assert.False(t, ok)
	assert.Empty(t, kv, "an address-less UTXO must not get a length, slot or backref record")
}

func TestRemoveSwapDeletesNonLastSlot(t *testing.T) {
	kv := memKV{}
	address := testAddress(3)
	raw := &RawTx{Bytes: []byte{0x01}, OutputCount: 3}

	u0 := UTXO{TxID: testTxID(10), Vout: 0, Value: 1, Address: address, HasAddr: true}
	u1 := UTXO{TxID: testTxID(11), Vout: 0, Value: 2, Address: address, HasAddr: true}
	u2 := UTXO{TxID: testTxID(12), Vout: 0, Value: 3, Address: address, HasAddr: true}
	require.NoError(t, Add(kv, u0, raw))
	require.NoError(t, Add(kv, u1, nil))
	require.NoError(t, Add(kv, u2, nil))

	rb := rewind.New(4)
	id := rewind.UTXOID{TxID: u0.TxID, Vout: u0.Vout}
	require.NoError(t, Remove(kv, id, rb, 1))

	length, err := readLen(kv, keys.AddressLenKey(address))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), length)

	// slot 0 should now hold what was the last slot (u2)
	slot0 := keys.AddressSlotKey(address, 0)
	gotID, _, err := DecodeSlot(slot0, kv[string(slot0)])
	require.NoError(t, err)
	assert.Equal(t, u2.TxID, gotID.TxID)

	// moved entry's backref should point at slot 0 now
	movedBackref := kv[string(keys.BackrefKey(u2.TxID, u2.Vout))]
	assert.Equal(t, slot0, movedBackref)

	// old backref for the removed utxo is gone
	_, stillThere := kv[string(keys.BackrefKey(u0.TxID, u0.Vout))]
	assert.False(t, stillThere)

	entries := rb.Entries(1)
	entry, ok := entries[id]
	require.True(t, ok)
	assert.True(t, entry.Data.HasAddr)
	assert.Equal(t, uint64(1), entry.Data.Value)
}

func TestRemoveLastSlotDeletesDirectly(t *testing.T) {
	kv := memKV{}
	address := testAddress(4)
	raw := &RawTx{Bytes: []byte{0x02}, OutputCount: 1}
	u := UTXO{TxID: testTxID(20), Vout: 0, Value: 9, Address: address, HasAddr: true}
	require.NoError(t, Add(kv, u, raw))

	rb := rewind.New(4)
	id := rewind.UTXOID{TxID: u.TxID, Vout: u.Vout}
	require.NoError(t, Remove(kv, id, rb, 2))

	length, err := readLen(kv, keys.AddressLenKey(address))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), length)

	_, ok := kv[string(keys.AddressSlotKey(address, 0))]
	assert.False(t, ok)
}

func TestRemoveUntrackedAddressOnlyTouchesCount(t *testing.T) {
	kv := memKV{}
	txid := testTxID(30)
	raw := &RawTx{Bytes: []byte{0x03}, OutputCount: 1}
	u := UTXO{TxID: txid, Vout: 0, Value: 7, HasAddr: false}
	require.NoError(t, Add(kv, u, raw))

	rb := rewind.New(4)
	id := rewind.UTXOID{TxID: txid, Vout: 0}
	require.NoError(t, Remove(kv, id, rb, 3))

	_, ok := kv[string(keys.UnspentCountKey(txid))]
	assert.False(t, ok, "count should be deleted once it reaches zero")

	entries := rb.Entries(3)
	entry, ok := entries[id]
	require.True(t, ok)
	assert.False(t, entry.Data.HasAddr)
	assert.Equal(t, raw.Bytes, entry.Raw)
}

func TestRemoveOmitsZeroCountWrite(t *testing.T) {
	kv := memKV{}
	txid := testTxID(40)
	raw := &RawTx{Bytes: []byte{0x04}, OutputCount: 2}
	u0 := UTXO{TxID: txid, Vout: 0, Value: 1, HasAddr: false}
	u1 := UTXO{TxID: txid, Vout: 1, Value: 1, HasAddr: false}
	require.NoError(t, Add(kv, u0, raw))
	require.NoError(t, Add(kv, u1, nil))

	rb := rewind.New(4)
	require.NoError(t, Remove(kv, rewind.UTXOID{TxID: txid, Vout: 0}, rb, 4))

	count, err := readLen(kv, keys.UnspentCountKey(txid))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	require.NoError(t, Remove(kv, rewind.UTXOID{TxID: txid, Vout: 1}, rb, 4))
	_, ok := kv[string(keys.UnspentCountKey(txid))]
	assert.False(t, ok)
}
