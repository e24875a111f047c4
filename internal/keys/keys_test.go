package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressSlotKeyRoundTrip(t *testing.T) {
	var address [AddressSize]byte
	address[0] = 0x05
	address[1] = 0xaa

	key := AddressSlotKey(address, 7)
	require.Len(t, key, SlotKeySize)

	gotAddr, idx, err := ParseAddressSlotKey(key)
	require.NoError(t, err)
	assert.Equal(t, address, gotAddr)
	assert.Equal(t, uint32(7), idx)
}

func TestParseAddressSlotKeyRejectsWrongTag(t *testing.T) {
	var address [AddressSize]byte
	key := AddressSlotKey(address, 0)
	key[0] = TagBackref

	_, _, err := ParseAddressSlotKey(key)
	assert.Error(t, err)
}

func TestParseAddressSlotKeyRejectsWrongLength(t *testing.T) {
	_, _, err := ParseAddressSlotKey([]byte{TagAddressLen, 0x01})
	assert.Error(t, err)
}

func TestBackrefKey(t *testing.T) {
	var txid [TxIDSize]byte
	txid[0] = 0x42
	key := BackrefKey(txid, 3)
	require.Len(t, key, BackrefSize)
	assert.Equal(t, TagBackref, key[0])
}

func TestEncodeDecodeU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 0xffffffff} {
		got, err := DecodeU32(EncodeU32(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecodeU32RejectsWrongLength(t *testing.T) {
	_, err := DecodeU32([]byte{1, 2, 3})
	assert.Error(t, err)
}
