// Package keys builds and parses the typed binary keys of the UTXO index.
//
// Every key starts with a one-byte tag (see the schema table in SPEC_FULL.md
// §3) followed by a fixed-width body, so parsing never needs anything
// fancier than bounds-checked slicing.
package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

const (
	TagAddressLen   byte = 1 // addr(21) -> u32 length  |  addr(21) ‖ idx(4) -> 44-byte slot
	TagBackref      byte = 2 // txid(32) ‖ vout(4) -> 26-byte address key
	TagTxRaw        byte = 4 // txid(32) -> raw tx bytes
	TagUnspentCount byte = 5 // txid(32) -> u32 unspent-output count
)

const (
	AddressSize  = 21
	TxIDSize     = 32
	SlotSize     = 44 // txid(32) ‖ vout(4) ‖ value(8)
	AddrKeySize  = 1 + AddressSize          // tag ‖ address
	SlotKeySize  = AddrKeySize + 4          // tag ‖ address ‖ index
	BackrefSize  = 1 + TxIDSize + 4         // tag ‖ txid ‖ vout
	TxKeySize    = 1 + TxIDSize             // tag ‖ txid
)

// AddressLenKey builds the tag-1 key holding an address's slot count.
func AddressLenKey(addr [AddressSize]byte) []byte {
	k := make([]byte, AddrKeySize)
	k[0] = TagAddressLen
	copy(k[1:], addr[:])
	return k
}

// AddressSlotKey builds the tag-1 key for the idx-th UTXO of an address.
func AddressSlotKey(addr [AddressSize]byte, idx uint32) []byte {
	k := make([]byte, SlotKeySize)
	k[0] = TagAddressLen
	copy(k[1:1+AddressSize], addr[:])
	binary.NativeEndian.PutUint32(k[1+AddressSize:], idx)
	return k
}

// BackrefKey builds the tag-2 key mapping an outpoint to its address-slot location.
func BackrefKey(txid [TxIDSize]byte, vout uint32) []byte {
	k := make([]byte, BackrefSize)
	k[0] = TagBackref
	copy(k[1:1+TxIDSize], txid[:])
	binary.NativeEndian.PutUint32(k[1+TxIDSize:], vout)
	return k
}

// TxRawKey builds the tag-4 key for a transaction's cached raw bytes.
func TxRawKey(txid [TxIDSize]byte) []byte {
	k := make([]byte, TxKeySize)
	k[0] = TagTxRaw
	copy(k[1:], txid[:])
	return k
}

// UnspentCountKey builds the tag-5 key for a transaction's unspent-output count.
func UnspentCountKey(txid [TxIDSize]byte) []byte {
	k := make([]byte, TxKeySize)
	k[0] = TagUnspentCount
	copy(k[1:], txid[:])
	return k
}

// ParseAddressSlotKey extracts the address and index from a tag-1 slot key.
func ParseAddressSlotKey(key []byte) (addr [AddressSize]byte, idx uint32, err error) {
	if len(key) != SlotKeySize || key[0] != TagAddressLen {
		return addr, 0, fmt.Errorf("address slot key: %w", errs.ErrMalformedKey)
	}
	copy(addr[:], key[1:1+AddressSize])
	idx = binary.NativeEndian.Uint32(key[1+AddressSize:])
	return addr, idx, nil
}

// ParseAddressFromKey extracts just the 21-byte address from a tag-1 key
// (either the length key or a slot key — both carry the address at offset 1).
func ParseAddressFromKey(key []byte) (addr [AddressSize]byte, err error) {
	if len(key) < AddrKeySize || key[0] != TagAddressLen {
		return addr, fmt.Errorf("address key: %w", errs.ErrMalformedKey)
	}
	copy(addr[:], key[1:1+AddressSize])
	return addr, nil
}

// EncodeU32 / DecodeU32 encode the native-endian u32 values stored as key
// bodies or as the tag-1 length / tag-5 count values.
func EncodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, v)
	return b
}

func DecodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("u32 value: %w", errs.ErrMalformedValue)
	}
	return binary.NativeEndian.Uint32(b), nil
}
