// Package utxoset implements the UTXO record (C2) and the per-address
// index mutator (C3): the add/remove algorithms that keep each address's
// compact UTXO array dense via swap-delete.
package utxoset

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/addr"
	"github.com/ledgertrail/utxoindex/internal/errs"
	"github.com/ledgertrail/utxoindex/internal/keys"
)

// Params carries the chain-specific constants the mutator needs, passed at
// construction time rather than held as process-wide globals so tests can
// run multiple indexers, each with its own version bytes, in one process.
type Params struct {
	P2PKHVersion byte
	P2SHVersion  byte
}

// UTXO is the in-memory value C2 operates on.
type UTXO struct {
	TxID    [keys.TxIDSize]byte
	Vout    uint32
	Value   uint64
	Address [keys.AddressSize]byte
	HasAddr bool
}

// FromOutput derives a UTXO from a transaction output, extracting its
// address when the output script is a recognizable p2pkh or p2sh pattern.
// Any other script form still produces a UTXO, just one with HasAddr=false
// — it exists and spends normally, it is simply not reachable by address.
func FromOutput(txid [keys.TxIDSize]byte, vout uint32, script []byte, value uint64, p Params) UTXO {
	u := UTXO{TxID: txid, Vout: vout, Value: value}
	if address, ok := addr.FromScript(script, p.P2PKHVersion, p.P2SHVersion); ok {
		u.Address = address
		u.HasAddr = true
	}
	return u
}

// EncodeSlot produces the 44-byte address-slot record: txid ‖ vout_native ‖ value_native.
func (u UTXO) EncodeSlot() []byte {
	b := make([]byte, keys.SlotSize)
	copy(b[0:32], u.TxID[:])
	copy(b[32:36], keys.EncodeU32(u.Vout))
	copy(b[36:44], encodeU64(u.Value))
	return b
}

// DecodeSlot is the inverse of EncodeSlot, reading the address out of the
// slot key (offset 1, per the tag-1 schema) and the rest out of the value.
func DecodeSlot(key, value []byte) (id UTXOIdent, data UTXOData, err error) {
	address, err := keys.ParseAddressFromKey(key)
	if err != nil {
		return id, data, err
	}
	if len(value) != keys.SlotSize {
		return id, data, fmt.Errorf("slot value length %d: %w", len(value), errs.ErrMalformedValue)
	}
	copy(id.TxID[:], value[0:32])
	var errU error
	id.Vout, errU = keys.DecodeU32(value[32:36])
	if errU != nil {
		return id, data, errU
	}
	data.Address = address
	data.Value = decodeU64(value[36:44])
	return id, data, nil
}

// UTXOIdent is the on-disk (txid, vout) pair a decoded slot identifies.
type UTXOIdent struct {
	TxID [keys.TxIDSize]byte
	Vout uint32
}

// UTXOData is a decoded slot's payload: the tracked address plus the value.
type UTXOData struct {
	Address [keys.AddressSize]byte
	Value   uint64
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b)
}
