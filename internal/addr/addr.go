// Package addr implements base58check address encoding and the p2pkh/p2sh
// script-pattern matching used to derive an address from an output script.
//
// base58check itself is not provided by the mr-tron/base58 package (it only
// does the alphabet encode/decode); the checksum framing here follows the
// standard Bitcoin convention: version ‖ payload ‖ first 4 bytes of
// doubleSHA256(version ‖ payload).
package addr

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

const (
	checksumLen = 4
	HashLen     = 20
)

func checksum(payload []byte) [checksumLen]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [checksumLen]byte
	copy(out[:], second[:checksumLen])
	return out
}

// Encode base58check-encodes version ‖ hash20.
func Encode(version byte, hash20 []byte) string {
	payload := make([]byte, 0, 1+len(hash20)+checksumLen)
	payload = append(payload, version)
	payload = append(payload, hash20...)
	sum := checksum(payload)
	payload = append(payload, sum[:]...)
	return base58.Encode(payload)
}

// Decode reverses Encode, returning the version byte and the 20-byte hash.
// Fails with errs.ErrInvalidAddress on checksum mismatch or wrong payload
// length (the decoded hash must be exactly 20 bytes).
func Decode(s string) (version byte, hash20 []byte, err error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("base58 decode: %w: %w", errs.ErrInvalidAddress, err)
	}
	if len(raw) != 1+HashLen+checksumLen {
		return 0, nil, fmt.Errorf("address length %d: %w", len(raw), errs.ErrInvalidAddress)
	}
	payload := raw[:len(raw)-checksumLen]
	want := checksum(payload)
	if !bytes.Equal(raw[len(raw)-checksumLen:], want[:]) {
		return 0, nil, fmt.Errorf("bad checksum: %w", errs.ErrInvalidAddress)
	}
	return payload[0], payload[1:], nil
}

// DecodeFixed decodes s into a 21-byte (version ‖ hash20) address array, the
// form the index's tag-1 keys are keyed on.
func DecodeFixed(s string) (out [21]byte, err error) {
	version, hash, err := Decode(s)
	if err != nil {
		return out, err
	}
	out[0] = version
	copy(out[1:], hash)
	return out, nil
}

// EncodeFixed is the inverse of DecodeFixed.
func EncodeFixed(a [21]byte) string {
	return Encode(a[0], a[1:])
}

// Standard script opcodes needed to recognize p2pkh / p2sh output patterns.
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac
	opEqual       = 0x87
	pushData20    = 0x14 // direct push of 20 bytes
)

// FromScript pattern-matches a p2pkh or p2sh output script and returns the
// 21-byte (version ‖ hash20) address. ok is false for any other script form
// (segwit, taproot, bare multisig, OP_RETURN, ...) — those outputs still
// exist as UTXOs, they are simply untracked by the address index.
func FromScript(script []byte, p2pkhVersion, p2shVersion byte) (address [21]byte, ok bool) {
	// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) == 25 &&
		script[0] == opDup && script[1] == opHash160 && script[2] == pushData20 &&
		script[23] == opEqualVerify && script[24] == opCheckSig {
		address[0] = p2pkhVersion
		copy(address[1:], script[3:23])
		return address, true
	}
	// OP_HASH160 <20 bytes> OP_EQUAL
	if len(script) == 23 &&
		script[0] == opHash160 && script[1] == pushData20 && script[22] == opEqual {
		address[0] = p2shVersion
		copy(address[1:], script[2:22])
		return address, true
	}
	return address, false
}
