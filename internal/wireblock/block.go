// Package wireblock parses the consensus byte layout of blocks and
// transactions — only as much as the indexer needs to walk inputs and
// outputs. It does not validate scripts, signatures, or proof-of-work; that
// is explicitly out of scope (see SPEC_FULL.md §1).
package wireblock

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

const headerSize = 80

// auxHeaderBit marks presence of the auxiliary block-header extension this
// chain uses (one tx, a hash, and two var-int-counted hash lists) ahead of
// the transaction count. See SPEC_FULL.md §4.8.
const auxHeaderBit = 1 << 8

// nullVout marks a coinbase input's previous-output index.
const nullVout = 0xffffffff

// Header is the fixed 80-byte block header.
type Header struct {
	Version    uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Block is a parsed block: its header plus the decoded transaction list.
type Block struct {
	Header       Header
	Transactions []*Transaction
}

// Outpoint identifies a previously created output.
type Outpoint struct {
	TxID [32]byte
	Vout uint32
}

// IsNull reports whether this is the coinbase's conventional null outpoint.
func (o Outpoint) IsNull() bool {
	return o.TxID == [32]byte{} && o.Vout == nullVout
}

// TxIn is a transaction input.
type TxIn struct {
	PrevOut  Outpoint
	Script   []byte
	Sequence uint32
}

// TxOut is a transaction output.
type TxOut struct {
	Value  uint64
	Script []byte
}

// Transaction is a parsed legacy-layout transaction.
type Transaction struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	LockTime uint32

	raw []byte // consensus-serialized bytes, memoized on first parse
}

// TxID returns the transaction id in internal (consensus) byte order: the
// reverse of the hex form a node RPC would return for the same transaction.
func (t *Transaction) TxID() [32]byte {
	first := sha256.Sum256(t.Raw())
	second := sha256.Sum256(first[:])
	reverse(second[:])
	return second
}

// Raw returns the consensus-serialized transaction bytes.
func (t *Transaction) Raw() []byte {
	if t.raw != nil {
		return t.raw
	}
	t.raw = encodeTx(t)
	return t.raw
}

// ParseBlock decodes a raw consensus-serialized block.
func ParseBlock(raw []byte) (*Block, error) {
	cur := newCursor(raw)
	header, err := readHeader(cur)
	if err != nil {
		return nil, fmt.Errorf("block header: %w", err)
	}

	if header.Version&auxHeaderBit != 0 {
		if err := skipAuxHeader(cur); err != nil {
			return nil, fmt.Errorf("auxiliary header: %w", err)
		}
	}

	txCount, err := readVarInt(cur)
	if err != nil {
		return nil, fmt.Errorf("tx count: %w", err)
	}

	txs := make([]*Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := parseTx(cur)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return &Block{Header: header, Transactions: txs}, nil
}

func skipAuxHeader(cur *cursor) error {
	if _, err := parseTx(cur); err != nil {
		return fmt.Errorf("aux tx: %w", err)
	}
	if err := cur.skip(32); err != nil {
		return err
	}
	l1, err := readVarInt(cur)
	if err != nil {
		return err
	}
	if err := cur.skip(32*l1 + 4); err != nil {
		return err
	}
	l2, err := readVarInt(cur)
	if err != nil {
		return err
	}
	return cur.skip(32*l2 + 84)
}

func readHeader(cur *cursor) (Header, error) {
	var h Header
	v, err := cur.readU32()
	if err != nil {
		return h, err
	}
	h.Version = v
	prev, err := cur.read(32)
	if err != nil {
		return h, err
	}
	copy(h.PrevHash[:], prev)
	root, err := cur.read(32)
	if err != nil {
		return h, err
	}
	copy(h.MerkleRoot[:], root)
	if h.Timestamp, err = cur.readU32(); err != nil {
		return h, err
	}
	if h.Bits, err = cur.readU32(); err != nil {
		return h, err
	}
	if h.Nonce, err = cur.readU32(); err != nil {
		return h, err
	}
	return h, nil
}

func parseTx(cur *cursor) (*Transaction, error) {
	start := cur.pos
	version, err := cur.readU32()
	if err != nil {
		return nil, err
	}

	vinCount, err := readVarInt(cur)
	if err != nil {
		return nil, fmt.Errorf("vin count: %w", err)
	}
	ins := make([]TxIn, vinCount)
	for i := range ins {
		in, err := parseTxIn(cur)
		if err != nil {
			return nil, fmt.Errorf("vin %d: %w", i, err)
		}
		ins[i] = in
	}

	voutCount, err := readVarInt(cur)
	if err != nil {
		return nil, fmt.Errorf("vout count: %w", err)
	}
	outs := make([]TxOut, voutCount)
	for i := range outs {
		out, err := parseTxOut(cur)
		if err != nil {
			return nil, fmt.Errorf("vout %d: %w", i, err)
		}
		outs[i] = out
	}

	lockTime, err := cur.readU32()
	if err != nil {
		return nil, err
	}

	tx := &Transaction{Version: version, Inputs: ins, Outputs: outs, LockTime: lockTime}
	tx.raw = append([]byte(nil), cur.buf[start:cur.pos]...)
	return tx, nil
}

func parseTxIn(cur *cursor) (TxIn, error) {
	var in TxIn
	txid, err := cur.read(32)
	if err != nil {
		return in, err
	}
	copy(in.PrevOut.TxID[:], txid)
	vout, err := cur.readU32()
	if err != nil {
		return in, err
	}
	in.PrevOut.Vout = vout

	scriptLen, err := readVarInt(cur)
	if err != nil {
		return in, fmt.Errorf("script length: %w", err)
	}
	script, err := cur.read(int(scriptLen))
	if err != nil {
		return in, fmt.Errorf("script: %w", err)
	}
	in.Script = append([]byte(nil), script...)

	seq, err := cur.readU32()
	if err != nil {
		return in, err
	}
	in.Sequence = seq
	return in, nil
}

func parseTxOut(cur *cursor) (TxOut, error) {
	var out TxOut
	valBytes, err := cur.read(8)
	if err != nil {
		return out, err
	}
	out.Value = binary.LittleEndian.Uint64(valBytes)

	scriptLen, err := readVarInt(cur)
	if err != nil {
		return out, fmt.Errorf("script length: %w", err)
	}
	script, err := cur.read(int(scriptLen))
	if err != nil {
		return out, fmt.Errorf("script: %w", err)
	}
	out.Script = append([]byte(nil), script...)
	return out, nil
}

func encodeTx(t *Transaction) []byte {
	buf := make([]byte, 0, 256)
	vbuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(vbuf, t.Version)
	buf = append(buf, vbuf...)

	buf = writeVarInt(buf, uint64(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		b4 := make([]byte, 4)
		binary.LittleEndian.PutUint32(b4, in.PrevOut.Vout)
		buf = append(buf, b4...)
		buf = writeVarInt(buf, uint64(len(in.Script)))
		buf = append(buf, in.Script...)
		binary.LittleEndian.PutUint32(b4, in.Sequence)
		buf = append(buf, b4...)
	}

	buf = writeVarInt(buf, uint64(len(t.Outputs)))
	for _, out := range t.Outputs {
		b8 := make([]byte, 8)
		binary.LittleEndian.PutUint64(b8, out.Value)
		buf = append(buf, b8...)
		buf = writeVarInt(buf, uint64(len(out.Script)))
		buf = append(buf, out.Script...)
	}

	lbuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lbuf, t.LockTime)
	buf = append(buf, lbuf...)
	return buf
}

// ParseTransaction decodes a single standalone transaction, as used by Undo
// when it needs to reinterpret a raw tx fetched from the node or the cache.
func ParseTransaction(raw []byte) (*Transaction, error) {
	cur := newCursor(raw)
	tx, err := parseTx(cur)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMalformedBlock, err)
	}
	return tx, nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
