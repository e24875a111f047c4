// Package applier implements the block applier (C5): Exec walks a parsed
// block's transactions and updates the UTXO index; Undo reverses the block
// applied at a given height using the rewind buffer.
package applier

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/keys"
	"github.com/ledgertrail/utxoindex/internal/rewind"
	"github.com/ledgertrail/utxoindex/internal/utxoset"
	"github.com/ledgertrail/utxoindex/internal/wireblock"
)

// RawFetcher is the one RPC capability Undo itself calls: fetching a
// transaction's raw bytes by its reversed, hex-encoded txid, for the case
// where a rewind entry's output wasn't cached at removal time.
type RawFetcher interface {
	RawTransaction(ctx context.Context, txidHex string) ([]byte, error)
}

// Applier owns the chain-specific address parameters and the rewind buffer
// shared across Exec/Undo calls.
type Applier struct {
	params utxoset.Params
	rewind *rewind.Buffer
}

// New builds an Applier with a rewind buffer of horizon n (the confirmation
// depth this index commits to being able to undo).
func New(params utxoset.Params, n int) *Applier {
	return &Applier{params: params, rewind: rewind.New(n)}
}

// Rewind exposes the underlying rewind buffer.
func (a *Applier) Rewind() *rewind.Buffer {
	return a.rewind
}

// Exec applies block at height to kv: clears the rewind slot height will
// occupy, then for every transaction removes its inputs (skipping the
// coinbase's null outpoint), caches the transaction once, and adds its
// outputs.
func (a *Applier) Exec(kv utxoset.KV, block *wireblock.Block, height uint64) error {
	a.rewind.Clear(height)

	for _, tx := range block.Transactions {
		txid := tx.TxID()

		for _, in := range tx.Inputs {
			if in.PrevOut.IsNull() {
				continue
			}
			id := rewind.UTXOID{TxID: in.PrevOut.TxID, Vout: in.PrevOut.Vout}
			if err := utxoset.Remove(kv, id, a.rewind, height); err != nil {
				return fmt.Errorf("remove input %x:%d: %w", in.PrevOut.TxID, in.PrevOut.Vout, err)
			}
		}

		if err := kv.Put(keys.UnspentCountKey(txid), keys.EncodeU32(uint32(len(tx.Outputs)))); err != nil {
			return fmt.Errorf("write unspent count for %x: %w", txid, err)
		}
		if err := kv.Put(keys.TxRawKey(txid), tx.Raw()); err != nil {
			return fmt.Errorf("write raw tx for %x: %w", txid, err)
		}

		for vout, out := range tx.Outputs {
			u := utxoset.FromOutput(txid, uint32(vout), out.Script, out.Value, a.params)
			// raw is nil: tag-4/tag-5 were already written above, which is
			// the contract for the "no raw" branch of Add.
			if err := utxoset.Add(kv, u, nil); err != nil {
				return fmt.Errorf("add output %x:%d: %w", txid, vout, err)
			}
		}
	}
	return nil
}

// Undo reverses the block applied at height: reinserts everything it spent
// (from the rewind slot, fetching raw bytes from fetcher when an entry
// wasn't cached at removal time), then removes every output the block
// itself created.
func (a *Applier) Undo(ctx context.Context, kv utxoset.KV, block *wireblock.Block, height uint64, fetcher RawFetcher) error {
	entries := a.rewind.Entries(height)
	for id, entry := range entries {
		raw := entry.Raw
		if raw == nil {
			if fetcher == nil {
				return fmt.Errorf("undo: no cached raw and no rpc fetcher for %x", id.TxID)
			}
			fetched, err := fetcher.RawTransaction(ctx, reversedHex(id.TxID))
			if err != nil {
				return fmt.Errorf("undo: fetch raw tx %x: %w", id.TxID, err)
			}
			raw = fetched
		}

		tx, err := wireblock.ParseTransaction(raw)
		if err != nil {
			return fmt.Errorf("undo: decode tx %x: %w", id.TxID, err)
		}
		if int(id.Vout) >= len(tx.Outputs) {
			return fmt.Errorf("undo: vout %d out of range for tx %x", id.Vout, id.TxID)
		}
		out := tx.Outputs[id.Vout]

		var u utxoset.UTXO
		if entry.Data.HasAddr {
			// UTXOData was stored: use it directly, preserving address and
			// value exactly as they were.
			u = utxoset.UTXO{
				TxID:    id.TxID,
				Vout:    id.Vout,
				Value:   entry.Data.Value,
				Address: entry.Data.Address,
				HasAddr: true,
			}
		} else {
			// Untracked-address case: rebuild from the output script.
			u = utxoset.FromOutput(id.TxID, id.Vout, out.Script, out.Value, a.params)
		}

		rawTx := &utxoset.RawTx{Bytes: raw, OutputCount: uint32(len(tx.Outputs))}
		if err := utxoset.Add(kv, u, rawTx); err != nil {
			return fmt.Errorf("undo: reinsert %x:%d: %w", id.TxID, id.Vout, err)
		}
	}
	a.rewind.Clear(height)

	// Remove every output this block created. The rewind side-effects this
	// produces land in the same (just-cleared) slot; that slot is ephemeral
	// and discarded once this call returns.
	for _, tx := range block.Transactions {
		txid := tx.TxID()
		for vout := range tx.Outputs {
			id := rewind.UTXOID{TxID: txid, Vout: uint32(vout)}
			if err := utxoset.Remove(kv, id, a.rewind, height); err != nil {
				return fmt.Errorf("undo: remove created output %x:%d: %w", txid, vout, err)
			}
		}
	}
	a.rewind.Clear(height)
	return nil
}

func reversedHex(txid [32]byte) string {
	rev := make([]byte, 32)
	for i, b := range txid {
		rev[31-i] = b
	}
	return hex.EncodeToString(rev)
}
