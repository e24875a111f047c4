package utxoset

import (
	"fmt"

	"github.com/ledgertrail/utxoindex/internal/errs"
	"github.com/ledgertrail/utxoindex/internal/keys"
	"github.com/ledgertrail/utxoindex/internal/rewind"
)

// KV is the minimal point-access surface the mutator needs. Both
// *store.Store and *store.Tx satisfy it, so Add/Remove can run either as
// one-off calls or batched inside the block applier's single transaction.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// RawTx carries a transaction's cached bytes and its output count, written
// alongside an Add when the caller hasn't already written tag-4/tag-5 for
// this txid (see SPEC_FULL.md §4.3 step 1 and the Exec/Undo contracts that
// decide when raw is nil).
type RawTx struct {
	Bytes       []byte
	OutputCount uint32
}

// Add inserts a UTXO into the index: optionally the tag-4/tag-5 records for
// its transaction, and — when the UTXO has a tracked address — a new slot
// appended to that address's compact array.
func Add(kv KV, u UTXO, raw *RawTx) error {
	if raw != nil {
		if err := kv.Put(keys.UnspentCountKey(u.TxID), keys.EncodeU32(raw.OutputCount)); err != nil {
			return fmt.Errorf("write unspent count: %w", err)
		}
		if err := kv.Put(keys.TxRawKey(u.TxID), raw.Bytes); err != nil {
			return fmt.Errorf("write raw tx: %w", err)
		}
	}
	if !u.HasAddr {
		return nil
	}

	lenKey := keys.AddressLenKey(u.Address)
	length, err := readLen(kv, lenKey)
	if err != nil {
		return err
	}

	if err := kv.Put(lenKey, keys.EncodeU32(length+1)); err != nil {
		return fmt.Errorf("write address length: %w", err)
	}

	slotKey := keys.AddressSlotKey(u.Address, length)
	if err := kv.Put(keys.BackrefKey(u.TxID, u.Vout), slotKey); err != nil {
		return fmt.Errorf("write backref: %w", err)
	}
	if err := kv.Put(slotKey, u.EncodeSlot()); err != nil {
		return fmt.Errorf("write address slot: %w", err)
	}
	return nil
}

// Remove consumes the UTXO identified by id: decrements its transaction's
// unspent-output count, and — if the output was address-tracked — removes
// its slot via swap-delete with the address's last slot. Every fact needed
// to reconstruct the removed output is recorded into rewindBuf at height.
func Remove(kv KV, id rewind.UTXOID, rewindBuf *rewind.Buffer, height uint64) error {
	raw, err := kv.Get(keys.TxRawKey(id.TxID))
	if err != nil {
		return fmt.Errorf("read raw tx: %w", err)
	}

	countKey := keys.UnspentCountKey(id.TxID)
	count, err := readLen(kv, countKey)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("unspent count for txid already zero: %w", errs.ErrMissingRecord)
	}
	decremented := count - 1
	if decremented == 0 {
		// The original implementation writes the zero count before deleting
		// it, re-creating the key with value 0. That is a bug; SPEC_FULL.md
		// §9 calls for omitting the final write in this case.
		if err := kv.Delete(countKey); err != nil {
			return fmt.Errorf("delete unspent count: %w", err)
		}
	} else {
		if err := kv.Put(countKey, keys.EncodeU32(decremented)); err != nil {
			return fmt.Errorf("write unspent count: %w", err)
		}
	}

	backrefKey := keys.BackrefKey(id.TxID, id.Vout)
	slotKey, err := kv.Get(backrefKey)
	if err != nil {
		return fmt.Errorf("read backref: %w", err)
	}
	if slotKey == nil {
		// Untracked-address input: nothing further to do beyond the count.
		rewindBuf.Insert(height, id, rewind.Entry{Raw: raw})
		return nil
	}

	address, idx, err := keys.ParseAddressSlotKey(slotKey)
	if err != nil {
		return fmt.Errorf("backref target: %w", err)
	}
	lenKey := keys.AddressLenKey(address)
	length, err := readLen(kv, lenKey)
	if err != nil {
		return err
	}
	if length == 0 {
		return fmt.Errorf("address length zero for occupied slot: %w", errs.ErrMissingRecord)
	}
	last := length - 1

	victimValue, err := kv.Get(slotKey)
	if err != nil {
		return fmt.Errorf("read victim slot: %w", err)
	}
	if victimValue == nil {
		return fmt.Errorf("victim slot missing: %w", errs.ErrMissingRecord)
	}
	victimID, victimData, err := DecodeSlot(slotKey, victimValue)
	if err != nil {
		return fmt.Errorf("decode victim slot: %w", err)
	}
	rewindBuf.Insert(height, rewind.UTXOID{TxID: victimID.TxID, Vout: victimID.Vout}, rewind.Entry{
		Data: rewind.UTXOData{Address: victimData.Address, HasAddr: true, Value: victimData.Value},
		Raw:  raw,
	})

	if idx != last {
		lastKey := keys.AddressSlotKey(address, last)
		lastValue, err := kv.Get(lastKey)
		if err != nil {
			return fmt.Errorf("read last slot: %w", err)
		}
		if lastValue == nil {
			return fmt.Errorf("last slot missing: %w", errs.ErrMissingRecord)
		}
		movedID, _, err := DecodeSlot(lastKey, lastValue)
		if err != nil {
			return fmt.Errorf("decode last slot: %w", err)
		}
		if err := kv.Put(slotKey, lastValue); err != nil {
			return fmt.Errorf("move slot: %w", err)
		}
		if err := kv.Put(keys.BackrefKey(movedID.TxID, movedID.Vout), slotKey); err != nil {
			return fmt.Errorf("update moved backref: %w", err)
		}
		if err := kv.Delete(lastKey); err != nil {
			return fmt.Errorf("delete last slot: %w", err)
		}
	} else {
		if err := kv.Delete(slotKey); err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
	}

	if err := kv.Delete(backrefKey); err != nil {
		return fmt.Errorf("delete backref: %w", err)
	}
	if err := kv.Put(lenKey, keys.EncodeU32(last)); err != nil {
		return fmt.Errorf("write address length: %w", err)
	}
	return nil
}

func readLen(kv KV, key []byte) (uint32, error) {
	v, err := kv.Get(key)
	if err != nil {
		return 0, fmt.Errorf("read length: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return keys.DecodeU32(v)
}
