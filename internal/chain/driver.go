// Package chain implements the chain driver (C6): follows the upstream
// node's tip, drives the block applier forward and in reverse, and enforces
// the confirmation horizon against reorganizations.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgertrail/utxoindex/internal/applier"
	"github.com/ledgertrail/utxoindex/internal/errs"
	"github.com/ledgertrail/utxoindex/internal/metrics"
	"github.com/ledgertrail/utxoindex/internal/store"
	"github.com/ledgertrail/utxoindex/internal/wireblock"
)

// NodeRPC is the slice of the upstream node's RPC surface the driver needs.
type NodeRPC interface {
	BestBlockHash(ctx context.Context, height uint64) (hash string, ok bool, err error)
	Block(ctx context.Context, hash string) ([]byte, error)
	RawTransaction(ctx context.Context, txidHex string) ([]byte, error)
}

// Driver owns the tip cursor and the small amount of recent-block history
// (hash and raw bytes, bounded to the confirmation horizon) it needs to
// detect and undo a reorganization.
type Driver struct {
	rpc NodeRPC
	db  *store.Store
	ap  *applier.Applier
	mu  *sync.RWMutex
	n   int
	m   *metrics.Metrics

	height int64 // -1: no block applied yet
	hashes map[int64]string
	blocks map[int64][]byte
}

// New builds a Driver. mu is shared with the query API: the driver takes
// Lock around each Exec/Undo, the API takes RLock around each request, so a
// swap-delete in progress is never observed half-applied. m may be nil, in
// which case apply durations and reorg stats go unrecorded.
func New(rpc NodeRPC, db *store.Store, ap *applier.Applier, mu *sync.RWMutex, n int, m *metrics.Metrics) *Driver {
	return &Driver{
		rpc:    rpc,
		db:     db,
		ap:     ap,
		mu:     mu,
		n:      n,
		m:      m,
		height: -1,
		hashes: make(map[int64]string),
		blocks: make(map[int64][]byte),
	}
}

// Height returns the last applied block height, or -1 if none yet.
func (d *Driver) Height() int64 {
	return d.height
}

// Tick performs one step of the driver's loop. Once a block has been
// applied, it first checks that the node's hash at our tip still matches the
// one we recorded; if not, it undoes back to the common ancestor and returns
// without applying anything (the next Tick moves forward again). Otherwise,
// if the node has a block at tip+1, it applies it. advanced reports whether
// state changed; callers should keep calling Tick while it's true.
func (d *Driver) Tick(ctx context.Context) (advanced bool, err error) {
	if d.height >= 0 {
		reorged, err := d.resolveReorg(ctx)
		if err != nil {
			return false, err
		}
		if reorged {
			return true, nil
		}
	}

	nextHeight := d.height + 1
	hash, ok, err := d.rpc.BestBlockHash(ctx, uint64(nextHeight))
	if err != nil {
		return false, fmt.Errorf("best hash at %d: %w", nextHeight, err)
	}
	if !ok {
		return false, nil
	}

	raw, err := d.rpc.Block(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("fetch block %s: %w", hash, err)
	}
	block, err := wireblock.ParseBlock(raw)
	if err != nil {
		return false, fmt.Errorf("%w: parse block %s: %v", errs.ErrMalformedBlock, hash, err)
	}

	d.mu.Lock()
	start := time.Now()
	err = d.db.Update(func(tx *store.Tx) error {
		return d.ap.Exec(tx, block, uint64(nextHeight))
	})
	if d.m != nil {
		d.m.ApplyDuration.WithLabelValues("exec").Observe(time.Since(start).Seconds())
	}
	d.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("exec block %d: %w", nextHeight, err)
	}

	d.hashes[nextHeight] = hash
	d.blocks[nextHeight] = raw
	d.evictBeyondHorizon(nextHeight)
	d.height = nextHeight
	return true, nil
}

// resolveReorg detects whether the node's chain at our current tip still
// matches what we applied; if not, it undoes blocks one at a time, newest
// first, until the node's hash at our (shrinking) tip matches what we
// recorded, or the horizon is exhausted.
func (d *Driver) resolveReorg(ctx context.Context) (reorged bool, err error) {
	undone := 0
	for {
		nodeHash, ok, err := d.rpc.BestBlockHash(ctx, uint64(d.height))
		if err != nil {
			return false, fmt.Errorf("best hash at %d: %w", d.height, err)
		}
		if ok && nodeHash == d.hashes[d.height] {
			if undone > 0 && d.m != nil {
				d.m.ObserveReorg(undone)
			}
			return undone > 0, nil
		}

		if undone >= d.n {
			return false, fmt.Errorf("reorg at height %d exceeds horizon %d: %w", d.height, d.n, errs.ErrReorgTooDeep)
		}
		raw, present := d.blocks[d.height]
		if !present {
			return false, fmt.Errorf("reorg: no retained block at height %d: %w", d.height, errs.ErrReorgTooDeep)
		}
		block, err := wireblock.ParseBlock(raw)
		if err != nil {
			return false, fmt.Errorf("%w: parse retained block at %d: %v", errs.ErrMalformedBlock, d.height, err)
		}

		height := d.height
		d.mu.Lock()
		start := time.Now()
		err = d.db.Update(func(tx *store.Tx) error {
			return d.ap.Undo(ctx, tx, block, uint64(height), d.rpc)
		})
		if d.m != nil {
			d.m.ApplyDuration.WithLabelValues("undo").Observe(time.Since(start).Seconds())
		}
		d.mu.Unlock()
		if err != nil {
			return false, fmt.Errorf("undo block %d: %w", height, err)
		}

		delete(d.hashes, d.height)
		delete(d.blocks, d.height)
		d.height--
		undone++

		if d.height < 0 {
			return false, fmt.Errorf("reorg walked back past genesis: %w", errs.ErrReorgTooDeep)
		}
	}
}

func (d *Driver) evictBeyondHorizon(tip int64) {
	cutoff := tip - int64(d.n)
	for h := range d.hashes {
		if h <= cutoff {
			delete(d.hashes, h)
			delete(d.blocks, h)
		}
	}
}
