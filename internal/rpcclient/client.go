// Package rpcclient implements the upstream RPC client (C11): a JSON-RPC
// 2.0 consumer of the full node's best-hash, block, and raw-transaction
// methods, using the teacher's own request/response envelope shape.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/ledgertrail/utxoindex/internal/errs"
	"github.com/ledgertrail/utxoindex/internal/metrics"
)

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks JSON-RPC 2.0 to the upstream node. Raw-transaction lookups
// (the only RPC capability the core itself calls, from Undo) are cached in
// a bigcache instance keyed by txid hex, since a deep undo chain can ask
// for the same transaction repeatedly within one reorg.
type Client struct {
	url     string
	http    *http.Client
	nextID  int
	rawTxes *bigcache.BigCache
	metrics *metrics.Metrics
}

// New builds a Client against url with the given per-call timeout. It
// starts its own bigcache instance for raw-transaction caching, sized the
// way the teacher's cache package is: modest shard count, a few minutes'
// life window. m may be nil, in which case call durations go unrecorded.
func New(ctx context.Context, url string, timeout time.Duration, m *metrics.Metrics) (*Client, error) {
	cfg := bigcache.Config{
		Shards:             256,
		LifeWindow:         10 * time.Minute,
		CleanWindow:        5 * time.Minute,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       4096,
		HardMaxCacheSize:   256,
	}
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: init cache: %w", err)
	}
	return &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		rawTxes: cache,
		metrics: m,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.metrics != nil {
		start := time.Now()
		defer func() {
			c.metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}()
	}

	c.nextID++
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", errs.ErrRpcError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", errs.ErrRpcError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRpcError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", errs.ErrRpcError, err)
	}

	var rpcResp response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", errs.ErrRpcError, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s (code %d)", errs.ErrRpcError, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

// BestBlockHash returns the hash of the best block at height, and ok=false
// if the node has no block at that height yet (the chain driver's signal
// that it has caught up to the current tip).
func (c *Client) BestBlockHash(ctx context.Context, height uint64) (hash string, ok bool, err error) {
	result, err := c.call(ctx, "getblockhash", []interface{}{height})
	if err != nil {
		if isHeightOutOfRange(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", false, fmt.Errorf("%w: decode blockhash: %v", errs.ErrRpcError, err)
	}
	return hash, true, nil
}

func isHeightOutOfRange(err error) bool {
	return bytes.Contains([]byte(err.Error()), []byte("height out of range")) ||
		bytes.Contains([]byte(err.Error()), []byte("Block height out of range"))
}

// Block fetches the raw consensus bytes of the block identified by hash.
func (c *Client) Block(ctx context.Context, hash string) ([]byte, error) {
	result, err := c.call(ctx, "getblock", []interface{}{hash, 0})
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return nil, fmt.Errorf("%w: decode block: %v", errs.ErrRpcError, err)
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("%w: block hex: %v", errs.ErrRpcError, err)
	}
	return raw, nil
}

// RawTransaction fetches the raw consensus bytes of the transaction
// identified by its hex-encoded (reversed, display-order) txid, serving
// from the bigcache instance when a prior lookup already populated it.
func (c *Client) RawTransaction(ctx context.Context, txidHex string) ([]byte, error) {
	if cached, err := c.rawTxes.Get(txidHex); err == nil {
		return cached, nil
	}

	result, err := c.call(ctx, "getrawtransaction", []interface{}{txidHex, 0})
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return nil, fmt.Errorf("%w: decode rawtransaction: %v", errs.ErrRpcError, err)
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("%w: tx hex: %v", errs.ErrRpcError, err)
	}

	_ = c.rawTxes.Set(txidHex, raw)
	return raw, nil
}
