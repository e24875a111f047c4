package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

type rpcHandlerFunc func(method string, params json.RawMessage) (interface{}, *rpcError)

func newTestServer(t *testing.T, handler rpcHandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		paramsJSON, err := json.Marshal(req.Params)
		require.NoError(t, err)

		result, rpcErr := handler(req.Method, paramsJSON)
		resp := response{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			raw, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = raw
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(context.Background(), url, 5*time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestBestBlockHashReturnsHash(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "getblockhash", method)
		return "deadbeef", nil
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	hash, ok, err := c.BestBlockHash(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", hash)
}

func TestBestBlockHashOutOfRangeIsNotFound(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -8, Message: "Block height out of range"}
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, ok, err := c.BestBlockHash(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBestBlockHashOtherErrorPropagates(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -1, Message: "internal error"}
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.BestBlockHash(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRpcError)
}

func TestBlockDecodesHex(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "getblock", method)
		return "deadbeef", nil
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	raw, err := c.Block(context.Background(), "somehash")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw)
}

func TestRawTransactionCachesResult(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "getrawtransaction", method)
		atomic.AddInt32(&calls, 1)
		return "cafe", nil
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	raw1, err := c.RawTransaction(context.Background(), "txid1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, raw1)

	raw2, err := c.RawTransaction(context.Background(), "txid1")
	require.NoError(t, err)
	assert.Equal(t, raw1, raw2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup should be served from cache")
}
