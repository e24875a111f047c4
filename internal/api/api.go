// Package api implements the query API (C7): two read endpoints,
// /balance and /utxos, served over HTTP with both a binary
// (application/octet-stream) and a JSON encoding.
package api

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ledgertrail/utxoindex/internal/addr"
	"github.com/ledgertrail/utxoindex/internal/errs"
	"github.com/ledgertrail/utxoindex/internal/keys"
	"github.com/ledgertrail/utxoindex/internal/logger"
	"github.com/ledgertrail/utxoindex/internal/metrics"
	"github.com/ledgertrail/utxoindex/internal/store"
	"github.com/ledgertrail/utxoindex/internal/utxoset"
)

const defaultMinCount = 20

// Server is the HTTP query API server.
type Server struct {
	db      *store.Store
	mu      *sync.RWMutex
	metrics *metrics.Metrics
	router  *mux.Router
	server  *http.Server
	addr    string
	limiter *ipLimiter
}

// NewServer builds the query API server. mu is the same RWMutex the chain
// driver locks around each Exec/Undo, so reads here never observe a
// swap-delete half-applied. Each client IP is held to 50 requests/second
// (burst 100) against the query endpoints, the same token-bucket shape the
// teacher's peer rate limiter applies per connection.
func NewServer(db *store.Store, mu *sync.RWMutex, m *metrics.Metrics, listenAddr string) *Server {
	s := &Server{
		db:      db,
		mu:      mu,
		metrics: m,
		router:  mux.NewRouter(),
		addr:    listenAddr,
		limiter: newIPLimiter(50, 100),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Handle("/balance", s.limiter.middleware(s.instrument("/balance", s.getBalance))).Methods(http.MethodGet)
	s.router.Handle("/utxos", s.limiter.middleware(s.instrument("/utxos", s.getUTXOs))).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.ObserveAPIRequest(endpoint, sw.status)
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.server = &http.Server{Addr: s.addr, Handler: s.router}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server stopped", zap.Error(err))
		}
	}()
}

// Close shuts down the HTTP server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// ServeHTTP allows Server to be used as an http.Handler directly, e.g. in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func wantsJSON(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return f == "json"
	}
	return r.Header.Get("Accept") == "application/json"
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// addressLength reads an address's current tag-1 slot count.
func addressLength(db *store.Store, address [keys.AddressSize]byte) (uint32, error) {
	v, err := db.Get(keys.AddressLenKey(address))
	if err != nil {
		return 0, fmt.Errorf("read address length: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return keys.DecodeU32(v)
}

// getBalance implements GET /balance?address=A.
func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	addrParam := r.URL.Query().Get("address")
	if addrParam == "" {
		writeError(w, fmt.Errorf("missing address: %w", errs.ErrInvalidAddress))
		return
	}
	fixed, err := addr.DecodeFixed(addrParam)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	length, err := addressLength(s.db, fixed)
	if err != nil {
		writeError(w, err)
		return
	}

	var total uint64
	for i := uint32(0); i < length; i++ {
		slotKey := keys.AddressSlotKey(fixed, i)
		value, err := s.db.Get(slotKey)
		if err != nil {
			writeError(w, err)
			return
		}
		if value == nil {
			writeError(w, fmt.Errorf("slot %d for address missing: %w", i, errs.ErrMissingRecord))
			return
		}
		_, data, err := utxoset.DecodeSlot(slotKey, value)
		if err != nil {
			writeError(w, err)
			return
		}
		total += data.Value
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]uint64{"balance": total})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, total)
	w.Write(buf)
}

type utxoRecord struct {
	TxID  [32]byte
	Vout  uint32
	Value uint64
	Raw   []byte
}

// getUTXOs implements GET /utxos?address=A&amount=V&minCount=M.
func (s *Server) getUTXOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addrParam := q.Get("address")
	amountParam := q.Get("amount")
	if addrParam == "" || amountParam == "" {
		writeError(w, fmt.Errorf("missing address or amount: %w", errs.ErrInvalidAddress))
		return
	}
	fixed, err := addr.DecodeFixed(addrParam)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := strconv.ParseUint(amountParam, 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("invalid amount: %w", errs.ErrInvalidAddress))
		return
	}
	minCount := uint32(defaultMinCount)
	if mc := q.Get("minCount"); mc != "" {
		parsed, err := strconv.ParseUint(mc, 10, 32)
		if err != nil {
			writeError(w, fmt.Errorf("invalid minCount: %w", errs.ErrInvalidAddress))
			return
		}
		minCount = uint32(parsed)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	length, err := addressLength(s.db, fixed)
	if err != nil {
		writeError(w, err)
		return
	}

	var records []utxoRecord
	var accumulated uint64
	for i := uint32(0); i < length; i++ {
		slotKey := keys.AddressSlotKey(fixed, i)
		value, err := s.db.Get(slotKey)
		if err != nil {
			writeError(w, err)
			return
		}
		if value == nil {
			writeError(w, fmt.Errorf("slot %d for address missing: %w", i, errs.ErrMissingRecord))
			return
		}
		id, data, err := utxoset.DecodeSlot(slotKey, value)
		if err != nil {
			writeError(w, err)
			return
		}
		raw, err := s.db.Get(keys.TxRawKey(id.TxID))
		if err != nil {
			writeError(w, err)
			return
		}
		if raw == nil {
			writeError(w, fmt.Errorf("raw tx for %x missing: %w", id.TxID, errs.ErrMissingRecord))
			return
		}

		records = append(records, utxoRecord{TxID: id.TxID, Vout: id.Vout, Value: data.Value, Raw: raw})
		accumulated += data.Value

		if i >= minCount && accumulated >= amount {
			break
		}
	}

	if wantsJSON(r) {
		type jsonRecord struct {
			TxID  string `json:"txid"`
			Vout  uint32 `json:"vout"`
			Value uint64 `json:"value"`
			Raw   string `json:"raw"`
		}
		out := make([]jsonRecord, 0, len(records))
		for _, rec := range records {
			out = append(out, jsonRecord{
				TxID:  hex.EncodeToString(rec.TxID[:]),
				Vout:  rec.Vout,
				Value: rec.Value,
				Raw:   hex.EncodeToString(rec.Raw),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	header := make([]byte, 8)
	binary.BigEndian.PutUint64(header, uint64(len(records)))
	w.Write(header)
	for _, rec := range records {
		fixedFields := make([]byte, 32+4+8+4)
		copy(fixedFields[0:32], rec.TxID[:])
		binary.BigEndian.PutUint32(fixedFields[32:36], rec.Vout)
		binary.BigEndian.PutUint64(fixedFields[36:44], rec.Value)
		binary.BigEndian.PutUint32(fixedFields[44:48], uint32(len(rec.Raw)))
		w.Write(fixedFields)
		w.Write(rec.Raw)
	}
}
