// Package errs defines the error taxonomy shared across the indexer.
package errs

import (
	"errors"
	"net/http"
)

// Sentinel error kinds. Call sites wrap these with fmt.Errorf("...: %w", ErrX)
// so callers can still errors.Is against the kind while getting a useful message.
var (
	ErrMalformedKey    = errors.New("malformed key")
	ErrMalformedValue  = errors.New("malformed value")
	ErrMalformedBlock  = errors.New("malformed block")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrMissingRecord   = errors.New("missing record")
	ErrStorageError    = errors.New("storage error")
	ErrRpcError        = errors.New("rpc error")
	ErrReorgTooDeep    = errors.New("reorg deeper than confirmation horizon")
	ErrTooManyRequests = errors.New("too many requests")
)

// HTTPStatus maps an error kind to the HTTP status the query API should
// respond with. Internals (storage misses, malformed on-disk records) are
// never exposed to the caller beyond the status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingRecord):
		return http.StatusInternalServerError
	case errors.Is(err, ErrStorageError):
		return http.StatusInternalServerError
	case errors.Is(err, ErrMalformedKey), errors.Is(err, ErrMalformedValue), errors.Is(err, ErrMalformedBlock):
		return http.StatusInternalServerError
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
