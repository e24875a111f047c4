package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestIPLimiterAllowsUpToBurst(t *testing.T) {
	l := newIPLimiter(rate.Limit(1), 3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"))
	}
	assert.False(t, l.allow("1.2.3.4"))
}

func TestIPLimiterTracksIndependentClients(t *testing.T) {
	l := newIPLimiter(rate.Limit(1), 1)
	assert.True(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("5.6.7.8"))
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := newIPLimiter(rate.Limit(1), 1)
	handler := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req)
	assert.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req)
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code)
}
