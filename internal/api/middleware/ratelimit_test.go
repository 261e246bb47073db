// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyedRequest(remoteAddr, forwardedFor string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	r.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return r
}

func TestKeyByClientIP(t *testing.T) {
	keyFn := KeyByClientIP([]string{"10.0.0.0/8", "127.0.0.1/32"})

	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		want         string
	}{
		{
			name:         "trusted proxy forwards the client address",
			remoteAddr:   "10.1.2.3:4567",
			forwardedFor: "203.0.113.9",
			want:         "203.0.113.9",
		},
		{
			name:         "untrusted peer cannot forge a forwarded address",
			remoteAddr:   "198.51.100.4:4567",
			forwardedFor: "203.0.113.9",
			want:         "198.51.100.4",
		},
		{
			name:       "trusted peer without the header keys on itself",
			remoteAddr: "127.0.0.1:4567",
			want:       "127.0.0.1",
		},
		{
			name:         "leftmost valid forwarded address wins",
			remoteAddr:   "10.0.0.1:80",
			forwardedFor: "garbage, 203.0.113.9, 10.0.0.2",
			want:         "203.0.113.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := keyFn(keyedRequest(tt.remoteAddr, tt.forwardedFor))
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestKeyByClientIP_NoTrustedProxies(t *testing.T) {
	keyFn := KeyByClientIP(nil)

	key, err := keyFn(keyedRequest("203.0.113.9:4567", "10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", key)
}

func TestRateLimitKeysSeparately(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		RequestLimit: 1,
		WindowSize:   time.Minute,
		KeyFunc:      KeyByClientIP([]string{"10.0.0.0/8"}),
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Two clients behind the same trusted proxy consume separate buckets.
	for _, client := range []string{"203.0.113.1", "203.0.113.2"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, keyedRequest("10.0.0.1:80", client))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	// The first client's second request inside the window is rejected.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest("10.0.0.1:80", "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
