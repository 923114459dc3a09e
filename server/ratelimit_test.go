package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientRateLimiter(t *testing.T) {
	rl := NewClientRateLimiter(0.001, 2)
	defer rl.Stop()

	require.True(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.2"))
	require.Equal(t, 2, rl.Len())

	rl.evictIdle(time.Now().Add(time.Minute))
	require.Equal(t, 0, rl.Len())

	rl.Stop()
}

func TestClientRateLimiter_Disabled(t *testing.T) {
	rl := NewClientRateLimiter(0, 0)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestClientRateLimiter_ForwardedForFromUntrustedPeer(t *testing.T) {
	rl := NewClientRateLimiter(0.001, 1)
	defer rl.Stop()

	handler := rl.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}

	require.Equal(t, 1, allowed)
	require.Equal(t, 1, rl.Len())
}

func TestClientRateLimiter_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10"})
	require.NoError(t, err)
	rl := NewClientRateLimiter(1, 1, WithTrustedProxies(proxies))
	defer rl.Stop()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "no header", remoteAddr: "203.0.113.7:1234", want: "203.0.113.7"},
		{name: "untrusted peer ignores header", remoteAddr: "203.0.113.7:1234", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted peer without header", remoteAddr: "10.1.2.3:1234", want: "10.1.2.3"},
		{name: "trusted peer", remoteAddr: "10.1.2.3:1234", xff: "198.51.100.1", want: "198.51.100.1"},
		{name: "spoofed left hops skipped", remoteAddr: "10.1.2.3:1234", xff: "6.6.6.6, 198.51.100.1", want: "198.51.100.1"},
		{name: "chained proxies", remoteAddr: "192.168.1.10:1234", xff: "198.51.100.1, 10.0.0.7", want: "198.51.100.1"},
		{name: "all hops trusted", remoteAddr: "10.1.2.3:1234", xff: "10.0.0.9, 10.0.0.7", want: "10.0.0.9"},
		{name: "ipv4 mapped peer", remoteAddr: "[::ffff:10.1.2.3]:1234", xff: "198.51.100.1", want: "198.51.100.1"},
		{name: "ipv6 peer", remoteAddr: "[2001:db8::1]:1234", xff: "198.51.100.1", want: "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			require.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies(nil)
	require.NoError(t, err)
	require.Empty(t, proxies)

	proxies, err = ParseTrustedProxies([]string{"10.1.2.3/8", "::1"})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.0/8", proxies[0].String())
	require.Equal(t, "::1/128", proxies[1].String())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	require.Error(t, err)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)
}
