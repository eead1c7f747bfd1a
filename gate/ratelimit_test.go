package gate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

func signedRequest(t *testing.T, subscriberID, body string) *http.Request {
	t.Helper()

	_, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	auth, err := crypto.SignRequestNow([]byte(body), subscriberID, "key1", privKey)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
	req.Header.Set("Authorization", auth)
	return req
}

func TestRateLimiter_AllowsUpToMaxThenRejects(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	limit := RateLimit{Max: 3, Window: time.Minute}
	handler := RateLimiter(kv, limit, nil)(passthrough(&ran, nil))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")
	for i := 0; i < 3; i++ {
		ran = false
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedRequest(t, "buyer.example.org", body))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		require.True(t, ran)
	}

	ran = false
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, "buyer.example.org", body))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.False(t, ran)

	resp := decodeNack(t, w)
	require.Equal(t, protocol.CodeRateLimited, resp.Error.Code)
	require.Equal(t, protocol.ErrPolicy, resp.Error.Kind)
}

func TestRateLimiter_SetsRateHeaders(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	handler := RateLimiter(kv, RateLimit{Max: 10, Window: time.Minute}, nil)(passthrough(&ran, nil))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, "buyer.example.org", body))

	require.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimiter_IdentitiesCountIndependently(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	handler := RateLimiter(kv, RateLimit{Max: 1, Window: time.Minute}, nil)(passthrough(&ran, nil))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, "buyer1.example.org", body))
	require.Equal(t, http.StatusOK, w.Code)

	// buyer1 is exhausted, buyer2 is not.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, "buyer1.example.org", body))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, "buyer2.example.org", body))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDualRateLimiter_AnonymousLimitByAddress(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	subscriberLimit := RateLimit{Max: 100, Window: time.Minute}
	anonymousLimit := RateLimit{Max: 1, Window: time.Minute}
	handler := DualRateLimiter(kv, subscriberLimit, anonymousLimit, nil)(passthrough(&ran, nil))

	// No Authorization, no bap_id: falls back to the network address.
	anon := func(addr string) *http.Request {
		req := httptest.NewRequest("POST", "/search", strings.NewReader(`{"message":{}}`))
		req.RemoteAddr = addr
		return req
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, anon("10.0.0.1:4000"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, anon("10.0.0.1:4001"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different address is a different counter.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, anon("10.0.0.2:4000"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDualRateLimiter_BapIDFallback(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	subscriberLimit := RateLimit{Max: 1, Window: time.Minute}
	anonymousLimit := RateLimit{Max: 100, Window: time.Minute}
	handler := DualRateLimiter(kv, subscriberLimit, anonymousLimit, nil)(passthrough(&ran, nil))

	// Unsigned but with a bap_id in the context: counted as that subscriber.
	body := envelopeBody(t, protocol.ActionSearch, "msg-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/search", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/search", strings.NewReader(body)))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiter_FailsOpenOnStoreError(t *testing.T) {
	var ran bool
	handler := RateLimiter(failingKV{}, RateLimit{Max: 1, Window: time.Minute}, nil)(passthrough(&ran, nil))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")
	for i := 0; i < 5; i++ {
		ran = false
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, signedRequest(t, "buyer.example.org", body))
		require.Equal(t, http.StatusOK, w.Code)
		require.True(t, ran)
	}
}
