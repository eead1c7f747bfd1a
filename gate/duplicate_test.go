package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// failingKV is a store.KV double whose every operation fails, for fail-open
// behavior tests.
type failingKV struct{}

var errStoreDown = errors.New("store down")

func (failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errStoreDown
}
func (failingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}
func (failingKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errStoreDown
}

func envelopeBody(t *testing.T, action protocol.Action, messageID string) string {
	t.Helper()

	env := &protocol.Envelope{
		Context: protocol.Context{
			Domain:        "retail",
			Action:        action,
			BapID:         "buyer.example.org",
			BapURI:        "https://buyer.example.org",
			TransactionID: "txn-1",
			MessageID:     messageID,
		},
		Message: json.RawMessage(`{}`),
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return string(body)
}

// passthrough records whether the wrapped handler ran and what body it saw.
func passthrough(ran *bool, seenBody *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*ran = true
		if seenBody != nil {
			body := new(strings.Builder)
			_, _ = io.Copy(body, r.Body)
			*seenBody = body.String()
		}
		WriteAck(w)
	})
}

func decodeNack(t *testing.T, w *httptest.ResponseRecorder) *protocol.AckResponse {
	t.Helper()

	resp, err := protocol.DecodeMessage[protocol.AckResponse](w.Body)
	require.NoError(t, err)
	require.Equal(t, "NACK", resp.Message.Ack.Status)
	require.NotNil(t, resp.Error)
	return resp
}

func TestDuplicateGuard_FirstPassesSecondRejected(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	var seenBody string
	handler := DuplicateGuard(kv, nil)(passthrough(&ran, &seenBody))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")

	req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, ran)
	// The guard must not consume the body.
	require.Equal(t, body, seenBody)

	ran = false
	req = httptest.NewRequest("POST", "/search", strings.NewReader(body))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, ran)

	resp := decodeNack(t, w)
	require.Equal(t, protocol.CodeDuplicateMessage, resp.Error.Code)
	require.Equal(t, protocol.ErrPolicy, resp.Error.Kind)
}

func TestDuplicateGuard_DistinctMessagesPass(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	handler := DuplicateGuard(kv, nil)(passthrough(&ran, nil))

	for i := 0; i < 3; i++ {
		ran = false
		body := envelopeBody(t, protocol.ActionSearch, fmt.Sprintf("msg-%d", i))
		req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.True(t, ran)
	}
}

func TestDuplicateGuard_CallbacksExempt(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	handler := DuplicateGuard(kv, nil)(passthrough(&ran, nil))

	// A callback reusing the same message_id is legitimate, every time.
	body := envelopeBody(t, protocol.ActionOnSearch, "msg-1")
	for i := 0; i < 2; i++ {
		ran = false
		req := httptest.NewRequest("POST", "/on_search", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.True(t, ran)
	}
}

func TestDuplicateGuard_PassesUndecodableRequests(t *testing.T) {
	kv := store.NewMemoryKV()

	var ran bool
	handler := DuplicateGuard(kv, nil)(passthrough(&ran, nil))

	for _, body := range []string{"", "not json", `{"context":{}}`} {
		ran = false
		req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "body %q", body)
		require.True(t, ran, "body %q", body)
	}
}

func TestDuplicateGuard_FailsOpenOnStoreError(t *testing.T) {
	var ran bool
	handler := DuplicateGuard(failingKV{}, nil)(passthrough(&ran, nil))

	body := envelopeBody(t, protocol.ActionSearch, "msg-1")
	req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, ran)
}
