package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/registry"
	"github.com/becknlabs/mesh/store"
)

func setupSeller(t *testing.T, handler ActionHandler, resolver mapResolver, requireGateway bool) (*Seller, chi.Router) {
	t.Helper()

	identity, record := newIdentity(t, "seller.example.org")
	record.Role = registry.RoleBPP
	resolver[record.SubscriberID] = record

	subLimit, anonLimit := wideLimits()
	seller := NewSeller(&SellerConfig{
		Identity:                identity,
		SubscriberLimit:         subLimit,
		AnonymousLimit:          anonLimit,
		RequireGatewaySignature: requireGateway,
	}, handler, resolver, store.NewMemoryKV())

	router := chi.NewRouter()
	seller.RegisterRoutes(router)
	return seller, router
}

func actionEnvelope(t *testing.T, action protocol.Action, bapURI, messageID string) (*protocol.Envelope, []byte) {
	t.Helper()

	env := &protocol.Envelope{
		Context: protocol.Context{
			Domain:        "retail",
			City:          "std:080",
			Action:        action,
			BapID:         "buyer.example.org",
			BapURI:        bapURI,
			TransactionID: "txn-1",
			MessageID:     messageID,
		},
		Message: json.RawMessage(`{"intent":"shoes"}`),
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return env, body
}

func TestSeller_VerifiedActionReachesHandler(t *testing.T) {
	buyer, buyerRecord := newIdentity(t, "buyer.example.org")
	resolver := mapResolver{buyerRecord.SubscriberID: buyerRecord}

	var mu sync.Mutex
	var handled *protocol.Envelope
	handler := ActionHandlerFunc(func(ctx context.Context, env *protocol.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		handled = env
		return nil
	})

	_, router := setupSeller(t, handler, resolver, false)

	_, body := actionEnvelope(t, protocol.ActionSelect, "https://buyer.example.org", "msg-1")
	req := httptest.NewRequest("POST", "/select", strings.NewReader(string(body)))
	req.Header.Set("Authorization", signBody(t, buyer, body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, handled)
	require.Equal(t, protocol.ActionSelect, handled.Context.Action)
}

func TestSeller_SearchRequiresGatewayHeader(t *testing.T) {
	buyer, buyerRecord := newIdentity(t, "buyer.example.org")
	gateway, gatewayRecord := newIdentity(t, "gateway.example.org")
	gatewayRecord.Role = registry.RoleBG
	resolver := mapResolver{
		buyerRecord.SubscriberID:   buyerRecord,
		gatewayRecord.SubscriberID: gatewayRecord,
	}

	var handledCount int
	var mu sync.Mutex
	handler := ActionHandlerFunc(func(ctx context.Context, env *protocol.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		handledCount++
		return nil
	})

	_, router := setupSeller(t, handler, resolver, true)

	_, body := actionEnvelope(t, protocol.ActionSearch, "https://buyer.example.org", "msg-2")

	// Buyer signature alone is not enough on the broadcast route.
	req := httptest.NewRequest("POST", "/search", strings.NewReader(string(body)))
	req.Header.Set("Authorization", signBody(t, buyer, body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// With the gateway header the request passes. The rejected attempt
	// already consumed its message_id in the duplicate guard, so this is a
	// fresh message.
	_, body = actionEnvelope(t, protocol.ActionSearch, "https://buyer.example.org", "msg-2b")
	req = httptest.NewRequest("POST", "/search", strings.NewReader(string(body)))
	req.Header.Set("Authorization", signBody(t, buyer, body))
	req.Header.Set("X-Gateway-Authorization", signBody(t, gateway, body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Non-broadcast routes do not ask for the gateway header.
	_, selectBody := actionEnvelope(t, protocol.ActionSelect, "https://buyer.example.org", "msg-3")
	req = httptest.NewRequest("POST", "/select", strings.NewReader(string(selectBody)))
	req.Header.Set("Authorization", signBody(t, buyer, selectBody))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, handledCount)
}

func TestSeller_ReplyDeliversCallbackToOrigin(t *testing.T) {
	var mu sync.Mutex
	var gotPath string
	var gotBody []byte
	buyerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(protocol.NewAck())
	}))
	defer buyerSrv.Close()

	seller, _ := setupSeller(t, ActionHandlerFunc(func(ctx context.Context, env *protocol.Envelope) error {
		return nil
	}), mapResolver{}, false)

	origin, _ := actionEnvelope(t, protocol.ActionSearch, buyerSrv.URL, "msg-4")
	result := seller.Reply(context.Background(), &origin.Context, json.RawMessage(`{"catalog":{"items":[]}}`))
	require.True(t, result.OK)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/on_search", gotPath)

	var callback protocol.Envelope
	require.NoError(t, json.Unmarshal(gotBody, &callback))
	require.Equal(t, protocol.ActionOnSearch, callback.Context.Action)
	// The callback answers in the origin's correlation scope.
	require.Equal(t, origin.Context.TransactionID, callback.Context.TransactionID)
	require.Equal(t, origin.Context.MessageID, callback.Context.MessageID)
	require.Equal(t, origin.Context.BapID, callback.Context.BapID)
	require.Equal(t, "seller.example.org", callback.Context.BppID)
	require.JSONEq(t, `{"catalog":{"items":[]}}`, string(callback.Message))
}

func TestSeller_ReplyRejectsCallbackOrigin(t *testing.T) {
	seller, _ := setupSeller(t, ActionHandlerFunc(func(ctx context.Context, env *protocol.Envelope) error {
		return nil
	}), mapResolver{}, false)

	origin, _ := actionEnvelope(t, protocol.ActionOnSearch, "https://buyer.example.org", "msg-5")
	result := seller.Reply(context.Background(), &origin.Context, json.RawMessage(`{}`))
	require.False(t, result.OK)
	require.Contains(t, result.Err, "no callback")
}

func TestEnroll_ActivatesAgainstRegistry(t *testing.T) {
	// Minimal in-process registry standing in for the real service.
	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	const challenge = "6368616c6c656e6765"
	var answered bool
	registrySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subscribe":
			json.NewEncoder(w).Encode(&registry.SubscribeResponse{
				SubscriberID: "buyer.example.org",
				Challenge:    challenge,
				Status:       registry.StatusUnderVerification,
			})
		case "/on_subscribe":
			var answer registry.ChallengeAnswer
			require.NoError(t, json.NewDecoder(r.Body).Decode(&answer))
			require.Equal(t, "buyer.example.org", answer.SubscriberID)
			require.NotEmpty(t, answer.Signature)
			answered = true
			json.NewEncoder(w).Encode(map[string]any{"status": registry.StatusActive})
		default:
			http.NotFound(w, r)
		}
	}))
	defer registrySrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = Enroll(ctx, registrySrv.URL, &registry.Subscriber{
		SubscriberID:  "buyer.example.org",
		SubscriberURL: "https://buyer.example.org",
		Role:          registry.RoleBAP,
		Domain:        "retail",
		SigningKey:    pubKey.String(),
		UniqueKeyID:   "key1",
	}, privKey)
	require.NoError(t, err)
	require.True(t, answered)
}
