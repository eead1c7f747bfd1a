package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/protocol"
)

func testForwarder(t *testing.T, asGateway bool) (*Forwarder, crypto.PublicKey) {
	t.Helper()

	pubKey, privKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	return NewForwarder(&ForwarderConfig{
		SubscriberID: "seller.example.org",
		UniqueKeyID:  "key1",
		SigningKey:   privKey,
		AsGateway:    asGateway,
	}), pubKey
}

func TestForwarder_SignsAndDelivers(t *testing.T) {
	forwarder, pubKey := testForwarder(t, false)

	var gotPath, gotAuth, gotGatewayAuth string
	var gotBody []byte
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotGatewayAuth = r.Header.Get(GatewayAuthHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer origin.Close()

	body := []byte(`{"context":{"action":"on_search"},"message":{"catalog":{}}}`)
	result := forwarder.Forward(context.Background(), origin.URL, protocol.ActionOnSearch, body)

	require.True(t, result.OK)
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "/on_search", gotPath)
	require.Equal(t, body, gotBody)
	require.Empty(t, gotGatewayAuth)

	// The signature must verify over the delivered bytes.
	auth, err := crypto.ParseAuthorization(gotAuth)
	require.NoError(t, err)
	require.Equal(t, "seller.example.org", auth.SubscriberID)
	require.NoError(t, crypto.VerifyRequest(auth, gotBody, pubKey, time.Now()))
}

func TestForwarder_GatewayModeAddsOriginHeader(t *testing.T) {
	forwarder, pubKey := testForwarder(t, true)

	var gotGatewayAuth string
	var gotBody []byte
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGatewayAuth = r.Header.Get(GatewayAuthHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer origin.Close()

	body := []byte(`{"message":{}}`)
	result := forwarder.Forward(context.Background(), origin.URL+"/", protocol.ActionOnSearch, body)
	require.True(t, result.OK)

	auth, err := crypto.ParseAuthorization(gotGatewayAuth)
	require.NoError(t, err)
	require.NoError(t, crypto.VerifyRequest(auth, gotBody, pubKey, time.Now()))
}

func TestForwarder_ReportsRejection(t *testing.T) {
	forwarder, _ := testForwarder(t, false)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer origin.Close()

	result := forwarder.Forward(context.Background(), origin.URL, protocol.ActionOnSearch, []byte(`{}`))
	require.False(t, result.OK)
	require.Equal(t, http.StatusBadRequest, result.StatusCode)
	require.NotEmpty(t, result.Err)
}

func TestForwarder_ReportsTransportFailure(t *testing.T) {
	forwarder, _ := testForwarder(t, false)

	result := forwarder.Forward(context.Background(), "http://127.0.0.1:1", protocol.ActionOnSearch, []byte(`{}`))
	require.False(t, result.OK)
	require.Zero(t, result.StatusCode)
	require.NotEmpty(t, result.Err)
}
