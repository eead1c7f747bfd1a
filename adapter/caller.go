// Package adapter implements the buyer-side (BAP) and seller-side (BPP)
// network participants on top of the shared transport layer. Business logic
// stays behind the ActionHandler interface; this package only moves verified
// envelopes in and signed envelopes out.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/protocol"
)

// ActionHandler receives envelopes that passed every admission gate. It is
// the seam to the out-of-scope business logic: a synchronous error only
// affects logging, the protocol-level answer is always an ACK once the
// gates pass.
type ActionHandler interface {
	Handle(ctx context.Context, env *protocol.Envelope) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, env *protocol.Envelope) error

// Handle calls f.
func (f ActionHandlerFunc) Handle(ctx context.Context, env *protocol.Envelope) error {
	return f(ctx, env)
}

// Identity names a participant and its signing material.
type Identity struct {
	SubscriberID  string
	SubscriberURL string
	UniqueKeyID   string
	SigningKey    crypto.PrivateKey
}

// Caller sends signed actions to a counterpart or the gateway.
type Caller struct {
	identity   Identity
	httpClient *http.Client
}

// NewCaller creates an outbound caller for the given identity.
func NewCaller(identity Identity) *Caller {
	return &Caller{
		identity:   identity,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewEnvelope builds a fresh action envelope with new transaction and message
// ids for the calling participant.
func (c *Caller) NewEnvelope(domain, city string, action protocol.Action, message json.RawMessage) *protocol.Envelope {
	return &protocol.Envelope{
		Context: protocol.Context{
			Domain:        domain,
			City:          city,
			Action:        action,
			CoreVersion:   "1.2.0",
			BapID:         c.identity.SubscriberID,
			BapURI:        c.identity.SubscriberURL,
			TransactionID: uuid.NewString(),
			MessageID:     uuid.NewString(),
			Timestamp:     protocol.NewTimestamp(time.Now()),
		},
		Message: message,
	}
}

// NextEnvelope builds a follow-up action in an existing transaction: same
// transaction id, fresh message id.
func (c *Caller) NextEnvelope(prev *protocol.Context, action protocol.Action, message json.RawMessage) *protocol.Envelope {
	env := c.NewEnvelope(prev.Domain, prev.City, action, message)
	env.Context.TransactionID = prev.TransactionID
	env.Context.BppID = prev.BppID
	env.Context.BppURI = prev.BppURI
	return env
}

// Call signs the envelope and POSTs it to the target's endpoint for the
// action, returning the synchronous acknowledgement. The asynchronous answer
// arrives later through the adapter's callback endpoint.
func (c *Caller) Call(ctx context.Context, targetURL string, env *protocol.Envelope) (*protocol.AckResponse, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	auth, err := crypto.SignRequestNow(body, c.identity.SubscriberID, c.identity.UniqueKeyID, c.identity.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	url := strings.TrimSuffix(targetURL, "/") + "/" + string(env.Context.Action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	ack, err := protocol.DecodeMessage[protocol.AckResponse](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding ack from %s (status %d): %w", url, resp.StatusCode, err)
	}
	return ack, nil
}
