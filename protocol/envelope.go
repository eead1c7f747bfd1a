package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Context carries the routing and correlation metadata every envelope must have.
// All fields are explicit; loosely-typed context maps do not survive signing, so
// anything not modeled here belongs in the message payload.
type Context struct {
	Domain        string `json:"domain"`
	Country       string `json:"country,omitempty"`
	City          string `json:"city,omitempty"`
	Action        Action `json:"action"`
	CoreVersion   string `json:"core_version,omitempty"`
	BapID         string `json:"bap_id"`
	BapURI        string `json:"bap_uri"`
	BppID         string `json:"bpp_id,omitempty"`
	BppURI        string `json:"bpp_uri,omitempty"`
	TransactionID string `json:"transaction_id"`
	MessageID     string `json:"message_id"`
	Timestamp     string `json:"timestamp,omitempty"`
	TTL           string `json:"ttl,omitempty"`
}

// Validate checks the fields the transport layer depends on.
func (c *Context) Validate() error {
	switch {
	case c.Domain == "":
		return errors.New("context.domain is required")
	case c.Action == "":
		return errors.New("context.action is required")
	case c.TransactionID == "":
		return errors.New("context.transaction_id is required")
	case c.MessageID == "":
		return errors.New("context.message_id is required")
	}
	if !c.Action.Valid() {
		return errors.New("unknown action: " + string(c.Action))
	}
	return nil
}

// Envelope is the wire unit exchanged by all nodes.
// Message is kept as raw bytes: the signature digest covers the exact bytes
// received, and any re-serialization would invalidate it.
type Envelope struct {
	Context Context         `json:"context"`
	Message json.RawMessage `json:"message"`
}

// NewTimestamp formats a time the way envelope contexts expect it.
func NewTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
