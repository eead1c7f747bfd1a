package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func validContext() Context {
	return Context{
		Domain:        "retail",
		Action:        ActionSearch,
		BapID:         "buyer.example.org",
		BapURI:        "https://buyer.example.org",
		TransactionID: "txn-1",
		MessageID:     "msg-1",
	}
}

func TestContextValidate(t *testing.T) {
	valid := validContext()
	require.NoError(t, valid.Validate())

	missing := func(mutate func(*Context)) error {
		c := validContext()
		mutate(&c)
		return c.Validate()
	}

	require.Error(t, missing(func(c *Context) { c.Domain = "" }))
	require.Error(t, missing(func(c *Context) { c.Action = "" }))
	require.Error(t, missing(func(c *Context) { c.TransactionID = "" }))
	require.Error(t, missing(func(c *Context) { c.MessageID = "" }))
	require.Error(t, missing(func(c *Context) { c.Action = "frobnicate" }))
}

func TestEnvelopePreservesMessageBytes(t *testing.T) {
	// Key order and spacing inside message must survive a decode/encode cycle,
	// otherwise the signature digest breaks.
	raw := []byte(`{"context":{"domain":"retail","action":"search","bap_id":"b","bap_uri":"u","transaction_id":"t","message_id":"m"},"message":{"z":1,"a":{"nested":  "spaced"}}}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.JSONEq(t, `{"z":1,"a":{"nested":"spaced"}}`, string(env.Message))
	require.Equal(t, `{"z":1,"a":{"nested":  "spaced"}}`, string(env.Message))
}

func TestAckNackBodies(t *testing.T) {
	ack, err := SerializeMessage(NewAck())
	require.NoError(t, err)
	require.JSONEq(t, `{"message":{"ack":{"status":"ACK"}}}`, string(ack))

	nack, err := SerializeMessage(NewNack(NewError(ErrPolicy, CodeRateLimited, "slow down")))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"message":{"ack":{"status":"NACK"}},
		"error":{"type":"POLICY-ERROR","code":"23002","message":"slow down"}
	}`, string(nack))

	decoded, err := UnmarshalMessage[AckResponse](nack)
	require.NoError(t, err)
	require.Equal(t, "NACK", decoded.Message.Ack.Status)
	require.Equal(t, CodeRateLimited, decoded.Error.Code)
}
