// Package protocol defines the wire vocabulary every network node shares:
// envelopes, actions, and the synchronous acknowledgement bodies.
//
// # Envelopes
//
// The wire unit is an Envelope: a typed Context carrying routing and
// correlation metadata, and an opaque Message payload. The payload stays
// json.RawMessage end to end because signatures cover the exact bytes on the
// wire; nodes route on the context and never interpret the message.
//
// # Actions and callbacks
//
// Every operation is either an action (search, select, init, confirm, ...)
// or the asynchronous callback answering it (on_search, on_select, ...).
// The synchronous HTTP response to an action is only an ACK or NACK; the
// real answer arrives later as a callback POSTed to the counterpart.
// Callbacks correlate to their action through the transaction and message
// ids, which is why they are exempt from duplicate suppression.
//
// # Acknowledgements
//
// AckResponse is the uniform synchronous body. A NACK always carries a
// structured Error with a kind (CONTEXT-ERROR, AUTH-ERROR, POLICY-ERROR,
// INTERNAL-ERROR) and a numeric code, so callers can distinguish a
// malformed envelope from a policy rejection without parsing prose.
package protocol
