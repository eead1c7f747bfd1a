package protocol

import (
	"encoding/json"
	"io"
)

// ErrorKind classifies a rejected request.
type ErrorKind string

const (
	// ErrContext covers malformed envelopes and unparseable headers.
	ErrContext ErrorKind = "CONTEXT-ERROR"
	// ErrAuth covers invalid signatures, expired windows and unknown or
	// inactive subscribers.
	ErrAuth ErrorKind = "AUTH-ERROR"
	// ErrPolicy covers duplicate messages and rate limits.
	ErrPolicy ErrorKind = "POLICY-ERROR"
	// ErrInternal covers unexpected failures inside the transport layer.
	ErrInternal ErrorKind = "INTERNAL-ERROR"
)

// Error codes reported in NACK bodies.
const (
	CodeInvalidContext    = "30000"
	CodeInvalidSignature  = "10001"
	CodeUnknownSubscriber = "10002"
	CodeDuplicateMessage  = "23001"
	CodeRateLimited       = "23002"
	CodeInternal          = "50000"
)

// Error is the structured error carried in a NACK body.
type Error struct {
	Kind    ErrorKind `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + " " + e.Code + ": " + e.Message
}

// NewError builds a protocol error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Ack is the synchronous acknowledgement status.
type Ack struct {
	Status string `json:"status"`
}

type ackMessage struct {
	Ack Ack `json:"ack"`
}

// AckResponse is the uniform synchronous response body: an ACK, or a NACK with
// the rejection reason attached.
type AckResponse struct {
	Message ackMessage `json:"message"`
	Error   *Error     `json:"error,omitempty"`
}

// NewAck builds a positive acknowledgement body.
func NewAck() *AckResponse {
	return &AckResponse{Message: ackMessage{Ack: Ack{Status: "ACK"}}}
}

// NewNack builds a negative acknowledgement body carrying the error.
func NewNack(err *Error) *AckResponse {
	return &AckResponse{Message: ackMessage{Ack: Ack{Status: "NACK"}}, Error: err}
}

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
