// Package gate provides the admission-control middlewares every signed
// message passes before business logic runs: duplicate suppression, rate
// limiting and signature verification. Rejections short-circuit with a
// NACK body and never reach a handler.
package gate

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/becknlabs/mesh/protocol"
)

// WriteNack writes the uniform NACK error body with the given HTTP status.
func WriteNack(w http.ResponseWriter, status int, err *protocol.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(protocol.NewNack(err))
}

// WriteAck writes the positive acknowledgement body.
func WriteAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.NewAck())
}

// readBody drains the request body and restores it so downstream handlers and
// the signature digest see the exact same bytes.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
