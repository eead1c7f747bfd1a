package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/metrics"
	"github.com/becknlabs/mesh/protocol"
)

// ForwardResult reports one callback delivery attempt. The caller decides
// what, if anything, to do about a failure; the forwarder never retries.
type ForwardResult struct {
	OK         bool
	StatusCode int
	Err        string
}

// ForwarderConfig identifies the forwarding node and its signing key.
type ForwarderConfig struct {
	SubscriberID string
	UniqueKeyID  string
	SigningKey   crypto.PrivateKey

	// AsGateway adds the X-Gateway-Authorization header: set when the
	// forwarder is a broadcasting intermediary rather than the callback's
	// author.
	AsGateway bool

	Log *slog.Logger
}

// Forwarder signs and delivers one asynchronous callback to its originator.
type Forwarder struct {
	config     *ForwarderConfig
	httpClient *http.Client
	log        *slog.Logger
}

// NewForwarder creates a callback forwarder.
func NewForwarder(config *ForwarderConfig) *Forwarder {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{
		config: config,
		httpClient: &http.Client{
			Timeout: 2 * deliveryTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: deliveryTimeout,
			},
		},
		log: log,
	}
}

// Forward signs the exact callback bytes and POSTs them to the originator's
// endpoint for the callback action.
func (f *Forwarder) Forward(ctx context.Context, originURI string, action protocol.Action, body []byte) ForwardResult {
	auth, err := crypto.SignRequestNow(body, f.config.SubscriberID, f.config.UniqueKeyID, f.config.SigningKey)
	if err != nil {
		return f.failure(action, fmt.Sprintf("signing callback: %v", err))
	}

	url := strings.TrimSuffix(originURI, "/") + "/" + string(action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return f.failure(action, fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)

	if f.config.AsGateway {
		gatewayAuth, err := crypto.SignRequestNow(body, f.config.SubscriberID, f.config.UniqueKeyID, f.config.SigningKey)
		if err != nil {
			return f.failure(action, fmt.Sprintf("signing gateway header: %v", err))
		}
		req.Header.Set(GatewayAuthHeader, gatewayAuth)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return f.failure(action, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Warn("callback rejected", "action", action, "url", url, "status", resp.StatusCode)
		metrics.CallbackForwards.WithLabelValues("http_error").Inc()
		return ForwardResult{OK: false, StatusCode: resp.StatusCode, Err: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	f.log.Info("callback forwarded", "action", action, "url", url, "status", resp.StatusCode, "duration", time.Since(start))
	metrics.CallbackForwards.WithLabelValues("ok").Inc()
	return ForwardResult{OK: true, StatusCode: resp.StatusCode}
}

func (f *Forwarder) failure(action protocol.Action, msg string) ForwardResult {
	f.log.Warn("callback forward failed", "action", action, "err", msg)
	metrics.CallbackForwards.WithLabelValues("transport_error").Inc()
	return ForwardResult{OK: false, Err: msg}
}
