package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/directory"
	"github.com/becknlabs/mesh/metrics"
	"github.com/becknlabs/mesh/protocol"
)

// GatewayAuthHeader carries the broadcasting node's own signature alongside
// the originator's Authorization on fanned-out requests.
const GatewayAuthHeader = "X-Gateway-Authorization"

// deliveryTimeout bounds response headers and body read on each outbound
// delivery, so one unresponsive counterpart cannot stall a worker slot.
const deliveryTimeout = 10 * time.Second

// FanoutJob is one pending delivery: the exact envelope bytes and the headers
// to replay at the target. Consumed exactly once and discarded afterwards.
type FanoutJob struct {
	TargetID      string          `json:"target_id"`
	TargetURL     string          `json:"target_url"`
	Action        protocol.Action `json:"action"`
	Body          []byte          `json:"body"`
	Authorization string          `json:"authorization"`
	GatewayAuth   string          `json:"gateway_authorization"`
}

// FanoutConfig identifies the broadcasting node and its signing key.
type FanoutConfig struct {
	SubscriberID string
	UniqueKeyID  string
	SigningKey   crypto.PrivateKey
	Log          *slog.Logger
}

// Fanout broadcasts one inbound envelope to many counterparts through the
// broker, each target as an independent delivery. At-most-once by design: a
// failed delivery is logged and counted, never retried or dead-lettered.
type Fanout struct {
	config     *FanoutConfig
	broker     Broker
	httpClient *http.Client
	log        *slog.Logger
}

// NewFanout creates a fanout dispatcher over the given broker.
func NewFanout(config *FanoutConfig, broker Broker) *Fanout {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{
		config: config,
		broker: broker,
		httpClient: &http.Client{
			Timeout: 2 * deliveryTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: deliveryTimeout,
			},
		},
		log: log,
	}
}

// Enqueue publishes one job per target. The gateway header is signed once
// here: it authenticates the broadcasting node, not any single delivery.
// Returns once every job is accepted by the broker; deliveries complete
// asynchronously.
func (f *Fanout) Enqueue(ctx context.Context, targets []directory.Endpoint, action protocol.Action, body []byte, authorization string) error {
	gatewayAuth, err := crypto.SignRequestNow(body, f.config.SubscriberID, f.config.UniqueKeyID, f.config.SigningKey)
	if err != nil {
		return fmt.Errorf("signing gateway header: %w", err)
	}

	for _, target := range targets {
		job := &FanoutJob{
			TargetID:      target.SubscriberID,
			TargetURL:     target.URL,
			Action:        action,
			Body:          body,
			Authorization: authorization,
			GatewayAuth:   gatewayAuth,
		}
		encoded, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encoding job for %s: %w", target.SubscriberID, err)
		}
		if err := f.broker.Publish(ctx, encoded); err != nil {
			return fmt.Errorf("publishing job for %s: %w", target.SubscriberID, err)
		}
	}

	f.log.Info("broadcast enqueued", "action", action, "targets", len(targets))
	return nil
}

// Run consumes and delivers jobs until ctx is done.
func (f *Fanout) Run(ctx context.Context) error {
	return f.broker.Consume(ctx, f.deliver)
}

func (f *Fanout) deliver(body []byte) {
	job, err := protocol.UnmarshalMessage[FanoutJob](body)
	if err != nil {
		f.log.Error("dropping undecodable fanout job", "err", err)
		return
	}

	url := job.TargetURL + "/" + string(job.Action)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(job.Body))
	if err != nil {
		f.log.Error("building delivery request", "target", job.TargetID, "err", err)
		metrics.FanoutDeliveries.WithLabelValues("transport_error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", job.Authorization)
	req.Header.Set(GatewayAuthHeader, job.GatewayAuth)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn("delivery failed", "target", job.TargetID, "url", url, "err", err)
		metrics.FanoutDeliveries.WithLabelValues("transport_error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Warn("delivery rejected", "target", job.TargetID, "url", url, "status", resp.StatusCode)
		metrics.FanoutDeliveries.WithLabelValues("http_error").Inc()
		return
	}

	f.log.Info("delivered", "target", job.TargetID, "action", job.Action, "status", resp.StatusCode)
	metrics.FanoutDeliveries.WithLabelValues("ok").Inc()
}
