// Package gateway implements the broadcast gateway node: it accepts verified
// search requests from buyer platforms, fans them out to every eligible seller
// platform, and relays on_search callbacks back to the originating buyer.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/directory"
	"github.com/becknlabs/mesh/dispatch"
	"github.com/becknlabs/mesh/gate"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// dispatchTimeout bounds the background discovery + enqueue work for one
// accepted broadcast.
const dispatchTimeout = 30 * time.Second

// Discoverer resolves broadcast targets. Satisfied by directory.Discovery.
type Discoverer interface {
	Discover(ctx context.Context, domain, city string) ([]directory.Endpoint, error)
}

// ServiceConfig configures the gateway node.
type ServiceConfig struct {
	SubscriberID string
	UniqueKeyID  string
	SigningKey   crypto.PrivateKey

	// SubscriberLimit applies to identified subscribers, AnonymousLimit to
	// address-keyed traffic.
	SubscriberLimit gate.RateLimit
	AnonymousLimit  gate.RateLimit

	Log *slog.Logger
}

// Service is the gateway HTTP service.
type Service struct {
	config    *ServiceConfig
	discovery Discoverer
	fanout    *dispatch.Fanout
	forwarder *dispatch.Forwarder
	resolver  gate.SubscriberResolver
	kv        store.KV
	log       *slog.Logger
}

// NewService wires the gateway from its collaborators.
func NewService(config *ServiceConfig, discovery Discoverer, fanout *dispatch.Fanout, resolver gate.SubscriberResolver, kv store.KV) *Service {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	forwarder := dispatch.NewForwarder(&dispatch.ForwarderConfig{
		SubscriberID: config.SubscriberID,
		UniqueKeyID:  config.UniqueKeyID,
		SigningKey:   config.SigningKey,
		AsGateway:    true,
		Log:          log,
	})
	return &Service{
		config:    config,
		discovery: discovery,
		fanout:    fanout,
		forwarder: forwarder,
		resolver:  resolver,
		kv:        kv,
		log:       log,
	}
}

// RegisterRoutes registers the gateway endpoints behind the admission gates:
// duplicate guard, rate limiter, then signature verification.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(gate.DuplicateGuard(s.kv, s.log))
		r.Use(gate.DualRateLimiter(s.kv, s.config.SubscriberLimit, s.config.AnonymousLimit, s.log))
		r.Use(gate.VerifySignature(s.resolver, s.log))

		r.Post("/search", s.handleSearch)
		r.Post("/on_search", s.handleOnSearch)
	})
}

// handleSearch accepts a verified broadcast request. The request is
// acknowledged as soon as it is admitted; discovery and fanout enqueue run
// out-of-band so the buyer never waits on downstream counterparts.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	body, env, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}
	if env.Context.Action != protocol.ActionSearch {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, "expected search action"))
		return
	}

	authorization := r.Header.Get("Authorization")
	gate.WriteAck(w)

	go s.broadcast(env, body, authorization)
}

func (s *Service) broadcast(env *protocol.Envelope, body []byte, authorization string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	targets, err := s.discovery.Discover(ctx, env.Context.Domain, env.Context.City)
	if err != nil {
		s.log.Error("discovery failed", "domain", env.Context.Domain, "city", env.Context.City, "err", err)
		return
	}
	if len(targets) == 0 {
		s.log.Info("no eligible counterparts", "domain", env.Context.Domain, "city", env.Context.City)
		return
	}

	if err := s.fanout.Enqueue(ctx, targets, env.Context.Action, body, authorization); err != nil {
		s.log.Error("fanout enqueue failed", "transactionID", env.Context.TransactionID, "err", err)
	}
}

// handleOnSearch relays a verified seller callback to the buyer platform
// named in the envelope context. Delivery happens after the ACK; the outcome
// is logged, not reported to the seller.
func (s *Service) handleOnSearch(w http.ResponseWriter, r *http.Request) {
	body, env, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}
	if env.Context.Action != protocol.ActionOnSearch {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, "expected on_search action"))
		return
	}
	if env.Context.BapURI == "" {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, "missing bap_uri"))
		return
	}

	gate.WriteAck(w)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		result := s.forwarder.Forward(ctx, env.Context.BapURI, protocol.ActionOnSearch, body)
		if !result.OK {
			s.log.Warn("on_search relay failed", "bapURI", env.Context.BapURI,
				"transactionID", env.Context.TransactionID, "err", result.Err)
		}
	}()
}

func (s *Service) decodeEnvelope(w http.ResponseWriter, r *http.Request) ([]byte, *protocol.Envelope, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, "unreadable body"))
		return nil, nil, false
	}

	var env protocol.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, "malformed envelope: "+err.Error()))
		return nil, nil, false
	}
	if err := env.Context.Validate(); err != nil {
		gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
			protocol.ErrContext, protocol.CodeInvalidContext, err.Error()))
		return nil, nil, false
	}
	return body, &env, true
}
