package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/becknlabs/mesh/dispatch"
	"github.com/becknlabs/mesh/gate"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// SellerConfig configures a seller-side adapter.
type SellerConfig struct {
	Identity Identity

	SubscriberLimit gate.RateLimit
	AnonymousLimit  gate.RateLimit

	// RequireGatewaySignature additionally verifies the broadcast-origin
	// header on search requests arriving through a gateway.
	RequireGatewaySignature bool

	Log *slog.Logger
}

// Seller is the seller-side (BPP) adapter: it receives verified actions,
// hands them to business logic, and delivers the asynchronous callbacks the
// logic produces back to the buyer platform.
type Seller struct {
	config    *SellerConfig
	handler   ActionHandler
	forwarder *dispatch.Forwarder
	resolver  gate.SubscriberResolver
	kv        store.KV
	log       *slog.Logger
}

// NewSeller wires a seller adapter.
func NewSeller(config *SellerConfig, handler ActionHandler, resolver gate.SubscriberResolver, kv store.KV) *Seller {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	forwarder := dispatch.NewForwarder(&dispatch.ForwarderConfig{
		SubscriberID: config.Identity.SubscriberID,
		UniqueKeyID:  config.Identity.UniqueKeyID,
		SigningKey:   config.Identity.SigningKey,
		Log:          log,
	})
	return &Seller{
		config:    config,
		handler:   handler,
		forwarder: forwarder,
		resolver:  resolver,
		kv:        kv,
		log:       log,
	}
}

// RegisterRoutes registers one endpoint per action behind the full gate
// chain. The search endpoint additionally checks the gateway header when
// configured to.
func (s *Seller) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(gate.DuplicateGuard(s.kv, s.log))
		r.Use(gate.DualRateLimiter(s.kv, s.config.SubscriberLimit, s.config.AnonymousLimit, s.log))
		r.Use(gate.VerifySignature(s.resolver, s.log))

		for action, kind := range protocol.Actions() {
			if kind != protocol.KindAction {
				continue
			}
			if action.Broadcast() && s.config.RequireGatewaySignature {
				r.With(gate.VerifyGatewaySignature(s.resolver, s.log)).
					Post("/"+string(action), s.handleAction(action))
				continue
			}
			r.Post("/"+string(action), s.handleAction(action))
		}
	})
}

func (s *Seller) handleAction(action protocol.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
				protocol.ErrContext, protocol.CodeInvalidContext, "unreadable body"))
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
				protocol.ErrContext, protocol.CodeInvalidContext, "malformed envelope: "+err.Error()))
			return
		}
		if err := env.Context.Validate(); err != nil {
			gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
				protocol.ErrContext, protocol.CodeInvalidContext, err.Error()))
			return
		}
		if env.Context.Action != action {
			gate.WriteNack(w, http.StatusBadRequest, protocol.NewError(
				protocol.ErrContext, protocol.CodeInvalidContext,
				"action does not match endpoint"))
			return
		}

		if err := s.handler.Handle(r.Context(), &env); err != nil {
			s.log.Error("action handler failed", "action", action,
				"transactionID", env.Context.TransactionID, "err", err)
		}

		gate.WriteAck(w)
	}
}

// Reply signs and delivers one asynchronous callback answering origin. The
// callback keeps the origin's transaction and message ids and flips this
// participant into the bpp fields. Delivery outcome is returned for the
// caller to log or alert on; there is no internal retry.
func (s *Seller) Reply(ctx context.Context, origin *protocol.Context, message json.RawMessage) dispatch.ForwardResult {
	callback := origin.Action.Callback()
	if callback == "" {
		return dispatch.ForwardResult{OK: false, Err: "action " + string(origin.Action) + " has no callback"}
	}

	env := &protocol.Envelope{
		Context: protocol.Context{
			Domain:        origin.Domain,
			Country:       origin.Country,
			City:          origin.City,
			Action:        callback,
			CoreVersion:   origin.CoreVersion,
			BapID:         origin.BapID,
			BapURI:        origin.BapURI,
			BppID:         s.config.Identity.SubscriberID,
			BppURI:        s.config.Identity.SubscriberURL,
			TransactionID: origin.TransactionID,
			MessageID:     origin.MessageID,
			Timestamp:     protocol.NewTimestamp(time.Now()),
		},
		Message: message,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return dispatch.ForwardResult{OK: false, Err: "encoding callback: " + err.Error()}
	}

	return s.forwarder.Forward(ctx, origin.BapURI, callback, body)
}
