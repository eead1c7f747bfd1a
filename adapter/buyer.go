package adapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/becknlabs/mesh/gate"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// BuyerConfig configures a buyer-side adapter.
type BuyerConfig struct {
	Identity Identity

	SubscriberLimit gate.RateLimit
	AnonymousLimit  gate.RateLimit

	Log *slog.Logger
}

// Buyer is the buyer-side (BAP) adapter: it originates actions through its
// Caller and receives the asynchronous on_* callbacks answering them.
type Buyer struct {
	config   *BuyerConfig
	caller   *Caller
	handler  ActionHandler
	resolver gate.SubscriberResolver
	kv       store.KV
	log      *slog.Logger
}

// NewBuyer wires a buyer adapter.
func NewBuyer(config *BuyerConfig, handler ActionHandler, resolver gate.SubscriberResolver, kv store.KV) *Buyer {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Buyer{
		config:   config,
		caller:   NewCaller(config.Identity),
		handler:  handler,
		resolver: resolver,
		kv:       kv,
		log:      log,
	}
}

// Caller returns the outbound action caller for this participant.
func (b *Buyer) Caller() *Caller {
	return b.caller
}

// RegisterRoutes registers one endpoint per callback action behind the gates.
// The duplicate guard is in the chain for uniformity; callbacks pass it by
// kind.
func (b *Buyer) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(gate.DuplicateGuard(b.kv, b.log))
		r.Use(gate.DualRateLimiter(b.kv, b.config.SubscriberLimit, b.config.AnonymousLimit, b.log))
		r.Use(gate.VerifySignature(b.resolver, b.log))

		for action, kind := range protocol.Actions() {
			if kind == protocol.KindCallback {
				r.Post("/"+string(action), b.handleCallback(action))
			}
		}
	})
}

func (b *Buyer) handleCallback(action protocol.Action) http.HandlerFunc {
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

		if err := b.handler.Handle(r.Context(), &env); err != nil {
			b.log.Error("callback handler failed", "action", action,
				"transactionID", env.Context.TransactionID, "err", err)
		}

		gate.WriteAck(w)
	}
}
