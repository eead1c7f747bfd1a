package gate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/becknlabs/mesh/metrics"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// duplicateTTL bounds how long a message_id is remembered. The protocol's
// signature window makes replays stale within seconds; the longer TTL is a
// defensive bound on store growth.
const duplicateTTL = 15 * time.Minute

// DuplicateGuard rejects replays of the same message_id on actions.
// Callbacks pass through: an on_* callback legitimately reuses the message_id
// of the action that triggered it. Requests with no body, context or
// message_id also pass through — there is nothing to deduplicate.
// If the store is unreachable the guard fails open.
func DuplicateGuard(kv store.KV, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readBody(r)
			if err != nil || len(body) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			var env protocol.Envelope
			if err := json.Unmarshal(body, &env); err != nil || env.Context.MessageID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if env.Context.Action.Kind() == protocol.KindCallback {
				next.ServeHTTP(w, r)
				return
			}

			stored, err := kv.SetNX(r.Context(), "idempotency:"+env.Context.MessageID, "1", duplicateTTL)
			if err != nil {
				log.Warn("duplicate guard store unavailable, failing open", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !stored {
				log.Info("duplicate message rejected", "messageID", env.Context.MessageID, "action", env.Context.Action)
				metrics.GateRejections.WithLabelValues("duplicate", "replay").Inc()
				WriteNack(w, http.StatusBadRequest, protocol.NewError(
					protocol.ErrPolicy, protocol.CodeDuplicateMessage,
					"duplicate message_id "+env.Context.MessageID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
