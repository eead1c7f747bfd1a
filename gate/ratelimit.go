package gate

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/metrics"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/store"
)

// RateLimit is one fixed-window limit.
type RateLimit struct {
	// Max requests allowed per window.
	Max int64
	// Window is the counting window; counters expire with it.
	Window time.Duration
}

// RateLimiter admits at most limit.Max requests per identity per window.
// Identity is, in priority order: the subscriber in the Authorization keyId,
// the bap_id in the body, the caller's network address. Over-limit requests
// get a 429 NACK; allowed requests get X-RateLimit headers. If the store is
// unreachable the limiter fails open.
func RateLimiter(kv store.KV, limit RateLimit, log *slog.Logger) func(http.Handler) http.Handler {
	return DualRateLimiter(kv, limit, limit, log)
}

// DualRateLimiter keeps two simultaneously-active limits: a tighter one for
// identified subscribers and a looser fallback for anonymous traffic keyed by
// address. The applicable limit and counter key follow from whether subscriber
// identity could be resolved.
func DualRateLimiter(kv store.KV, subscriberLimit, anonymousLimit RateLimit, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, identified := callerIdentity(r)

			limit := anonymousLimit
			if identified {
				limit = subscriberLimit
			}

			key := "ratelimit:" + identity
			count, err := kv.Incr(r.Context(), key, limit.Window)
			if err != nil {
				log.Warn("rate limiter store unavailable, failing open", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > limit.Max {
				log.Info("rate limit exceeded", "identity", identity, "count", count, "max", limit.Max)
				metrics.GateRejections.WithLabelValues("ratelimit", "exceeded").Inc()
				WriteNack(w, http.StatusTooManyRequests, protocol.NewError(
					protocol.ErrPolicy, protocol.CodeRateLimited,
					"rate limit exceeded for "+identity))
				return
			}

			remaining := limit.Max - count
			reset := limit.Window
			if ttl, err := kv.TTL(r.Context(), key); err == nil && ttl > 0 {
				reset = ttl
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Max, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(int64(reset.Seconds()+0.5), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// callerIdentity resolves the counter key and whether it names a subscriber.
func callerIdentity(r *http.Request) (string, bool) {
	if auth, err := crypto.ParseAuthorization(r.Header.Get("Authorization")); err == nil {
		return auth.SubscriberID, true
	}

	if body, err := readBody(r); err == nil && len(body) > 0 {
		var env protocol.Envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Context.BapID != "" {
			return env.Context.BapID, true
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false
	}
	return host, false
}
