package gate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/metrics"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/registry"
)

// SubscriberResolver resolves a counterpart's public record. Satisfied by
// directory.Client; (nil, nil) means unknown or directory unreachable.
type SubscriberResolver interface {
	Lookup(ctx context.Context, subscriberID string) (*registry.Subscriber, error)
}

// VerifySignature gates every inbound signed message: it parses the
// Authorization header, enforces the validity window, resolves the claimed
// subscriber's key through the directory and verifies the signature over the
// exact received bytes. An unverifiable signature is always rejected — the
// directory being unreachable fails closed here, unlike the other gates.
func VerifySignature(resolver SubscriberResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return verifyHeader(resolver, "Authorization", log)
}

// VerifyGatewaySignature verifies the broadcast-origin header a gateway adds
// when fanning out. Applied by seller platforms behind VerifySignature.
func VerifyGatewaySignature(resolver SubscriberResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return verifyHeader(resolver, "X-Gateway-Authorization", log)
}

func verifyHeader(resolver SubscriberResolver, header string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(header)
			if value == "" {
				metrics.VerificationFailures.WithLabelValues("missing_header").Inc()
				WriteNack(w, http.StatusUnauthorized, protocol.NewError(
					protocol.ErrAuth, protocol.CodeInvalidSignature,
					"missing "+header+" header"))
				return
			}

			auth, err := crypto.ParseAuthorization(value)
			if err != nil {
				metrics.VerificationFailures.WithLabelValues("malformed_header").Inc()
				WriteNack(w, http.StatusBadRequest, protocol.NewError(
					protocol.ErrContext, protocol.CodeInvalidContext,
					"malformed "+header+" header: "+err.Error()))
				return
			}

			body, err := readBody(r)
			if err != nil {
				WriteNack(w, http.StatusBadRequest, protocol.NewError(
					protocol.ErrContext, protocol.CodeInvalidContext, "unreadable body"))
				return
			}

			sub, err := resolver.Lookup(r.Context(), auth.SubscriberID)
			if err != nil || sub == nil || !sub.Eligible() {
				log.Info("rejecting unknown or inactive subscriber", "subscriberID", auth.SubscriberID)
				metrics.VerificationFailures.WithLabelValues("unknown_subscriber").Inc()
				WriteNack(w, http.StatusUnauthorized, protocol.NewError(
					protocol.ErrAuth, protocol.CodeUnknownSubscriber,
					"subscriber "+auth.SubscriberID+" is unknown or not active"))
				return
			}

			pubKey, err := crypto.NewPublicKeyFromString(sub.SigningKey)
			if err != nil {
				metrics.VerificationFailures.WithLabelValues("bad_key").Inc()
				WriteNack(w, http.StatusUnauthorized, protocol.NewError(
					protocol.ErrAuth, protocol.CodeUnknownSubscriber,
					"subscriber key is not decodable"))
				return
			}

			if err := crypto.VerifyRequest(auth, body, pubKey, time.Now()); err != nil {
				cause := "mismatch"
				if err == crypto.ErrSignatureWindow {
					cause = "window"
				}
				log.Info("signature verification failed", "subscriberID", auth.SubscriberID, "cause", cause)
				metrics.VerificationFailures.WithLabelValues(cause).Inc()
				WriteNack(w, http.StatusUnauthorized, protocol.NewError(
					protocol.ErrAuth, protocol.CodeInvalidSignature,
					"signature verification failed: "+err.Error()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
