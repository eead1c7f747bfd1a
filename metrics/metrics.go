// Package metrics exposes prometheus collectors for the transport layer and a
// standalone metrics listener.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateRejections counts requests short-circuited by an admission gate,
	// by gate and reason.
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_gate_rejections_total",
		Help: "Requests rejected before reaching a handler.",
	}, []string{"gate", "reason"})

	// VerificationFailures counts signature verification failures by cause.
	VerificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_verification_failures_total",
		Help: "Inbound signature verification failures.",
	}, []string{"cause"})

	// FanoutDeliveries counts per-target broadcast delivery attempts by
	// outcome (ok, http_error, transport_error).
	FanoutDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_fanout_deliveries_total",
		Help: "Broadcast delivery attempts by outcome.",
	}, []string{"outcome"})

	// CallbackForwards counts callback forwarding attempts by outcome.
	CallbackForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_callback_forwards_total",
		Help: "Callback forwarding attempts by outcome.",
	}, []string{"outcome"})
)

// Server is a standalone metrics listener.
type Server struct {
	srv *http.Server
}

// New creates a metrics server on addr.
func New(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe serves the metrics endpoint until shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
