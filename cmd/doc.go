// Package cmd provides CLI commands for the mesh network nodes.
//
// # Commands
//
// registry: The subscriber directory. Handles onboarding with the signed
// challenge flow, lookup, and admin lifecycle transitions.
//
//	go run ./cmd/registry --addr=:8080 --admin-token=admin:secret
//
// gateway: The broadcast gateway. Verifies inbound search requests, fans
// them out through the broker to every eligible seller platform, and relays
// on_search callbacks back to the originating buyer platform.
//
//	go run ./cmd/gateway --config=gateway.yaml
//
// bap: A buyer platform node. Exposes the on_* callback endpoints behind the
// admission gates and enrolls with the registry on startup.
//
//	go run ./cmd/bap --config=bap.yaml --domain=retail --city=std:080
//
// bpp: A seller platform node. Exposes one endpoint per protocol action,
// verifies the gateway-origin header on broadcast requests, and answers every
// action with an empty callback so a network can be exercised end to end.
//
//	go run ./cmd/bpp --config=bpp.yaml --domain=retail --city=std:080
//
// # Configuration
//
// All commands support YAML configuration files via the --config flag.
// Command-line flags override config file values. See cmd/common.Config for
// the shared schema; each node uses the subset relevant to it.
//
// A minimal local network is the registry, the gateway with Redis and
// RabbitMQ configured, and one bap and one bpp enrolled in the same domain
// and city.
package cmd
