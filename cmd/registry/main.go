// Command registry runs a standalone network registry node.
//
// The registry is the source of truth for subscriber records: who is on the
// network, their callback URLs, their signing public keys, and their
// lifecycle status.
//
// # Configuration File
//
// Create a YAML file with registry settings:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	admin_token: "admin:secret"
//	postgres:
//	  host: localhost
//	  port: 5432
//	  user: mesh
//	  password: mesh
//	  database: registry
//
// Without a postgres section the registry keeps records in memory, which is
// only suitable for development.
//
// # Endpoints
//
// Public (no auth):
//   - POST /subscribe - Subscriber onboarding, triggers the challenge flow
//   - POST /on_subscribe - Challenge answer, activates the subscriber
//   - POST /lookup - Subscriber lookup by id or by domain/city/type
//   - GET /health - Health check
//
// Admin (basic auth when admin_token set):
//   - PATCH /admin/subscribers/{subscriber_id}/status - Lifecycle transitions
//
// # Usage
//
//	go run ./cmd/registry --config=registry.yaml
//	go run ./cmd/registry --addr=:8080 --admin-token="admin:secret"
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/becknlabs/mesh/api/httpserver"
	"github.com/becknlabs/mesh/cmd/common"
	"github.com/becknlabs/mesh/registry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address")
		adminToken = flag.String("admin-token", "", "Basic auth token for admin operations (user:pass)")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *adminToken != "" {
		cfg.AdminToken = *adminToken
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config) error {
	log := common.NewLogger()

	var subscriberStore registry.Store
	if cfg.Postgres != nil {
		pgStore, err := registry.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pgStore.Close()
		subscriberStore = pgStore
	} else {
		log.Warn("no postgres configured, subscriber records are in-memory only")
		subscriberStore = registry.NewMemoryStore()
	}

	service := registry.NewService(&registry.ServiceConfig{
		AdminToken: cfg.AdminToken,
		Log:        log,
	}, subscriberStore)
	if cfg.AdminToken == "" {
		log.Warn("no admin token configured, admin routes are disabled")
	}

	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            httpserver.DefaultDrainDuration,
		GracefulShutdownDuration: httpserver.DefaultGracefulShutdownDuration,
		ReadTimeout:              httpserver.DefaultReadTimeout,
		WriteTimeout:             httpserver.DefaultWriteTimeout,
	}, registrarFunc(func(r chi.Router) {
		service.RegisterRoutes(r)
		service.RegisterAdminRoutes(r)
	}))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("Registry starting", "listenAddr", cfg.ListenAddr)
	server.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down registry")
	server.Shutdown()
	return nil
}

type registrarFunc func(r chi.Router)

func (f registrarFunc) RegisterRoutes(r chi.Router) { f(r) }
