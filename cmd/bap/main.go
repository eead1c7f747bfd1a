// Command bap runs a buyer platform node.
//
// The node enrolls with the registry on startup, exposes the on_* callback
// endpoints behind the admission gates, and logs every verified callback it
// receives. Real deployments replace the logging handler with their own
// business logic behind adapter.ActionHandler.
//
// # Configuration File
//
//	listen_addr: ":8082"
//	subscriber_id: "buyer.example.org"
//	subscriber_url: "http://localhost:8082"
//	unique_key_id: "key1"
//	signing_key: "<base64 ed25519 private key>"
//	registry_url: "http://localhost:8080"
//	redis:
//	  addr: "localhost:6379"
//
// # Usage
//
//	go run ./cmd/bap --config=bap.yaml --domain=retail --city=std:080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/becknlabs/mesh/adapter"
	"github.com/becknlabs/mesh/api/httpserver"
	"github.com/becknlabs/mesh/cmd/common"
	"github.com/becknlabs/mesh/directory"
	"github.com/becknlabs/mesh/protocol"
	"github.com/becknlabs/mesh/registry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		domain     = flag.String("domain", "retail", "Network domain to enroll in")
		city       = flag.String("city", "", "City code to enroll in")
		noEnroll   = flag.Bool("no-enroll", false, "Skip registry enrollment on startup")
	)
	flag.Parse()

	if *configPath == "" {
		fmt.Println("Error: --config is required")
		os.Exit(1)
	}
	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *domain, *city, !*noEnroll); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config, domain, city string, enroll bool) error {
	log := common.NewLogger()

	if cfg.SubscriberID == "" || cfg.SubscriberURL == "" || cfg.RegistryURL == "" {
		return errors.New("subscriber_id, subscriber_url and registry_url are required")
	}

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	pubKey, _ := signingKey.PublicKey()
	log.Info("Buyer platform identity", "subscriberID", cfg.SubscriberID, "publicKey", pubKey.String())

	kv := common.NewKV(cfg.Redis, log)
	dir := directory.NewClient(cfg.RegistryURL, kv, log)

	handler := adapter.ActionHandlerFunc(func(ctx context.Context, env *protocol.Envelope) error {
		log.Info("callback received",
			"action", env.Context.Action,
			"transactionID", env.Context.TransactionID,
			"bppID", env.Context.BppID)
		return nil
	})

	buyer := adapter.NewBuyer(&adapter.BuyerConfig{
		Identity: adapter.Identity{
			SubscriberID:  cfg.SubscriberID,
			SubscriberURL: cfg.SubscriberURL,
			UniqueKeyID:   cfg.UniqueKeyID,
			SigningKey:    signingKey,
		},
		SubscriberLimit: cfg.Limits.Subscriber.Limit(),
		AnonymousLimit:  cfg.Limits.Anonymous.Limit(),
		Log:             log,
	}, handler, dir, kv)

	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            httpserver.DefaultDrainDuration,
		GracefulShutdownDuration: httpserver.DefaultGracefulShutdownDuration,
		ReadTimeout:              httpserver.DefaultReadTimeout,
		WriteTimeout:             httpserver.DefaultWriteTimeout,
	}, buyer)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("Buyer platform starting", "listenAddr", cfg.ListenAddr)
	server.RunInBackground()

	if enroll {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := adapter.Enroll(ctx, cfg.RegistryURL, &registry.Subscriber{
			SubscriberID:  cfg.SubscriberID,
			SubscriberURL: cfg.SubscriberURL,
			Role:          registry.RoleBAP,
			Domain:        domain,
			City:          city,
			SigningKey:    pubKey.String(),
			UniqueKeyID:   cfg.UniqueKeyID,
		}, signingKey)
		cancel()
		if err != nil {
			return fmt.Errorf("enrolling with registry: %w", err)
		}
		log.Info("Enrolled with registry", "registryURL", cfg.RegistryURL)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down buyer platform")
	server.Shutdown()
	return nil
}
