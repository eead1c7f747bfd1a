// Package directory resolves counterpart records from the registry, fronted by
// a short-lived cache. Verification and discovery read through this package
// and never mutate cache entries directly.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/becknlabs/mesh/registry"
	"github.com/becknlabs/mesh/store"
)

// CacheTTL is how long a resolved record stays fresh.
const CacheTTL = 5 * time.Minute

// Client resolves subscriber records from the registry's /lookup endpoint.
//
// Lookup failures are deliberately indistinguishable from "not found": callers
// must treat an unreachable registry as an unknown counterpart. Verification
// therefore fails closed, while the guards in front of it fail open on their
// own store.
type Client struct {
	registryURL string
	httpClient  *http.Client
	cache       store.KV
	log         *slog.Logger
}

// NewClient creates a directory client against the given registry base URL.
func NewClient(registryURL string, cache store.KV, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		registryURL: registryURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cache:       cache,
		log:         log,
	}
}

// Lookup resolves one subscriber by id. Returns (nil, nil) when the subscriber
// is unknown or the registry is unreachable.
func (c *Client) Lookup(ctx context.Context, subscriberID string) (*registry.Subscriber, error) {
	cacheKey := "directory:subscriber:" + subscriberID

	if cached, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
		var sub registry.Subscriber
		if err := json.Unmarshal([]byte(cached), &sub); err == nil {
			return &sub, nil
		}
	}

	subs := c.fetch(ctx, &registry.LookupRequest{SubscriberID: subscriberID})
	if len(subs) == 0 {
		return nil, nil
	}

	if encoded, err := json.Marshal(subs[0]); err == nil {
		if err := c.cache.Set(ctx, cacheKey, string(encoded), CacheTTL); err != nil {
			c.log.Warn("directory cache write failed", "subscriberID", subscriberID, "err", err)
		}
	}
	return subs[0], nil
}

// LookupByDomainCity resolves the set of subscribers matching a (domain, city,
// role) triple. Returns an empty set when nothing matches or the registry is
// unreachable.
func (c *Client) LookupByDomainCity(ctx context.Context, domain, city string, role registry.Role) ([]*registry.Subscriber, error) {
	cacheKey := "directory:set:" + domain + ":" + city + ":" + string(role)

	if cached, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
		var subs []*registry.Subscriber
		if err := json.Unmarshal([]byte(cached), &subs); err == nil {
			return subs, nil
		}
	}

	subs := c.fetch(ctx, &registry.LookupRequest{Domain: domain, City: city, Role: role})
	if len(subs) == 0 {
		return nil, nil
	}

	if encoded, err := json.Marshal(subs); err == nil {
		if err := c.cache.Set(ctx, cacheKey, string(encoded), CacheTTL); err != nil {
			c.log.Warn("directory cache write failed", "domain", domain, "city", city, "err", err)
		}
	}
	return subs, nil
}

// fetch calls the registry. Any failure yields nil: the caller cannot tell an
// outage from an empty result, by contract.
func (c *Client) fetch(ctx context.Context, lookup *registry.LookupRequest) []*registry.Subscriber {
	body, err := json.Marshal(lookup)
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.registryURL+"/lookup", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("registry lookup failed", "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("registry lookup returned error", "status", resp.StatusCode)
		return nil
	}

	var subs []*registry.Subscriber
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		c.log.Warn("registry lookup decode failed", "err", err)
		return nil
	}
	return subs
}
