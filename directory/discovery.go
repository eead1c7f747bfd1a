package directory

import (
	"context"
	"sort"

	"github.com/becknlabs/mesh/registry"
)

// Endpoint is the minimal shape a dispatcher needs per broadcast target.
type Endpoint struct {
	SubscriberID string
	URL          string
	PublicKey    string
}

// Resolver is the directory read contract discovery depends on.
type Resolver interface {
	Lookup(ctx context.Context, subscriberID string) (*registry.Subscriber, error)
	LookupByDomainCity(ctx context.Context, domain, city string, role registry.Role) ([]*registry.Subscriber, error)
}

// Discovery resolves the set of seller platforms eligible to receive a
// broadcast for a domain and city.
type Discovery struct {
	directory Resolver
}

// NewDiscovery creates a discovery service over a directory client.
func NewDiscovery(directory Resolver) *Discovery {
	return &Discovery{directory: directory}
}

// Discover returns every ACTIVE seller platform with a callback URL and a
// signing key for the given domain and city, sorted by subscriber id so the
// result order is deterministic.
func (d *Discovery) Discover(ctx context.Context, domain, city string) ([]Endpoint, error) {
	subs, err := d.directory.LookupByDomainCity(ctx, domain, city, registry.RoleBPP)
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(subs))
	for _, sub := range subs {
		if !sub.Eligible() {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			SubscriberID: sub.SubscriberID,
			URL:          sub.SubscriberURL,
			PublicKey:    sub.SigningKey,
		})
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].SubscriberID < endpoints[j].SubscriberID
	})
	return endpoints, nil
}
