package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when no record exists for a subscriber id.
var ErrNotFound = errors.New("subscriber not found")

// Store persists subscriber records and their pending challenges.
type Store interface {
	Save(ctx context.Context, sub *Subscriber) error
	Get(ctx context.Context, subscriberID string) (*Subscriber, error)
	Find(ctx context.Context, domain, city string, role Role) ([]*Subscriber, error)
	UpdateStatus(ctx context.Context, subscriberID string, status Status) error
	SaveChallenge(ctx context.Context, subscriberID, challenge string) error
	Challenge(ctx context.Context, subscriberID string) (string, error)
}

// MemoryStore implements Store in memory, for tests and single-node setups.
type MemoryStore struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	challenges  map[string]string
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[string]*Subscriber),
		challenges:  make(map[string]string),
	}
}

// Save stores or replaces a subscriber record.
func (s *MemoryStore) Save(ctx context.Context, sub *Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *sub
	s.subscribers[sub.SubscriberID] = &clone
	return nil
}

// Get returns the record for subscriberID.
func (s *MemoryStore) Get(ctx context.Context, subscriberID string) (*Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

// Find returns records matching the (domain, city, role) triple, sorted by
// subscriber id for deterministic output.
func (s *MemoryStore) Find(ctx context.Context, domain, city string, role Role) ([]*Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Subscriber
	for _, sub := range s.subscribers {
		if sub.Domain != domain || sub.Role != role {
			continue
		}
		if city != "" && sub.City != city {
			continue
		}
		clone := *sub
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubscriberID < result[j].SubscriberID
	})
	return result, nil
}

// UpdateStatus sets the lifecycle status of a record.
func (s *MemoryStore) UpdateStatus(ctx context.Context, subscriberID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	return nil
}

// SaveChallenge stores the pending verification challenge for a subscriber.
func (s *MemoryStore) SaveChallenge(ctx context.Context, subscriberID, challenge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[subscriberID] = challenge
	return nil
}

// Challenge returns the pending challenge for a subscriber.
func (s *MemoryStore) Challenge(ctx context.Context, subscriberID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.challenges[subscriberID]
	if !ok {
		return "", ErrNotFound
	}
	return challenge, nil
}
