package registry

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/becknlabs/mesh/crypto"
)

// ServiceConfig configures the registry node.
type ServiceConfig struct {
	// AdminToken authenticates admin endpoints (user:pass). Empty disables
	// admin routes entirely.
	AdminToken string
	Log        *slog.Logger
}

// Service exposes the registry over HTTP: the subscribe/challenge flow,
// subscriber lookup, and admin status management.
type Service struct {
	config *ServiceConfig
	store  Store
	log    *slog.Logger
}

// NewService creates a registry service over the given store.
func NewService(config *ServiceConfig, store Store) *Service {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{config: config, store: store, log: log}
}

// RegisterRoutes registers the public registry endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Post("/subscribe", s.handleSubscribe)
	r.Post("/on_subscribe", s.handleChallengeAnswer)
	r.Post("/lookup", s.handleLookup)
	r.Get("/health", s.handleHealth)
}

// RegisterAdminRoutes registers basic-auth protected admin endpoints.
func (s *Service) RegisterAdminRoutes(r chi.Router) {
	if s.config.AdminToken == "" {
		return
	}
	user, pass := parseAdminToken(s.config.AdminToken)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BasicAuth("registry", map[string]string{user: pass}))
		r.Patch("/subscribers/{subscriber_id}/status", s.handleStatusUpdate)
	})
}

func parseAdminToken(token string) (user, pass string) {
	idx := strings.Index(token, ":")
	if idx < 0 {
		return token, ""
	}
	return token[:idx], token[idx+1:]
}

// handleSubscribe records a new subscriber as INITIATED and answers with the
// challenge it must sign back to prove key possession.
func (s *Service) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	var sub Subscriber
	if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sub.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := crypto.NewPublicKeyFromString(sub.SigningKey); err != nil {
		http.Error(w, "invalid signing public key", http.StatusBadRequest)
		return
	}

	if existing, err := s.store.Get(req.Context(), sub.SubscriberID); err == nil {
		// Absorbing states stay absorbed; everything else may re-subscribe.
		if existing.Status == StatusSuspended || existing.Status == StatusRevoked {
			http.Error(w, fmt.Sprintf("subscriber is %s", existing.Status), http.StatusForbidden)
			return
		}
	}

	sub.Status = StatusInitiated
	if err := s.store.Save(req.Context(), &sub); err != nil {
		s.log.Error("saving subscriber", "subscriberID", sub.SubscriberID, "err", err)
		http.Error(w, "could not save subscriber", http.StatusInternalServerError)
		return
	}

	challenge, err := newChallenge()
	if err != nil {
		http.Error(w, "could not generate challenge", http.StatusInternalServerError)
		return
	}
	if err := s.store.SaveChallenge(req.Context(), sub.SubscriberID, challenge); err != nil {
		http.Error(w, "could not save challenge", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateStatus(req.Context(), sub.SubscriberID, StatusUnderVerification); err != nil {
		http.Error(w, "could not update status", http.StatusInternalServerError)
		return
	}

	s.log.Info("subscriber initiated", "subscriberID", sub.SubscriberID, "type", sub.Role, "domain", sub.Domain)

	json.NewEncoder(w).Encode(&SubscribeResponse{
		SubscriberID: sub.SubscriberID,
		Challenge:    challenge,
		Status:       StatusUnderVerification,
	})
}

// handleChallengeAnswer verifies the signed challenge and activates the record.
func (s *Service) handleChallengeAnswer(w http.ResponseWriter, req *http.Request) {
	var answer ChallengeAnswer
	if err := json.NewDecoder(req.Body).Decode(&answer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := s.store.Get(req.Context(), answer.SubscriberID)
	if err != nil {
		http.Error(w, "unknown subscriber", http.StatusNotFound)
		return
	}
	if sub.Status != StatusUnderVerification {
		http.Error(w, fmt.Sprintf("subscriber is %s, not under verification", sub.Status), http.StatusForbidden)
		return
	}

	challenge, err := s.store.Challenge(req.Context(), answer.SubscriberID)
	if err != nil || challenge == "" {
		http.Error(w, "no pending challenge", http.StatusForbidden)
		return
	}

	pubKey, err := crypto.NewPublicKeyFromString(sub.SigningKey)
	if err != nil {
		http.Error(w, "stored key is invalid", http.StatusInternalServerError)
		return
	}
	signature, err := base64.StdEncoding.DecodeString(answer.Signature)
	if err != nil {
		http.Error(w, "invalid signature encoding", http.StatusBadRequest)
		return
	}
	if !crypto.Verify(pubKey, []byte(challenge), signature) {
		http.Error(w, "challenge signature verification failed", http.StatusForbidden)
		return
	}

	if err := s.store.UpdateStatus(req.Context(), answer.SubscriberID, StatusActive); err != nil {
		http.Error(w, "could not activate subscriber", http.StatusInternalServerError)
		return
	}

	s.log.Info("subscriber activated", "subscriberID", answer.SubscriberID)

	json.NewEncoder(w).Encode(map[string]any{"subscriber_id": answer.SubscriberID, "status": StatusActive})
}

// handleLookup resolves a single subscriber or a (domain, city, type) set.
// REVOKED records are never returned.
func (s *Service) handleLookup(w http.ResponseWriter, req *http.Request) {
	var lookup LookupRequest
	if err := json.NewDecoder(req.Body).Decode(&lookup); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if lookup.SubscriberID != "" {
		sub, err := s.store.Get(req.Context(), lookup.SubscriberID)
		if err != nil || sub.Status == StatusRevoked {
			json.NewEncoder(w).Encode([]*Subscriber{})
			return
		}
		json.NewEncoder(w).Encode([]*Subscriber{sub})
		return
	}

	if lookup.Domain == "" || !lookup.Role.Valid() {
		http.Error(w, "either subscriber_id or domain and type are required", http.StatusBadRequest)
		return
	}

	subs, err := s.store.Find(req.Context(), lookup.Domain, lookup.City, lookup.Role)
	if err != nil {
		s.log.Error("lookup failed", "domain", lookup.Domain, "city", lookup.City, "err", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	filtered := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.Status != StatusRevoked {
			filtered = append(filtered, sub)
		}
	}
	json.NewEncoder(w).Encode(filtered)
}

// handleStatusUpdate suspends or revokes a subscriber.
func (s *Service) handleStatusUpdate(w http.ResponseWriter, req *http.Request) {
	subscriberID := chi.URLParam(req, "subscriber_id")

	var update StatusUpdate
	if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !update.Status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	sub, err := s.store.Get(req.Context(), subscriberID)
	if err != nil {
		http.Error(w, "unknown subscriber", http.StatusNotFound)
		return
	}
	if !sub.Status.CanTransition(update.Status) {
		http.Error(w, fmt.Sprintf("cannot transition %s -> %s", sub.Status, update.Status), http.StatusConflict)
		return
	}

	if err := s.store.UpdateStatus(req.Context(), subscriberID, update.Status); err != nil {
		http.Error(w, "could not update status", http.StatusInternalServerError)
		return
	}

	s.log.Info("subscriber status updated", "subscriberID", subscriberID, "status", update.Status)
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func newChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
