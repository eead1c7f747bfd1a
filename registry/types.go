// Package registry implements the network registry node: the directory of
// subscribers that every other node resolves public keys and endpoints from.
package registry

import "fmt"

// Role identifies what part a subscriber plays in the network.
type Role string

const (
	RoleBAP Role = "bap"
	RoleBPP Role = "bpp"
	RoleBG  Role = "bg"
)

// Valid returns true if the role is recognized.
func (r Role) Valid() bool {
	switch r {
	case RoleBAP, RoleBPP, RoleBG:
		return true
	}
	return false
}

// Status is a subscriber's lifecycle state.
type Status string

const (
	StatusInitiated         Status = "INITIATED"
	StatusUnderVerification Status = "UNDER_VERIFICATION"
	StatusActive            Status = "ACTIVE"
	StatusSuspended         Status = "SUSPENDED"
	StatusRevoked           Status = "REVOKED"
)

// Valid returns true if the status is recognized.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusUnderVerification, StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from s to next.
// SUSPENDED and REVOKED are absorbing: nothing transitions out of them.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusInitiated:
		return next == StatusUnderVerification || next == StatusSuspended || next == StatusRevoked
	case StatusUnderVerification:
		return next == StatusActive || next == StatusSuspended || next == StatusRevoked
	case StatusActive:
		return next == StatusSuspended || next == StatusRevoked
	}
	return false
}

// Subscriber is a participant's public record: who it is, where to call it
// back, and which key verifies its signatures.
type Subscriber struct {
	SubscriberID  string `json:"subscriber_id"`
	SubscriberURL string `json:"subscriber_url"`
	Role          Role   `json:"type"`
	Domain        string `json:"domain"`
	City          string `json:"city"`
	Country       string `json:"country,omitempty"`
	SigningKey    string `json:"signing_public_key"`
	UniqueKeyID   string `json:"ukid"`
	Status        Status `json:"status"`
}

// Validate checks the fields a subscribe request must carry.
func (s *Subscriber) Validate() error {
	switch {
	case s.SubscriberID == "":
		return fmt.Errorf("subscriber_id is required")
	case s.SubscriberURL == "":
		return fmt.Errorf("subscriber_url is required")
	case !s.Role.Valid():
		return fmt.Errorf("unknown subscriber type %q", s.Role)
	case s.Domain == "":
		return fmt.Errorf("domain is required")
	case s.SigningKey == "":
		return fmt.Errorf("signing_public_key is required")
	case s.UniqueKeyID == "":
		return fmt.Errorf("ukid is required")
	}
	return nil
}

// Eligible reports whether the record may be returned to verifiers and
// discovery: ACTIVE with both a callback URL and a signing key.
func (s *Subscriber) Eligible() bool {
	return s.Status == StatusActive && s.SubscriberURL != "" && s.SigningKey != ""
}

// LookupRequest resolves either a single subscriber by id, or the set matching
// a (domain, city, type) triple.
type LookupRequest struct {
	SubscriberID string `json:"subscriber_id,omitempty"`
	Domain       string `json:"domain,omitempty"`
	City         string `json:"city,omitempty"`
	Role         Role   `json:"type,omitempty"`
}

// SubscribeResponse answers a subscribe request with the verification
// challenge the subscriber must sign back.
type SubscribeResponse struct {
	SubscriberID string `json:"subscriber_id"`
	Challenge    string `json:"challenge"`
	Status       Status `json:"status"`
}

// ChallengeAnswer carries the signed challenge back to the registry.
type ChallengeAnswer struct {
	SubscriberID string `json:"subscriber_id"`
	// Signature is the base64 ed25519 signature over the challenge string.
	Signature string `json:"signature"`
}

// StatusUpdate is the admin request to suspend or revoke a subscriber.
type StatusUpdate struct {
	Status Status `json:"status"`
}
