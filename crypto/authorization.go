package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// SigningAlgorithm is the only signature algorithm the network accepts.
const SigningAlgorithm = "ed25519"

// DefaultSignatureTTL is the conventional validity window for a signature.
const DefaultSignatureTTL = 30 * time.Second

// Digest computes the BLAKE-512 digest of the exact message bytes, in the form
// embedded in the signing string. The bytes must be the bytes that go on the
// wire: re-serializing the JSON produces a different digest.
func Digest(body []byte) string {
	sum := blake2b.Sum512(body)
	return "BLAKE-512=" + base64.StdEncoding.EncodeToString(sum[:])
}

// SigningString builds the string that is actually signed: the (created),
// (expires) and digest pseudo-headers, each on its own line, LF-joined, no
// trailing newline. Both sides must reconstruct it byte-identically.
func SigningString(created, expires int64, body []byte) string {
	return fmt.Sprintf("(created): %d\n(expires): %d\ndigest: %s", created, expires, Digest(body))
}

// Authorization is a parsed Signature header.
type Authorization struct {
	SubscriberID string
	UniqueKeyID  string
	Algorithm    string
	Created      int64
	Expires      int64
	Signature    []byte
}

// KeyID returns the composite keyId field: subscriber_id|unique_key_id|algorithm.
func (a *Authorization) KeyID() string {
	return a.SubscriberID + "|" + a.UniqueKeyID + "|" + a.Algorithm
}

// SignRequest produces the full Authorization header value for the exact body
// bytes. Pure function: identical inputs yield an identical signing string
// (the ed25519 signature itself is deterministic too).
func SignRequest(body []byte, subscriberID, uniqueKeyID string, key PrivateKey, created, expires int64) (string, error) {
	if expires <= created {
		return "", errors.New("expires must be after created")
	}

	signature, err := Sign(key, []byte(SigningString(created, expires, body)))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		`Signature keyId="%s|%s|%s",algorithm="%s",created="%d",expires="%d",headers="(created) (expires) digest",signature="%s"`,
		subscriberID, uniqueKeyID, SigningAlgorithm, SigningAlgorithm,
		created, expires, base64.StdEncoding.EncodeToString(signature),
	), nil
}

// SignRequestNow signs with the conventional validity window starting now.
func SignRequestNow(body []byte, subscriberID, uniqueKeyID string, key PrivateKey) (string, error) {
	created := time.Now().Unix()
	return SignRequest(body, subscriberID, uniqueKeyID, key, created, created+int64(DefaultSignatureTTL.Seconds()))
}

var authParamRe = regexp.MustCompile(`([a-zA-Z]+)="([^"]*)"`)

// ParseAuthorization parses a Signature header value into its parts.
// It rejects malformed headers, unknown algorithms and a keyId that does not
// have the subscriber_id|unique_key_id|algorithm shape.
func ParseAuthorization(header string) (*Authorization, error) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Signature ") {
		return nil, errors.New("authorization header is not a Signature")
	}

	params := map[string]string{}
	for _, m := range authParamRe.FindAllStringSubmatch(header, -1) {
		params[m[1]] = m[2]
	}

	keyID := params["keyId"]
	parts := strings.Split(keyID, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed keyId %q", keyID)
	}
	if parts[2] != SigningAlgorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", parts[2])
	}

	created, err := strconv.ParseInt(params["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created: %w", err)
	}
	expires, err := strconv.ParseInt(params["expires"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires: %w", err)
	}

	signature, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(signature) == 0 {
		return nil, errors.New("empty signature")
	}

	return &Authorization{
		SubscriberID: parts[0],
		UniqueKeyID:  parts[1],
		Algorithm:    parts[2],
		Created:      created,
		Expires:      expires,
		Signature:    signature,
	}, nil
}

// ErrSignatureWindow is returned when now falls outside [created, expires].
// This is a hard failure, never a retry.
var ErrSignatureWindow = errors.New("signature outside validity window")

// ErrSignatureMismatch is returned when the signature does not verify against
// the resolved public key over the received bytes.
var ErrSignatureMismatch = errors.New("signature verification failed")

// VerifyRequest checks a parsed Authorization against the exact received body
// bytes: validity window first, then digest recomputation and ed25519
// verification with the resolved public key.
func VerifyRequest(auth *Authorization, body []byte, publicKey PublicKey, now time.Time) error {
	ts := now.Unix()
	if ts < auth.Created || ts > auth.Expires {
		return ErrSignatureWindow
	}
	if !Verify(publicKey, []byte(SigningString(auth.Created, auth.Expires, body)), auth.Signature) {
		return ErrSignatureMismatch
	}
	return nil
}
