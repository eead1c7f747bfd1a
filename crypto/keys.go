package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// PublicKey is an ed25519 verification key. Subscribers publish it through the
// registry and counterparts use it to verify message signatures.
type PublicKey []byte

// NewPublicKeyFromBytes creates a PublicKey from a byte slice.
// The input is copied to ensure immutability.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// NewPublicKeyFromString creates a PublicKey from its base64 encoding, the
// form keys take in registry records.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	rawBytes, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return PublicKey{}, err
	}
	return NewPublicKeyFromBytes(rawBytes), nil
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// String returns the base64 encoding of the public key.
func (pk PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(pk)
}

// PrivateKey is an ed25519 signing key. It never leaves the node that owns it.
type PrivateKey []byte

// NewPrivateKeyFromBytes creates a PrivateKey from a byte slice.
// The input is copied to ensure immutability.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// NewPrivateKeyFromString creates a PrivateKey from its base64 encoding.
func NewPrivateKeyFromString(data string) (PrivateKey, error) {
	rawBytes, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return PrivateKey{}, err
	}
	return NewPrivateKeyFromBytes(rawBytes), nil
}

// Bytes returns the private key as a byte slice. Handle with care: this
// exposes sensitive key material.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// String returns the base64 encoding of the private key.
func (sk PrivateKey) String() string {
	return base64.StdEncoding.EncodeToString(sk)
}

// PublicKey derives the verification key corresponding to this signing key.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) < ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair generates a new ed25519 key pair for signing and verification.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(publicKey), PrivateKey(privateKey), nil
}

// Sign signs data with the given private key using ed25519.
func Sign(privateKey PrivateKey, data []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), data), nil
}

// Verify checks an ed25519 signature over data with the given public key.
func Verify(publicKey PublicKey, data, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature)
}
