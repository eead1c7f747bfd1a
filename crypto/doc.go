// Package crypto implements the network's message signing scheme.
//
// Every signed request carries an Authorization header of the form
//
//	Signature keyId="subscriber_id|unique_key_id|ed25519",algorithm="ed25519",
//	  created="...",expires="...",headers="(created) (expires) digest",
//	  signature="..."
//
// The signature covers a signing string built from the created and expires
// timestamps and the BLAKE-512 digest of the exact request body bytes.
// Because the digest is over raw bytes, intermediaries must forward bodies
// verbatim; any re-serialization invalidates the signature.
//
// # Keys
//
// Subscribers sign with ed25519. Public keys travel through the registry in
// base64; PrivateKey and PublicKey wrap the raw key material with the
// encoding helpers the rest of the system uses.
//
// # Verification
//
// VerifyRequest enforces the validity window before checking the signature.
// A request outside [created, expires] is rejected outright, never retried:
// the window is the replay bound the duplicate guard builds on.
package crypto
