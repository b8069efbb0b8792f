package auth

import (
	"crypto/sha1" //nolint:gosec // proof format is fixed by existing clients
	"crypto/subtle"
	"encoding/hex"
)

// Operation contexts. Every proof is computed over secret + context + rice, so a
// proof captured for one operation does not verify for another.
const (
	ContextRenewClient      = ":renew_client:"
	ContextUnregisterClient = ":unregister_client:"
	ContextCreateRoom       = ":create_room:"
	ContextJoinRoom         = ":join_room:"
	ContextSocketJoin       = ":socket_join:"
)

// Scope binds a caller-chosen rice to an operation context.
func Scope(context, rice string) string {
	return context + rice
}

// Proof returns the lowercase hex SHA-1 digest of secret+nonce.
func Proof(secret, nonce string) string {
	sum := sha1.Sum([]byte(secret + nonce)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// HashMatches reports whether proof is the digest of secret+nonce.
func HashMatches(secret, proof, nonce string) bool {
	expected := Proof(secret, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(proof)) == 1
}
