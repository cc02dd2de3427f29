// Package commitment derives the hashes that bind a ticket to its owner and
// content without revealing the owner's public key.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SaltSize is the number of random bytes in a salt.
const SaltSize = 32

// Hash returns the lowercase hex SHA-256 digest of input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// RandomSalt returns 32 bytes from the system CSPRNG, hex encoded.
func RandomSalt() (string, error) {
	buf := make([]byte, SaltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// OwnerCommitment is hash(pubKey || salt).
func OwnerCommitment(pubKey, salt string) string {
	return Hash(pubKey + salt)
}

// CommitmentHash is hash(ticketID || ownerCommitment || salt).
func CommitmentHash(ticketID, ownerCommitment, salt string) string {
	return Hash(ticketID + ownerCommitment + salt)
}

// MetadataHash hashes the canonical JSON form of metadata. encoding/json
// writes map keys in sorted order at every nesting level, so two parties
// holding the same metadata always compute the same hash.
func MetadataHash(metadata map[string]any) (string, error) {
	canonical, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to serialize metadata: %w", err)
	}
	return Hash(string(canonical)), nil
}

// VerifyCommitment reports whether commitment was derived from pubKey and salt.
func VerifyCommitment(pubKey, salt, commitment string) bool {
	return OwnerCommitment(pubKey, salt) == commitment
}
