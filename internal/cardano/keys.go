package cardano

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// PolicyID derives a minting policy id from its script: the hex blake2b-224
// digest, as Cardano derives script hashes.
func PolicyID(script []byte) string {
	return hash224(script)
}

// KeyHash is the hex blake2b-224 digest of a verification key.
func KeyHash(pub ed25519.PublicKey) string {
	return hash224(pub)
}

func hash224(b []byte) string {
	h, _ := blake2b.New(28, nil)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

func hash256(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// OrganizerKey signs lifecycle authorizations on behalf of the event
// organizer.
type OrganizerKey struct {
	private ed25519.PrivateKey
}

// NewOrganizerKey loads a key from a hex-encoded 32-byte seed. An empty seed
// generates a fresh key, which only makes sense for mock deployments.
func NewOrganizerKey(seedHex string) (*OrganizerKey, error) {
	if seedHex == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate organizer key: %w", err)
		}
		return &OrganizerKey{private: priv}, nil
	}

	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("organizer seed is not hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("organizer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &OrganizerKey{private: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *OrganizerKey) PublicKey() ed25519.PublicKey {
	return k.private.Public().(ed25519.PublicKey)
}

func (k *OrganizerKey) PubKeyHash() string {
	return KeyHash(k.PublicKey())
}

// Sign returns the hex ed25519 signature over message.
func (k *OrganizerKey) Sign(message string) string {
	return hex.EncodeToString(ed25519.Sign(k.private, []byte(message)))
}

func (k *OrganizerKey) signBytes(b []byte) []byte {
	return ed25519.Sign(k.private, b)
}

// KeyRing resolves organizer key hashes to verification keys.
type KeyRing map[string]ed25519.PublicKey

func (r KeyRing) Add(pub ed25519.PublicKey) string {
	hash := KeyHash(pub)
	r[hash] = pub
	return hash
}

// Verify checks a hex signature over message against the key registered
// under pubKeyHash.
func (r KeyRing) Verify(sigHex, message, pubKeyHash string) bool {
	if sigHex == "" || message == "" || pubKeyHash == "" {
		return false
	}
	pub, ok := r[pubKeyHash]
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}
