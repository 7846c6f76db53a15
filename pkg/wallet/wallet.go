package wallet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Wallet represents a caller identity with a key pair
type Wallet struct {
	Address    string
	PrivateKey *ecdsa.PrivateKey
}

// New creates a new wallet with a fresh key pair
func New() (*Wallet, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		Address:    Address(&key.PublicKey),
		PrivateKey: key,
	}, nil
}

// Address derives an address from a public key: the last 20 bytes of the
// SHA-256 hash of the uncompressed public key, hex-encoded with 0x prefix
func Address(pub *ecdsa.PublicKey) string {
	pubBytes := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	hash := sha256.Sum256(pubBytes)
	return "0x" + hex.EncodeToString(hash[len(hash)-20:])
}
