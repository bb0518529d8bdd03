package workload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer signs transaction and batch headers. Implementations are shared by all
// workers and must be safe for concurrent use.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() []byte
}

// Secp256k1Signer signs the SHA-256 digest of a message and returns the 64-byte
// compact r||s form. Signatures are deterministic (RFC 6979).
type Secp256k1Signer struct {
	key *secp256k1.PrivateKey
}

// NewSecp256k1Signer wraps a private key.
func NewSecp256k1Signer(key *secp256k1.PrivateKey) *Secp256k1Signer {
	return &Secp256k1Signer{key: key}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Secp256k1Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewSecp256k1Signer(key), nil
}

// SignerFromHex builds a signer from a hex-encoded 32-byte private key.
func SignerFromHex(s string) (*Secp256k1Signer, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(raw))
	}
	return NewSecp256k1Signer(secp256k1.PrivKeyFromBytes(raw)), nil
}

// LoadSigner reads a hex private key file. An empty path generates a new key.
func LoadSigner(path string) (*Secp256k1Signer, error) {
	if strings.TrimSpace(path) == "" {
		return GenerateSigner()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return SignerFromHex(string(data))
}

func (s *Secp256k1Signer) Sign(message []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("signer has no key")
	}
	digest := sha256.Sum256(message)
	compact := ecdsa.SignCompact(s.key, digest[:], true)
	// Drop the recovery code byte.
	return compact[1:], nil
}

func (s *Secp256k1Signer) PublicKey() []byte {
	if s == nil || s.key == nil {
		return nil
	}
	return s.key.PubKey().SerializeCompressed()
}

// PrivateKeyHex returns the key in the format LoadSigner reads.
func (s *Secp256k1Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.key.Serialize())
}

// Verify checks a signature produced by Sign.
func Verify(publicKey, message, signature []byte) bool {
	if len(signature) != 64 {
		return false
	}
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return false
	}
	if overflow := sc.SetByteSlice(signature[32:]); overflow {
		return false
	}
	digest := sha256.Sum256(message)
	return ecdsa.NewSignature(&r, &sc).Verify(digest[:], pub)
}
