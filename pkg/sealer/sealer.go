package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidToken = errors.New("invalid pickup token")
	ErrEmptyKey     = errors.New("sealer key cannot be empty")
)

// additional data binds tokens to this purpose so ciphertexts cannot be reused elsewhere
var aad = []byte("racereg/pickup/v1")

// PickupClaim is what a race-pack pickup token carries.
type PickupClaim struct {
	ParticipantID string
	Category      string
	Bib           string
}

// Sealer produces opaque AES-GCM tokens. It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New derives the AES-256 key from secret with SHA-256.
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(claim PickupClaim) (string, error) {
	for _, part := range []string{claim.ParticipantID, claim.Category, claim.Bib} {
		if part == "" || strings.Contains(part, ":") {
			return "", fmt.Errorf("%w: claim fields must be non-empty and colon free", ErrInvalidToken)
		}
	}
	plaintext := []byte(claim.ParticipantID + ":" + claim.Category + ":" + claim.Bib)

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := s.aead.Seal(nonce, nonce, plaintext, aad)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

func (s *Sealer) Open(token string) (PickupClaim, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return PickupClaim{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return PickupClaim{}, fmt.Errorf("%w: too short", ErrInvalidToken)
	}

	pt, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], aad)
	if err != nil {
		return PickupClaim{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	parts := strings.SplitN(string(pt), ":", 3)
	if len(parts) != 3 {
		return PickupClaim{}, fmt.Errorf("%w: malformed payload", ErrInvalidToken)
	}

	return PickupClaim{ParticipantID: parts[0], Category: parts[1], Bib: parts[2]}, nil
}
