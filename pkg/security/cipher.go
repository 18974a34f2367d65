package security

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// BalanceCipher seals card balances into opaque blobs for storage. The
// plaintext balance only ever exists in memory inside a debit/credit critical
// section; everything at rest goes through Seal.
type BalanceCipher struct {
	key []byte
}

var (
	// ErrInvalidKey is returned when the key is not the AEAD key size.
	ErrInvalidKey = errors.New("security: cipher key must be 32 bytes")
	// ErrCorruptCiphertext is returned when a blob fails to authenticate.
	ErrCorruptCiphertext = errors.New("security: balance blob failed authentication")
)

const plaintextLen = 8 // int64 cents, big endian

// NewBalanceCipher builds a cipher around a 32-byte key.
func NewBalanceCipher(key []byte) (*BalanceCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	return &BalanceCipher{key: owned}, nil
}

// Seal encrypts a balance with a fresh random nonce, binding the blob to the
// card uid as additional data. A blob copied onto another card's row fails
// authentication on Open. Two Seal calls on the same balance produce
// different blobs.
func (c *BalanceCipher) Seal(cents int64, cardUID string) ([]byte, error) {
	if cents < 0 {
		return nil, fmt.Errorf("security: refusing to seal negative balance %d", cents)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: init aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("security: nonce: %w", err)
	}

	plaintext := make([]byte, plaintextLen)
	binary.BigEndian.PutUint64(plaintext, uint64(cents))

	return aead.Seal(nonce, nonce, plaintext, balanceAAD(cardUID)), nil
}

// Open decrypts a sealed balance blob for the given card uid.
func (c *BalanceCipher) Open(blob []byte, cardUID string) (int64, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return 0, fmt.Errorf("security: init aead: %w", err)
	}
	if len(blob) < aead.NonceSize()+plaintextLen {
		return 0, ErrCorruptCiphertext
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, balanceAAD(cardUID))
	if err != nil {
		return 0, ErrCorruptCiphertext
	}
	if len(plaintext) != plaintextLen {
		return 0, ErrCorruptCiphertext
	}

	cents := int64(binary.BigEndian.Uint64(plaintext))
	if cents < 0 {
		return 0, ErrCorruptCiphertext
	}
	return cents, nil
}

func balanceAAD(cardUID string) []byte {
	return []byte("card-balance:" + cardUID)
}
