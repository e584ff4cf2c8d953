// Package fieldcrypt provides deterministic field-level encryption:
// identical plaintext always produces identical ciphertext, so an encrypted
// column remains usable as an exact-match lookup key. The trade-off is
// pattern visibility (equal values are visibly equal at rest) and the
// absence of authentication: decrypting with the wrong key returns garbage
// bytes, not an error.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrKeyRequired indicates construction without key material.
	ErrKeyRequired = errors.New("fieldcrypt: key is required")

	// ErrMalformedCiphertext indicates a stored value too short to carry
	// the IV prefix, or invalid base64.
	ErrMalformedCiphertext = errors.New("fieldcrypt: malformed ciphertext")
)

// Cipher encrypts single text values with AES-256-CTR. The IV is
// HMAC-SHA256(key, plaintext) truncated to the block size, which is what
// makes the scheme deterministic: the IV is a pure function of key and
// plaintext, never random. The IV cannot be recomputed at decrypt time
// (there is no plaintext yet), so it is stored as a prefix of the
// ciphertext and the whole iv||ct blob is base64-encoded.
type Cipher struct {
	key   []byte
	block cipher.Block
}

// NewCipher builds a cipher from a 32-byte key, normally the output of
// DeriveKey.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrKeyRequired
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("fieldcrypt: key must be %d bytes, got %d", keyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	return &Cipher{key: key, block: block}, nil
}

// Encrypt returns the stored form of plaintext: base64(iv || AES-CTR(pt)).
// Encrypting the same plaintext twice yields byte-identical output.
func (c *Cipher) Encrypt(plaintext string) string {
	iv := c.deriveIV([]byte(plaintext))
	out := make([]byte, aes.BlockSize+len(plaintext))
	copy(out, iv)
	stream := cipher.NewCTR(c.block, iv)
	stream.XORKeyStream(out[aes.BlockSize:], []byte(plaintext))
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. A wrong key does not fail here; it produces
// unrelated bytes. Callers needing integrity must layer it separately.
func (c *Cipher) Decrypt(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < aes.BlockSize {
		return "", ErrMalformedCiphertext
	}
	iv, ct := raw[:aes.BlockSize], raw[aes.BlockSize:]
	pt := make([]byte, len(ct))
	stream := cipher.NewCTR(c.block, iv)
	stream.XORKeyStream(pt, ct)
	return string(pt), nil
}

func (c *Cipher) deriveIV(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(plaintext)
	return mac.Sum(nil)[:aes.BlockSize]
}
