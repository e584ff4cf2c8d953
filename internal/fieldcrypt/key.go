package fieldcrypt

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the PBKDF2 work factor. Derivation happens once at
	// process start, so the cost is paid at boot rather than per request.
	kdfIterations = 100_000

	keyLength = 32
)

// DefaultSalt is the deployment-wide KDF salt. It is not secret; it only has
// to stay fixed so that repeated derivations of the same secret produce the
// same key, otherwise previously written ciphertext stops matching on lookup.
var DefaultSalt = []byte("static_salt_for_auth_system")

// DeriveKey stretches an arbitrary-length secret into a 32-byte AES key
// using PBKDF2-HMAC-SHA256.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, kdfIterations, keyLength, sha256.New)
}
