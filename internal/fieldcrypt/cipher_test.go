package fieldcrypt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
)

func testCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := NewCipher(DeriveKey([]byte(secret), DefaultSalt))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestDeriveKeyStable(t *testing.T) {
	k1 := DeriveKey([]byte("secret"), DefaultSalt)
	k2 := DeriveKey([]byte("secret"), DefaultSalt)
	if string(k1) != string(k2) {
		t.Fatal("same secret and salt must derive the same key")
	}
	if len(k1) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k1))
	}
	other := DeriveKey([]byte("secret"), []byte("another_salt"))
	if string(k1) == string(other) {
		t.Fatal("different salt must derive a different key")
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	c := testCipher(t, "correct horse battery staple")
	for _, plaintext := range []string{
		"alice",
		"manage_users",
		"",
		"п-имя", // multibyte survives the UTF-8 byte path
		strings.Repeat("x", 300),
	} {
		stored := c.Encrypt(plaintext)
		got, err := c.Decrypt(stored)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plaintext, err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEncryptDeterministic(t *testing.T) {
	c := testCipher(t, "secret")
	if c.Encrypt("alice") != c.Encrypt("alice") {
		t.Fatal("identical plaintext must encrypt to identical ciphertext")
	}
}

func TestEncryptDistinctness(t *testing.T) {
	c := testCipher(t, "secret")
	seen := make(map[string]string)
	for i := 0; i < 500; i++ {
		plaintext := fmt.Sprintf("user-%d", i)
		stored := c.Encrypt(plaintext)
		if prev, ok := seen[stored]; ok {
			t.Fatalf("ciphertext collision between %q and %q", prev, plaintext)
		}
		seen[stored] = plaintext
	}
}

func TestDecryptWrongKeyYieldsGarbage(t *testing.T) {
	c1 := testCipher(t, "key-one")
	c2 := testCipher(t, "key-two")

	stored := c1.Encrypt("alice")
	got, err := c2.Decrypt(stored)
	// CTR is unauthenticated, so a wrong key decodes to unrelated bytes.
	if err != nil {
		t.Fatalf("Decrypt with wrong key should not error, got %v", err)
	}
	if got == "alice" {
		t.Fatal("wrong key must not recover the plaintext")
	}
}

func TestDecryptMalformed(t *testing.T) {
	c := testCipher(t, "secret")
	if _, err := c.Decrypt("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := c.Decrypt(short); err == nil {
		t.Fatal("expected error for value shorter than the IV prefix")
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher(nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewCipher([]byte("too short")); err == nil {
		t.Fatal("expected error for wrong key length")
	}
}
