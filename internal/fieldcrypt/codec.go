package fieldcrypt

// Codec applies the deterministic cipher to designated entity fields, or
// passes values through untouched when field encryption is disabled for the
// deployment. The enabled flag is fixed at construction: flipping it on a
// populated store does not re-encrypt existing rows, and mixed
// plaintext/ciphertext data requires an out-of-band migration pass.
type Codec struct {
	cipher  *Cipher
	enabled bool
}

// NewCodec builds a codec. When enabled is false the cipher may be nil and
// Encode/Decode are the identity function.
func NewCodec(cipher *Cipher, enabled bool) (*Codec, error) {
	if enabled && cipher == nil {
		return nil, ErrKeyRequired
	}
	return &Codec{cipher: cipher, enabled: enabled}, nil
}

// Disabled returns a passthrough codec.
func Disabled() *Codec {
	return &Codec{}
}

// Enabled reports whether values are actually encrypted at rest.
func (c *Codec) Enabled() bool { return c.enabled }

// Encode returns the stored form of value. Empty values are stored empty so
// that optional columns stay NULL-equivalent.
func (c *Codec) Encode(value string) string {
	if !c.enabled || value == "" {
		return value
	}
	return c.cipher.Encrypt(value)
}

// Decode returns the plaintext form of a stored value. Values that cannot
// be decoded are returned as stored; the original system behaves the same
// way so that a store populated before encryption was enabled stays
// readable.
func (c *Codec) Decode(stored string) string {
	if !c.enabled || stored == "" {
		return stored
	}
	plain, err := c.cipher.Decrypt(stored)
	if err != nil {
		return stored
	}
	return plain
}
