package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// EnvelopeAlgorithm is the only cipher suite snapshot envelopes use.
	EnvelopeAlgorithm = "aes-256-gcm"

	envelopeIVLen   = 16
	envelopeTagLen  = 16
	envelopeSaltLen = 16
	envelopeKeyLen  = 32

	// DefaultKeyIterations is the PBKDF2 work factor when config leaves it
	// unset.
	DefaultKeyIterations = 150000
)

// Envelope is the encrypted-at-rest form of a snapshot payload. Every field
// is lowercase hex; Salt is empty on envelopes written before salted key
// derivation existed.
type Envelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt,omitempty"`
}

// Cipher seals and opens snapshot envelopes with a passphrase-derived
// AES-256 key.
type Cipher struct {
	passphrase string
	iterations int
}

// NewCipher builds a Cipher. iterations <= 0 selects the default work factor.
func NewCipher(passphrase string, iterations int) (*Cipher, error) {
	if passphrase == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "encryption passphrase is required")
	}
	if iterations <= 0 {
		iterations = DefaultKeyIterations
	}
	return &Cipher{passphrase: passphrase, iterations: iterations}, nil
}

// Seal encrypts the payload under a fresh salt and IV.
func (c *Cipher) Seal(plaintext []byte) (Envelope, error) {
	salt := make([]byte, envelopeSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate salt")
	}
	iv := make([]byte, envelopeIVLen)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate iv")
	}

	gcm, err := newGCM(c.deriveKey(salt))
	if err != nil {
		return Envelope{}, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	// GCM appends the auth tag to the ciphertext; the envelope stores the
	// two separately.
	split := len(sealed) - envelopeTagLen
	return Envelope{
		Encrypted: hex.EncodeToString(sealed[:split]),
		IV:        hex.EncodeToString(iv),
		AuthTag:   hex.EncodeToString(sealed[split:]),
		Algorithm: EnvelopeAlgorithm,
		Salt:      hex.EncodeToString(salt),
	}, nil
}

// Open decrypts an envelope. A tag mismatch comes back as an integrity error
// because the caller cannot tell a wrong passphrase from a corrupted file.
func (c *Cipher) Open(env Envelope) ([]byte, error) {
	if env.Algorithm != EnvelopeAlgorithm {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported envelope algorithm %q", env.Algorithm)
	}

	ciphertext, err := decodeHexField("encrypted", env.Encrypted)
	if err != nil {
		return nil, err
	}
	iv, err := decodeHexField("iv", env.IV)
	if err != nil {
		return nil, err
	}
	tag, err := decodeHexField("authTag", env.AuthTag)
	if err != nil {
		return nil, err
	}
	if len(iv) != envelopeIVLen {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "envelope iv must be %d bytes, got %d", envelopeIVLen, len(iv))
	}
	if len(tag) != envelopeTagLen {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "envelope auth tag must be %d bytes, got %d", envelopeTagLen, len(tag))
	}

	var key []byte
	if env.Salt != "" {
		salt, err := decodeHexField("salt", env.Salt)
		if err != nil {
			return nil, err
		}
		key = c.deriveKey(salt)
	} else {
		// Envelopes predating salted derivation used a bare digest of the
		// passphrase.
		key = c.legacyKey()
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "wrong passphrase or corrupted file")
	}
	return plaintext, nil
}

func (c *Cipher) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(c.passphrase), salt, c.iterations, envelopeKeyLen, sha256.New)
}

func (c *Cipher) legacyKey() []byte {
	sum := sha256.Sum256([]byte(c.passphrase))
	return sum[:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "init cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, envelopeIVLen)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "init gcm")
	}
	return gcm, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "envelope field %q is empty", name)
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("envelope field %q is not hex", name))
	}
	return raw, nil
}
