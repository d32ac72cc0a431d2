package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EnvelopeVersion is the version written by Seal.
	EnvelopeVersion = 2
	// DefaultIterations is the PBKDF2 iteration count for new envelopes.
	DefaultIterations = 600000

	SaltSize = 16
	KeySize  = 32
	IVSize   = 12
	TagSize  = 16
)

// Envelope is the persisted, encrypted form of a wallet state.
// Byte fields are base64 encoded in JSON.
type Envelope struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Iterations int    `json:"iterations"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"authTag"`
}

func (e *Envelope) validate() error {
	if e == nil {
		return ErrNullEnvelope
	}
	if e.Version <= 0 || e.Iterations <= 0 {
		return ErrMalformedEnvelope
	}
	if len(e.Salt) != SaltSize || len(e.IV) != IVSize || len(e.AuthTag) != TagSize {
		return ErrMalformedEnvelope
	}
	if len(e.Ciphertext) <= 0 {
		return ErrMalformedEnvelope
	}
	return nil
}

// SealingKey is a PIN-derived AES-256 key together with the KDF parameters
// that produced it. It lets a state be re-sealed without running the KDF
// again. Wipe must be called once the key is no longer needed.
type SealingKey struct {
	Key        []byte
	Salt       []byte
	Iterations int
}

// Wipe zeroes the key bytes.
func (k *SealingKey) Wipe() {
	if k == nil {
		return
	}
	zero(k.Key)
}

// Bytes returns the raw key concatenated with the salt and the iteration
// count, the inverse of SealingKeyFromBytes.
func (k *SealingKey) Bytes() []byte {
	buf := make([]byte, 0, KeySize+SaltSize+4)
	buf = append(buf, k.Key...)
	buf = append(buf, k.Salt...)
	buf = append(buf,
		byte(k.Iterations>>24), byte(k.Iterations>>16),
		byte(k.Iterations>>8), byte(k.Iterations),
	)
	return buf
}

// SealingKeyFromBytes restores a key serialized with Bytes. The returned key
// owns a copy of the key material.
func SealingKeyFromBytes(b []byte) (*SealingKey, error) {
	if len(b) != KeySize+SaltSize+4 {
		return nil, ErrInvalidKeyLength
	}
	it := b[KeySize+SaltSize:]
	return &SealingKey{
		Key:  append([]byte{}, b[:KeySize]...),
		Salt: append([]byte{}, b[KeySize:KeySize+SaltSize]...),
		Iterations: int(it[0])<<24 | int(it[1])<<16 |
			int(it[2])<<8 | int(it[3]),
	}, nil
}

// DeriveKey derives a 32 byte key from the given pin with PBKDF2-HMAC-SHA256.
// A random salt is generated when salt is nil.
func DeriveKey(pin []byte, salt []byte, iterations int) (*SealingKey, error) {
	if len(pin) <= 0 {
		return nil, ErrNullPin
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	}
	if len(salt) != SaltSize {
		return nil, ErrMalformedEnvelope
	}

	key := pbkdf2.Key(pin, salt, iterations, KeySize, sha256.New)
	return &SealingKey{
		Key:        key,
		Salt:       append([]byte{}, salt...),
		Iterations: iterations,
	}, nil
}

// Seal encrypts the plaintext with AES-256-GCM under the given key, with a
// fresh random IV. The envelope version is bound as associated data.
func Seal(key *SealingKey, plaintext []byte) (*Envelope, error) {
	return SealVersion(key, plaintext, EnvelopeVersion)
}

// SealVersion is like Seal but tags the envelope with the given version.
func SealVersion(key *SealingKey, plaintext []byte, version int) (*Envelope, error) {
	if version <= 0 {
		return nil, ErrMalformedEnvelope
	}
	if len(plaintext) <= 0 {
		return nil, ErrNullPlainText
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, additionalData(version))
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return &Envelope{
		Version:    version,
		Salt:       append([]byte{}, key.Salt...),
		IV:         iv,
		Iterations: key.Iterations,
		Ciphertext: ciphertext,
		AuthTag:    append([]byte{}, tag...),
	}, nil
}

// Open authenticates and decrypts the envelope with the given key. Any
// failure is reported as ErrDecryptionFailed and no plaintext is returned.
func Open(key *SealingKey, envelope *Envelope) ([]byte, error) {
	if err := envelope.validate(); err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+TagSize)
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.AuthTag...)

	plaintext, err := gcm.Open(nil, envelope.IV, sealed, additionalData(envelope.Version))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText  []byte
	Pin        string
	Iterations int
}

func (o EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Pin) <= 0 {
		return ErrNullPin
	}
	return nil
}

// Encrypt derives a fresh key from the pin with a random salt and seals the
// plaintext. The derived key is returned so that the caller can reseal later
// without re-running the KDF.
func Encrypt(opts EncryptOpts) (*Envelope, *SealingKey, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}

	pin := []byte(opts.Pin)
	defer zero(pin)

	key, err := DeriveKey(pin, nil, opts.Iterations)
	if err != nil {
		return nil, nil, err
	}
	envelope, err := Seal(key, opts.PlainText)
	if err != nil {
		key.Wipe()
		return nil, nil, err
	}
	return envelope, key, nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	Envelope *Envelope
	Pin      string
}

func (o DecryptOpts) validate() error {
	if err := o.Envelope.validate(); err != nil {
		return err
	}
	if len(o.Pin) <= 0 {
		return ErrNullPin
	}
	return nil
}

// Decrypt derives the key from the pin with the salt and iteration count
// recorded in the envelope and opens it.
func Decrypt(opts DecryptOpts) ([]byte, *SealingKey, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}

	pin := []byte(opts.Pin)
	defer zero(pin)

	key, err := DeriveKey(pin, opts.Envelope.Salt, opts.Envelope.Iterations)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := Open(key, opts.Envelope)
	if err != nil {
		key.Wipe()
		return nil, nil, err
	}
	return plaintext, key, nil
}

func newGCM(key *SealingKey) (cipher.AEAD, error) {
	if key == nil || len(key.Key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

func additionalData(version int) []byte {
	return []byte(fmt.Sprintf("vaultgate-envelope-v%d", version))
}
