package wallet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIterations = 1000

func TestEncryptDecrypt(t *testing.T) {
	plaintext := []byte(`{"mnemonic":["super","secret"]}`)
	pin := "123456"

	envelope, key, err := Encrypt(EncryptOpts{
		PlainText:  plaintext,
		Pin:        pin,
		Iterations: testIterations,
	})
	require.NoError(t, err)
	defer key.Wipe()

	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.Equal(t, testIterations, envelope.Iterations)
	assert.Len(t, envelope.Salt, SaltSize)
	assert.Len(t, envelope.IV, IVSize)
	assert.Len(t, envelope.AuthTag, TagSize)
	assert.NotContains(t, string(envelope.Ciphertext), "secret")

	revealed, rkey, err := Decrypt(DecryptOpts{Envelope: envelope, Pin: pin})
	require.NoError(t, err)
	defer rkey.Wipe()
	assert.Equal(t, plaintext, revealed)
	assert.Equal(t, key.Key, rkey.Key)

	// JSON round trip keeps the envelope openable.
	buf, err := json.Marshal(envelope)
	require.NoError(t, err)
	decoded := &Envelope{}
	require.NoError(t, json.Unmarshal(buf, decoded))
	revealed, err = Open(key, decoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, revealed)
}

func TestSealUsesFreshIV(t *testing.T) {
	key, err := DeriveKey([]byte("123456"), nil, testIterations)
	require.NoError(t, err)

	first, err := Seal(key, []byte("state"))
	require.NoError(t, err)
	second, err := Seal(key, []byte("state"))
	require.NoError(t, err)

	assert.Equal(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestSealVersion(t *testing.T) {
	key, err := DeriveKey([]byte("123456"), nil, testIterations)
	require.NoError(t, err)

	envelope, err := SealVersion(key, []byte("legacy"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.Version)

	plaintext, err := Open(key, envelope)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), plaintext)

	_, err = SealVersion(key, []byte("legacy"), 0)
	assert.Equal(t, ErrMalformedEnvelope, err)
}

func TestDecryptWrongPin(t *testing.T) {
	envelope, key, err := Encrypt(EncryptOpts{
		PlainText:  []byte("state"),
		Pin:        "123456",
		Iterations: testIterations,
	})
	require.NoError(t, err)
	key.Wipe()

	for _, pin := range []string{"654321", "1234567", "12345", "x"} {
		plaintext, k, err := Decrypt(DecryptOpts{Envelope: envelope, Pin: pin})
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Nil(t, plaintext)
		assert.Nil(t, k)
	}
}

func TestDecryptTamperedEnvelope(t *testing.T) {
	key, err := DeriveKey([]byte("123456"), nil, testIterations)
	require.NoError(t, err)
	envelope, err := Seal(key, []byte("state"))
	require.NoError(t, err)

	tests := []func(e Envelope) *Envelope{
		func(e Envelope) *Envelope {
			e.Ciphertext = append([]byte{e.Ciphertext[0] ^ 0xff}, e.Ciphertext[1:]...)
			return &e
		},
		func(e Envelope) *Envelope {
			e.AuthTag = append([]byte{e.AuthTag[0] ^ 0xff}, e.AuthTag[1:]...)
			return &e
		},
		func(e Envelope) *Envelope {
			e.Version = EnvelopeVersion + 1
			return &e
		},
	}
	for _, tamper := range tests {
		plaintext, err := Open(key, tamper(*envelope))
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Nil(t, plaintext)
	}
}

func TestFailingEncrypt(t *testing.T) {
	tests := []struct {
		opts EncryptOpts
		err  error
	}{
		{
			opts: EncryptOpts{
				PlainText: nil,
				Pin:       "123456",
			},
			err: ErrNullPlainText,
		},
		{
			opts: EncryptOpts{
				PlainText: []byte("state"),
				Pin:       "",
			},
			err: ErrNullPin,
		},
	}
	for _, tt := range tests {
		_, _, err := Encrypt(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestFailingDecrypt(t *testing.T) {
	tests := []struct {
		opts DecryptOpts
		err  error
	}{
		{
			opts: DecryptOpts{Pin: "123456"},
			err:  ErrNullEnvelope,
		},
		{
			opts: DecryptOpts{Envelope: &Envelope{Version: 1}, Pin: "123456"},
			err:  ErrMalformedEnvelope,
		},
	}
	for _, tt := range tests {
		_, _, err := Decrypt(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestSealingKeyBytes(t *testing.T) {
	key, err := DeriveKey([]byte("123456"), nil, testIterations)
	require.NoError(t, err)

	restored, err := SealingKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	assert.Equal(t, key, restored)

	_, err = SealingKeyFromBytes([]byte{1, 2, 3})
	assert.Equal(t, ErrInvalidKeyLength, err)
}
