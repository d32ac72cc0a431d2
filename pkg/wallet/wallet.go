package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrDerivationFailed is returned when a key can't be derived from the
	// given seed, typically because the seed is empty or malformed.
	ErrDerivationFailed = errors.New("key derivation failed")
	// ErrSigningFailed is returned when a message or transaction can't be
	// signed with the derived key.
	ErrSigningFailed = errors.New("signing failed")

	// ErrNullSeed ...
	ErrNullSeed = fmt.Errorf("%w: seed must not be null", ErrDerivationFailed)
	// ErrInvalidSeedLength ...
	ErrInvalidSeedLength = fmt.Errorf(
		"%w: seed length must be in range [16, 64] bytes", ErrDerivationFailed,
	)
	// ErrOutOfRangeAccountIndex ...
	ErrOutOfRangeAccountIndex = fmt.Errorf(
		"%w: account index must be in range [0, %d]",
		ErrDerivationFailed, MaxHardenedValue,
	)
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic must not be null")
	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrNullMessage ...
	ErrNullMessage = fmt.Errorf("%w: message must not be null", ErrSigningFailed)
	// ErrNullTransaction ...
	ErrNullTransaction = fmt.Errorf("%w: transaction must not be null", ErrSigningFailed)

	// ErrNullPin ...
	ErrNullPin = errors.New("pin must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullEnvelope ...
	ErrNullEnvelope = errors.New("envelope to decrypt must not be null")
	// ErrMalformedEnvelope ...
	ErrMalformedEnvelope = errors.New("envelope is malformed")
	// ErrInvalidKeyLength ...
	ErrInvalidKeyLength = errors.New("encryption key must be 32 bytes long")
	// ErrDecryptionFailed is returned when an envelope can't be authenticated
	// with the given key, ie. the pin is wrong or the envelope was tampered.
	ErrDecryptionFailed = errors.New("decryption failed: wrong pin or corrupted envelope")

	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrNonHardenedDerivationPath ...
	ErrNonHardenedDerivationPath = errors.New(
		"ed25519 derivation supports only hardened path elements (suffix \"'\")",
	)

	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("address is invalid")
	// ErrInvalidAddressPrefix ...
	ErrInvalidAddressPrefix = errors.New("address prefix does not match network")
	// ErrUnknownNetwork ...
	ErrUnknownNetwork = errors.New("unknown network")
)

// Account is the public identity derived for a given account index.
// It never holds private key material.
type Account struct {
	Index     uint32 `json:"index"`
	Address   string `json:"address"`
	PublicKey []byte `json:"publicKey"`
}

// DeriveAccountOpts is the struct given to DeriveAccount method
type DeriveAccountOpts struct {
	Seed    []byte
	Index   uint32
	Network Network
}

func (o DeriveAccountOpts) validate() error {
	if err := validateSeed(o.Seed); err != nil {
		return err
	}
	if o.Index > MaxHardenedValue {
		return ErrOutOfRangeAccountIndex
	}
	if o.Network.Bech32HRP == "" {
		return fmt.Errorf("%w: %v", ErrDerivationFailed, ErrUnknownNetwork)
	}
	return nil
}

// DeriveAccount derives the Ed25519 key pair at m/44'/CoinType'/index'/0'/0'
// and returns the corresponding public account. The private key is wiped
// before returning.
func DeriveAccount(opts DeriveAccountOpts) (*Account, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	prvkey, err := deriveSigningKey(opts.Seed, AccountDerivationPath(opts.Index))
	if err != nil {
		return nil, err
	}
	defer zero(prvkey)

	pubkey := publicKeyOf(prvkey)
	addr, err := EncodeAddress(opts.Network, pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
	}

	return &Account{
		Index:     opts.Index,
		Address:   addr,
		PublicKey: pubkey,
	}, nil
}

func validateSeed(seed []byte) error {
	if len(seed) <= 0 {
		return ErrNullSeed
	}
	if len(seed) < 16 || len(seed) > 64 {
		return ErrInvalidSeedLength
	}
	return nil
}
