package wallet

import (
	"strings"

	"github.com/vulpemventures/go-bip39"
)

const (
	// DefaultEntropySize produces a 24-word mnemonic.
	DefaultEntropySize = 256
	// MnemonicWords is the length of the mnemonic of a vault.
	MnemonicWords = 24
)

type NewMnemonicOpts struct {
	EntropySize int
}

func (o NewMnemonicOpts) validate() error {
	if o.EntropySize > 0 {
		if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
			return ErrInvalidEntropySize
		}
	}
	if o.EntropySize < 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewMnemonic returns a new mnemonic as a list of words
func NewMnemonic(opts NewMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = DefaultEntropySize
	}

	entropy, err := bip39.NewEntropy(opts.EntropySize)
	if err != nil {
		return nil, err
	}
	defer zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

// IsMnemonicValid returns whether the given list of words is a valid BIP-39
// mnemonic with a correct checksum.
func IsMnemonicValid(mnemonic []string) bool {
	if len(mnemonic) <= 0 {
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(mnemonic, " "))
}

// NewSeedOpts is the struct given to NewSeed method
type NewSeedOpts struct {
	Mnemonic   []string
	Passphrase string
}

func (o NewSeedOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !IsMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewSeed returns the 64-byte BIP-39 seed of the given mnemonic and optional
// passphrase. The caller owns the returned buffer and must wipe it.
func NewSeed(opts NewSeedOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return bip39.NewSeed(strings.Join(opts.Mnemonic, " "), opts.Passphrase), nil
}
