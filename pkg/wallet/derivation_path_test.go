package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
)

func TestParseDerivationPath(t *testing.T) {
	h := uint32(hdkeychain.HardenedKeyStart)

	tests := []struct {
		input  string
		output DerivationPath
		err    error
	}{
		// Plain absolute derivation paths
		{"m/44'/8888'/0'/0'/0'", DerivationPath{h + 44, h + 8888, h, h, h}, nil},
		{"m/44'/8888'/7'/0'/0'", DerivationPath{h + 44, h + 8888, h + 7, h, h}, nil},

		// Hexadecimal absolute derivation paths
		{"m/0x2c'/0x22b8'/0x00'/0x00'/0x00'", DerivationPath{h + 44, h + 8888, h, h, h}, nil},

		// Weird inputs just to ensure they work
		{"	m  /   44			'\n/\n   8888	\n\n\t'   /\n0 '", DerivationPath{h + 44, h + 8888, h}, nil},

		// Relative derivation paths
		{"0'/0'", DerivationPath{h, h}, nil},

		// Invalid derivation paths
		{"", nil, ErrNullDerivationPath},
		{"m", nil, ErrMalformedDerivationPath},
		{"m/", nil, ErrMalformedDerivationPath},
		{"/44'/0'/0'", nil, ErrMalformedDerivationPath},
		{"m/44'/0'/0", nil, ErrNonHardenedDerivationPath},
		{"m/2147483648'", nil, nil},
		{"m/-1'", nil, nil},
		{"0", nil, ErrMalformedDerivationPath},
	}
	for _, tt := range tests {
		path, err := ParseDerivationPath(tt.input)
		if err != nil {
			if tt.err != nil {
				assert.Equal(t, tt.err, err)
			}
		}
		assert.Equal(t, tt.output, path)
	}
}

func TestAccountDerivationPath(t *testing.T) {
	assert.Equal(t, "m/44'/8888'/0'/0'/0'", AccountDerivationPath(0).String())
	assert.Equal(t, "m/44'/8888'/42'/0'/0'", AccountDerivationPath(42).String())

	path, err := ParseDerivationPath(AccountDerivationPath(3).String())
	assert.NoError(t, err)
	assert.Equal(t, AccountDerivationPath(3), path)
}
