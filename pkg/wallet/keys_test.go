package wallet

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SLIP-0010 test vector 1 for ed25519.
func TestMasterAndHardenedChild(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	master := newMasterKey(seed)
	assert.Equal(t,
		"2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7",
		hex.EncodeToString(master.key),
	)
	assert.Equal(t,
		"90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb",
		hex.EncodeToString(master.chainCode),
	)

	child, err := master.child(hdkeychain.HardenedKeyStart)
	require.NoError(t, err)
	assert.Equal(t,
		"68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3",
		hex.EncodeToString(child.key),
	)
	assert.Equal(t,
		"8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69",
		hex.EncodeToString(child.chainCode),
	)

	_, err = master.child(0)
	assert.ErrorIs(t, err, ErrNonHardenedDerivationPath)
}

func TestDeriveSigningKey(t *testing.T) {
	seed := newTestSeed(t)

	key, err := deriveSigningKey(seed, AccountDerivationPath(0))
	require.NoError(t, err)
	again, err := deriveSigningKey(seed, AccountDerivationPath(0))
	require.NoError(t, err)
	assert.Equal(t, key, again)

	other, err := deriveSigningKey(seed, AccountDerivationPath(1))
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = deriveSigningKey(seed, nil)
	assert.ErrorIs(t, err, ErrDerivationFailed)
	_, err = deriveSigningKey(seed, DerivationPath{44})
	assert.ErrorIs(t, err, ErrDerivationFailed)
}

func TestExtendedKeyWipe(t *testing.T) {
	master := newMasterKey(make([]byte, 32))
	master.wipe()
	assert.Equal(t, make([]byte, 32), master.key)
	assert.Equal(t, make([]byte, 32), master.chainCode)
}

func TestSplitNodeZeroesInput(t *testing.T) {
	sum := make([]byte, 64)
	for i := range sum {
		sum[i] = byte(i + 1)
	}
	want := append([]byte{}, sum...)

	node := splitNode(sum)
	require.Equal(t, want[:32], node.key)
	require.Equal(t, want[32:], node.chainCode)
	assert.Equal(t, make([]byte, 64), sum)
}
