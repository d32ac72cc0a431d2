package vaultstore_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"github.com/vaultgate/vaultgate/internal/infrastructure/storage/db/inmemory"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	testIterations = 1000
	testPin        = "123456"
)

var (
	ctx          = context.Background()
	testMnemonic = strings.Split(
		"leave dice fine decrease dune ribbon ocean earn lunar account silver "+
			"admit cheap fringe disorder trade because trade steak clock grace "+
			"video jacket equal",
		" ",
	)
)

func newTestService(t *testing.T) (*vaultstore.Service, ports.KVStore) {
	kv := inmemory.NewKVStore()
	svc, err := vaultstore.NewService(kv, testIterations, "testnet")
	require.NoError(t, err)
	return svc, kv
}

func TestNewService(t *testing.T) {
	_, err := vaultstore.NewService(nil, testIterations, "testnet")
	require.Error(t, err)

	_, err = vaultstore.NewService(inmemory.NewKVStore(), testIterations, "regtest")
	require.ErrorIs(t, err, wallet.ErrUnknownNetwork)
}

func TestCreateAndUnlock(t *testing.T) {
	svc, _ := newTestService(t)

	initialized, err := svc.IsInitialized(ctx)
	require.NoError(t, err)
	require.False(t, initialized)

	_, _, err = svc.Unlock(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrWalletNotInitialized)

	envelope, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)
	require.Equal(t, wallet.EnvelopeVersion, envelope.Version)
	require.Equal(t, testIterations, envelope.Iterations)

	_, err = svc.Create(ctx, testMnemonic, testPin)
	require.ErrorIs(t, err, domain.ErrWalletAlreadyInitialized)

	state, key, err := svc.Unlock(ctx, testPin)
	require.NoError(t, err)
	defer key.Wipe()
	require.Equal(t, testMnemonic, state.Mnemonic)
	require.Equal(t, "testnet", state.Settings.Network)
}

func TestPersistRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	states := []*domain.WalletState{
		{
			Mnemonic: testMnemonic,
			Accounts: map[uint32]wallet.Account{},
			Settings: domain.Settings{Network: "mainnet"},
		},
		{
			Mnemonic: testMnemonic,
			Accounts: map[uint32]wallet.Account{
				0: {Index: 0, Address: "vault1a", PublicKey: []byte{1, 2, 3}},
				7: {Index: 7, Address: "vault1b", PublicKey: []byte{4, 5, 6}},
			},
			Settings: domain.Settings{
				Network:       "testnet",
				ActiveAccount: 7,
				Tokens:        []domain.Token{{Denom: "uatom", Symbol: "ATOM", Decimals: 6}},
			},
		},
	}
	pins := []string{"0", "123456", "a much longer passphrase with spaces ✓"}

	for _, state := range states {
		for _, pin := range pins {
			_, err := svc.Persist(ctx, state, pin)
			require.NoError(t, err)

			got, key, err := svc.Unlock(ctx, pin)
			require.NoError(t, err)
			key.Wipe()
			require.Equal(t, state, got)
		}
	}
}

func TestUnlockWrongPin(t *testing.T) {
	svc, kv := newTestService(t)
	_, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	before, err := kv.Get(ctx, vaultstore.EnvelopeKey)
	require.NoError(t, err)

	for _, pin := range []string{"654321", "1234567", "12345", " 123456"} {
		state, key, err := svc.Unlock(ctx, pin)
		require.ErrorIs(t, err, domain.ErrDecryptionFailed)
		require.Nil(t, state)
		require.Nil(t, key)
	}

	// A failed unlock never touches the stored envelope.
	after, err := kv.Get(ctx, vaultstore.EnvelopeKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUnlockCorruptedEnvelope(t *testing.T) {
	svc, kv := newTestService(t)
	envelope, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	envelope.Ciphertext[0] ^= 0x01
	buf, err := json.Marshal(envelope)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, vaultstore.EnvelopeKey, buf))

	state, _, err := svc.Unlock(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)
	require.Nil(t, state)

	require.NoError(t, kv.Set(ctx, vaultstore.EnvelopeKey, []byte("{")))
	_, _, err = svc.Unlock(ctx, testPin)
	require.ErrorIs(t, err, wallet.ErrMalformedEnvelope)
}

func TestResealKeepsKDFParams(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	state, key, err := svc.Unlock(ctx, testPin)
	require.NoError(t, err)
	defer key.Wipe()

	state.AddAccount(wallet.Account{Index: 1, Address: "vault1x"})
	resealed, err := svc.Reseal(ctx, state, key)
	require.NoError(t, err)
	require.Equal(t, created.Salt, resealed.Salt)
	require.NotEqual(t, created.IV, resealed.IV)

	got, gotKey, err := svc.Unlock(ctx, testPin)
	require.NoError(t, err)
	gotKey.Wipe()
	require.Equal(t, state, got)

	// Pure helpers agree with the store.
	opened, err := vaultstore.OpenState(resealed, key)
	require.NoError(t, err)
	require.Equal(t, state, opened)
}

func TestPersistNewPin(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	state, key, err := svc.Unlock(ctx, testPin)
	require.NoError(t, err)
	key.Wipe()

	_, err = svc.Persist(ctx, state, "")
	require.ErrorIs(t, err, wallet.ErrNullPin)
	_, err = svc.Persist(ctx, state, "111111")
	require.NoError(t, err)
	state.Wipe()

	envelope, err := svc.Envelope(ctx)
	require.NoError(t, err)
	require.NotEqual(t, created.Salt, envelope.Salt)

	_, _, err = svc.Unlock(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)

	state, key, err = svc.Unlock(ctx, "111111")
	require.NoError(t, err)
	key.Wipe()
	require.Equal(t, testMnemonic, state.Mnemonic)
}

func TestUnlockMigratesLegacyEnvelope(t *testing.T) {
	svc, kv := newTestService(t)

	key, err := wallet.DeriveKey([]byte(testPin), nil, testIterations)
	require.NoError(t, err)
	legacy, err := wallet.SealVersion(key, []byte(strings.Join(testMnemonic, " ")), 1)
	require.NoError(t, err)
	buf, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, vaultstore.EnvelopeKey, buf))

	state, ukey, err := svc.Unlock(ctx, testPin)
	require.NoError(t, err)
	ukey.Wipe()
	require.Equal(t, testMnemonic, state.Mnemonic)
	require.Equal(t, "testnet", state.Settings.Network)
	require.Empty(t, state.Accounts)

	envelope, err := svc.Envelope(ctx)
	require.NoError(t, err)
	require.Equal(t, wallet.EnvelopeVersion, envelope.Version)
	require.Equal(t, legacy.Salt, envelope.Salt)
}
