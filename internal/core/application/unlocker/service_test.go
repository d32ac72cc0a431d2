package unlocker_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/application/unlocker"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/infrastructure/storage/db/inmemory"
	"github.com/vaultgate/vaultgate/pkg/securemem"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	testIterations = 1000
	testPin        = "123456"
	newPin         = "abcdef"
)

var ctx = context.Background()

func newTestService(t *testing.T, cfg session.Config) (
	interface {
		GenSeed(context.Context) ([]string, error)
		InitWallet(context.Context, []string, string) error
		RestoreWallet(context.Context, []string, string) error
		UnlockWallet(context.Context, string) error
		LockWallet(context.Context) error
		ChangePin(context.Context, string, string) error
		Status(context.Context) (domain.WalletStatus, error)
		Info(context.Context) (domain.WalletInfo, error)
		SelectAccount(context.Context, uint32) (walletcore.Account, error)
		SetNetwork(context.Context, string) (walletcore.Network, error)
	},
	*wallet.Service,
) {
	store, err := vaultstore.NewService(
		inmemory.NewKVStore(), testIterations, "testnet",
	)
	require.NoError(t, err)
	sess, err := session.NewManager(store, securemem.New(), cfg)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	walletSvc, err := wallet.NewService(store, sess, pubsub.NewService())
	require.NoError(t, err)

	svc, err := unlocker.NewService(walletSvc, store)
	require.NoError(t, err)
	return svc, walletSvc
}

func TestNewService(t *testing.T) {
	_, err := unlocker.NewService(nil, nil)
	require.Error(t, err)
}

func TestWalletLifecycle(t *testing.T) {
	svc, _ := newTestService(t, session.Config{})

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.WalletStatus{}, status)

	err = svc.UnlockWallet(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrWalletNotInitialized)

	mnemonic, err := svc.GenSeed(ctx)
	require.NoError(t, err)
	require.Len(t, mnemonic, 24)

	require.NoError(t, svc.InitWallet(ctx, mnemonic, testPin))
	err = svc.InitWallet(ctx, mnemonic, testPin)
	require.ErrorIs(t, err, domain.ErrWalletAlreadyInitialized)

	require.NoError(t, svc.UnlockWallet(ctx, testPin))
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Initialized)
	require.True(t, status.Unlocked)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, info.AccountIndexes())

	account, err := svc.SelectAccount(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), account.Index)

	network, err := svc.SetNetwork(ctx, "mainnet")
	require.NoError(t, err)
	require.Equal(t, walletcore.MainNet, network)

	require.NoError(t, svc.LockWallet(ctx))
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.Unlocked)
}

func TestRestoreWallet(t *testing.T) {
	svc, _ := newTestService(t, session.Config{})

	invalid := strings.Fields(strings.Repeat("abandon ", 24))
	err := svc.RestoreWallet(ctx, invalid, testPin)
	require.ErrorIs(t, err, walletcore.ErrInvalidMnemonic)

	mnemonic, err := svc.GenSeed(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.RestoreWallet(ctx, mnemonic, testPin))
	require.NoError(t, svc.UnlockWallet(ctx, testPin))
}

func TestChangePin(t *testing.T) {
	svc, walletSvc := newTestService(t, session.Config{})

	mnemonic, err := svc.GenSeed(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.InitWallet(ctx, mnemonic, testPin))
	require.NoError(t, svc.UnlockWallet(ctx, testPin))

	err = svc.ChangePin(ctx, "wrong", newPin)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)

	require.NoError(t, svc.ChangePin(ctx, testPin, newPin))
	require.False(t, walletSvc.Session().IsUnlocked())

	err = svc.UnlockWallet(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)
	require.NoError(t, svc.UnlockWallet(ctx, newPin))

	// Mutations after the change are sealed with the new key.
	_, err = svc.SelectAccount(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.LockWallet(ctx))
	require.NoError(t, svc.UnlockWallet(ctx, newPin))
}

func TestLockoutStatus(t *testing.T) {
	svc, _ := newTestService(t, session.Config{
		MaxFailedAttempts: 2,
		LockoutDuration:   time.Minute,
	})

	mnemonic, err := svc.GenSeed(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.InitWallet(ctx, mnemonic, testPin))

	for i := 0; i < 2; i++ {
		err := svc.UnlockWallet(ctx, "wrong")
		require.ErrorIs(t, err, domain.ErrDecryptionFailed)
	}

	err = svc.UnlockWallet(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrLockedOut)

	err = svc.ChangePin(ctx, testPin, newPin)
	require.ErrorIs(t, err, domain.ErrLockedOut)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, status.FailedAttempts)
	require.Greater(t, status.LockoutRemaining, int64(0))
}

func TestChangePinWrongPinLockout(t *testing.T) {
	svc, walletSvc := newTestService(t, session.Config{
		MaxFailedAttempts: 5,
		LockoutDuration:   time.Minute,
	})

	mnemonic, err := svc.GenSeed(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.InitWallet(ctx, mnemonic, testPin))

	for i := 1; i <= 5; i++ {
		err := svc.ChangePin(ctx, "000000", newPin)
		require.ErrorIs(t, err, domain.ErrDecryptionFailed)
		require.Equal(t, i, walletSvc.Session().Status().FailedAttempts)
	}

	err = svc.ChangePin(ctx, testPin, newPin)
	require.ErrorIs(t, err, domain.ErrLockedOut)
	require.Equal(t, domain.CodeLockedOut, domain.ErrorCode(err))

	err = svc.UnlockWallet(ctx, testPin)
	require.ErrorIs(t, err, domain.ErrLockedOut)
}
