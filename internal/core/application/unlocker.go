package application

import (
	"context"

	"github.com/vaultgate/vaultgate/internal/core/application/unlocker"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

type UnlockerService interface {
	GenSeed(ctx context.Context) ([]string, error)
	InitWallet(ctx context.Context, mnemonic []string, pin string) error
	RestoreWallet(ctx context.Context, mnemonic []string, pin string) error
	UnlockWallet(ctx context.Context, pin string) error
	LockWallet(ctx context.Context) error
	ChangePin(ctx context.Context, oldPin, newPin string) error
	Status(ctx context.Context) (domain.WalletStatus, error)
	Info(ctx context.Context) (domain.WalletInfo, error)
	SelectAccount(ctx context.Context, index uint32) (walletcore.Account, error)
	SetNetwork(ctx context.Context, name string) (walletcore.Network, error)
}

func NewUnlockerService(
	walletSvc *wallet.Service, store *vaultstore.Service,
) (UnlockerService, error) {
	return unlocker.NewService(walletSvc, store)
}
