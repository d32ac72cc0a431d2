package unlocker

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

type service struct {
	wallet *wallet.Service
	store  *vaultstore.Service
}

func NewService(
	walletSvc *wallet.Service, store *vaultstore.Service,
) (*service, error) {
	if walletSvc == nil {
		return nil, fmt.Errorf("missing wallet service")
	}
	if store == nil {
		return nil, fmt.Errorf("missing vault store")
	}

	return &service{walletSvc, store}, nil
}

func (s *service) GenSeed(_ context.Context) ([]string, error) {
	return walletcore.NewMnemonic(walletcore.NewMnemonicOpts{})
}

func (s *service) InitWallet(
	ctx context.Context, mnemonic []string, pin string,
) error {
	if _, err := s.store.Create(ctx, mnemonic, pin); err != nil {
		return err
	}
	log.Info("wallet created")
	return nil
}

func (s *service) RestoreWallet(
	ctx context.Context, mnemonic []string, pin string,
) error {
	if !walletcore.IsMnemonicValid(mnemonic) {
		return walletcore.ErrInvalidMnemonic
	}
	if _, err := s.store.Create(ctx, mnemonic, pin); err != nil {
		return err
	}
	log.Info("wallet restored")
	return nil
}

func (s *service) UnlockWallet(ctx context.Context, pin string) error {
	return s.wallet.Unlock(ctx, pin)
}

func (s *service) LockWallet(_ context.Context) error {
	s.wallet.Lock()
	return nil
}

// ChangePin re-encrypts the vault under the new pin. The session is locked
// afterwards so that the next unlock loads the new key.
func (s *service) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := s.wallet.ChangePin(ctx, oldPin, newPin); err != nil {
		return err
	}
	log.Info("pin changed")
	return nil
}

func (s *service) Status(ctx context.Context) (domain.WalletStatus, error) {
	initialized, err := s.store.IsInitialized(ctx)
	if err != nil {
		return domain.WalletStatus{}, err
	}
	status := s.wallet.Session().Status()
	return domain.WalletStatus{
		Initialized:      initialized,
		Unlocked:         s.wallet.Session().IsUnlocked(),
		FailedAttempts:   status.FailedAttempts,
		LockoutRemaining: int64(status.LockoutRemaining.Seconds()),
	}, nil
}

func (s *service) Info(_ context.Context) (domain.WalletInfo, error) {
	return s.wallet.Info()
}

func (s *service) SelectAccount(
	ctx context.Context, index uint32,
) (walletcore.Account, error) {
	return s.wallet.SelectAccount(ctx, index)
}

func (s *service) SetNetwork(
	ctx context.Context, network string,
) (walletcore.Network, error) {
	return s.wallet.SetNetwork(ctx, network)
}
