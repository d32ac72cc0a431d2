package wallet

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

// Service glues the vault store, the session and the key derivation core.
//
// It keeps a cache of the public part of the wallet state, refreshed on every
// unlock and mutation. The cache survives lock so that addresses and public
// keys can be served without the secret; only signing and the derivation of
// new accounts need the vault unlocked.
type Service struct {
	store   *vaultstore.Service
	session *session.Manager
	events  *pubsub.Service

	lock  sync.RWMutex
	info  *domain.WalletInfo
	signs signLocks
}

func NewService(
	store *vaultstore.Service, sess *session.Manager, events *pubsub.Service,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("missing vault store")
	}
	if sess == nil {
		return nil, fmt.Errorf("missing session manager")
	}
	if events == nil {
		return nil, fmt.Errorf("missing pubsub service")
	}
	return &Service{
		store:   store,
		session: sess,
		events:  events,
		signs:   newSignLocks(),
	}, nil
}

// Session returns the session manager gating the secrets.
func (s *Service) Session() *session.Manager {
	return s.session
}

// Unlock opens the session and refreshes the public cache. The active
// account is derived and persisted if this is the first unlock.
func (s *Service) Unlock(ctx context.Context, pin string) error {
	info, err := s.session.Unlock(ctx, pin)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.info = info
	s.lock.Unlock()

	if _, err := s.DeriveAccount(ctx, info.Settings.ActiveAccount); err != nil {
		log.WithError(err).Warn("failed to derive active account")
		return err
	}
	return nil
}

// Lock wipes the secrets. The public cache is kept.
func (s *Service) Lock() {
	s.session.Lock()
}

// Info returns the public part of the wallet state. It fails with
// ErrVaultLocked if the vault was never unlocked since start.
func (s *Service) Info() (domain.WalletInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.info == nil {
		return domain.WalletInfo{}, domain.ErrVaultLocked
	}
	return copyInfo(*s.info), nil
}

// Network returns the network the wallet is currently set to.
func (s *Service) Network() (walletcore.Network, error) {
	info, err := s.Info()
	if err != nil {
		return walletcore.Network{}, err
	}
	return walletcore.NetworkByName(info.Settings.Network)
}

// ActiveAccount returns the selected account.
func (s *Service) ActiveAccount() (walletcore.Account, error) {
	info, err := s.Info()
	if err != nil {
		return walletcore.Account{}, err
	}
	account, ok := info.Accounts[info.Settings.ActiveAccount]
	if !ok {
		return walletcore.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

// DeriveAccount returns the account at the given index, deriving and
// persisting it on first request. Deriving a new account needs the vault
// unlocked.
func (s *Service) DeriveAccount(
	ctx context.Context, index uint32,
) (walletcore.Account, error) {
	info, err := s.Info()
	if err != nil {
		return walletcore.Account{}, err
	}
	if account, ok := info.Accounts[index]; ok {
		return account, nil
	}

	network, err := walletcore.NetworkByName(info.Settings.Network)
	if err != nil {
		return walletcore.Account{}, err
	}

	var account *walletcore.Account
	if err := s.session.WithSeed(func(seed []byte) error {
		account, err = walletcore.DeriveAccount(walletcore.DeriveAccountOpts{
			Seed:    seed,
			Index:   index,
			Network: network,
		})
		return err
	}); err != nil {
		return walletcore.Account{}, err
	}

	if err := s.update(ctx, func(state *domain.WalletState) error {
		state.AddAccount(*account)
		return nil
	}); err != nil {
		return walletcore.Account{}, err
	}

	log.WithField("index", index).Debug("derived new account")
	return *account, nil
}

// SelectAccount switches the active account, deriving it if needed, and
// publishes the change.
func (s *Service) SelectAccount(
	ctx context.Context, index uint32,
) (walletcore.Account, error) {
	account, err := s.DeriveAccount(ctx, index)
	if err != nil {
		return walletcore.Account{}, err
	}

	if err := s.update(ctx, func(state *domain.WalletState) error {
		state.Settings.ActiveAccount = index
		return nil
	}); err != nil {
		return walletcore.Account{}, err
	}

	s.events.AccountChanged.Publish(pubsub.AccountChanged{Account: account})
	return account, nil
}

// SetNetwork switches network. Addresses only depend on the network prefix,
// so every known account is re-encoded from its public key.
func (s *Service) SetNetwork(
	ctx context.Context, name string,
) (walletcore.Network, error) {
	network, err := walletcore.NetworkByName(name)
	if err != nil {
		return walletcore.Network{}, err
	}

	var active walletcore.Account
	if err := s.update(ctx, func(state *domain.WalletState) error {
		for index, account := range state.Accounts {
			addr, err := walletcore.EncodeAddress(network, account.PublicKey)
			if err != nil {
				return err
			}
			account.Address = addr
			state.Accounts[index] = account
		}
		state.Settings.Network = network.Name
		active = state.Accounts[state.Settings.ActiveAccount]
		return nil
	}); err != nil {
		return walletcore.Network{}, err
	}

	s.events.NetworkChanged.Publish(pubsub.NetworkChanged{
		Network: network,
		Account: active,
	})
	return network, nil
}

// ChangePin re-encrypts the vault under the new pin and a fresh salt, then
// locks the session so that the next unlock loads the new key. The old pin is
// verified by the session, so wrong pins count toward the lockout. The state
// lock is held for the whole rewrite, no mutation can land in between.
func (s *Service) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if len(newPin) <= 0 {
		return walletcore.ErrNullPin
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	state, key, err := s.session.VerifyPin(ctx, oldPin)
	if err != nil {
		return err
	}
	defer state.Wipe()
	key.Wipe()

	if _, err := s.store.Persist(ctx, state, newPin); err != nil {
		return err
	}
	s.session.Lock()
	return nil
}

// AddToken appends a token to the tracked list.
func (s *Service) AddToken(ctx context.Context, token domain.Token) error {
	return s.update(ctx, func(state *domain.WalletState) error {
		return state.AddToken(token)
	})
}

// SignMessage signs the message with the key of the given account.
func (s *Service) SignMessage(index uint32, message []byte) ([]byte, error) {
	lock := s.signs.get(index)
	lock.Lock()
	defer lock.Unlock()

	var sig []byte
	if err := s.session.WithSeed(func(seed []byte) (err error) {
		sig, err = walletcore.SignMessage(walletcore.SignMessageOpts{
			Seed:    seed,
			Index:   index,
			Message: message,
		})
		return
	}); err != nil {
		return nil, err
	}
	return sig, nil
}

// SignTransaction signs the transaction with the key of the given account on
// the current network.
func (s *Service) SignTransaction(
	index uint32, tx walletcore.Transaction,
) (*walletcore.SignedTransaction, error) {
	network, err := s.Network()
	if err != nil {
		return nil, err
	}

	lock := s.signs.get(index)
	lock.Lock()
	defer lock.Unlock()

	var signed *walletcore.SignedTransaction
	if err := s.session.WithSeed(func(seed []byte) (err error) {
		signed, err = walletcore.SignTransaction(walletcore.SignTransactionOpts{
			Seed:        seed,
			Index:       index,
			Network:     network,
			Transaction: &tx,
		})
		return
	}); err != nil {
		return nil, err
	}
	return signed, nil
}

// update applies fn to the wallet state and reseals the vault with the
// session key. The cache is refreshed only once the new envelope is written.
func (s *Service) update(
	ctx context.Context, fn func(state *domain.WalletState) error,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.info == nil {
		return domain.ErrVaultLocked
	}

	return s.session.WithSealingKey(
		func(mnemonic []string, key *walletcore.SealingKey) error {
			info := copyInfo(*s.info)
			state := &domain.WalletState{
				Mnemonic: mnemonic,
				Accounts: info.Accounts,
				Settings: info.Settings,
			}
			defer state.Wipe()

			if err := fn(state); err != nil {
				return err
			}
			if _, err := s.store.Reseal(ctx, state, key); err != nil {
				return err
			}

			newInfo := state.Info()
			s.info = &newInfo
			return nil
		},
	)
}

func copyInfo(info domain.WalletInfo) domain.WalletInfo {
	state := domain.WalletState{Accounts: info.Accounts, Settings: info.Settings}
	return state.Info()
}
