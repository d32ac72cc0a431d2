package vaultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

// EnvelopeKey is the KV key holding the one vault envelope of the wallet.
const EnvelopeKey = "vault/envelope"

// Migration upgrades the plaintext of an envelope of a given version to the
// plaintext layout of the next version.
type Migration func(plaintext []byte, defaultNetwork string) ([]byte, error)

// Service persists the wallet state as a single encrypted envelope.
type Service struct {
	store          ports.KVStore
	iterations     int
	defaultNetwork string
	migrations     map[int]Migration
}

// NewService returns a vault store on top of the given KV backend. Iterations
// is the PBKDF2 count used for new envelopes, defaultNetwork the network set
// for newly created wallets.
func NewService(
	store ports.KVStore, iterations int, defaultNetwork string,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("missing kv store")
	}
	if iterations <= 0 {
		iterations = wallet.DefaultIterations
	}
	if _, err := wallet.NetworkByName(defaultNetwork); err != nil {
		return nil, err
	}

	return &Service{
		store:          store,
		iterations:     iterations,
		defaultNetwork: defaultNetwork,
		migrations: map[int]Migration{
			1: migrateMnemonicOnly,
		},
	}, nil
}

// IsInitialized returns whether an envelope exists.
func (s *Service) IsInitialized(ctx context.Context) (bool, error) {
	if _, err := s.store.Get(ctx, EnvelopeKey); err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Envelope returns the stored envelope.
func (s *Service) Envelope(ctx context.Context) (*wallet.Envelope, error) {
	buf, err := s.store.Get(ctx, EnvelopeKey)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return nil, domain.ErrWalletNotInitialized
		}
		return nil, err
	}
	envelope := &wallet.Envelope{}
	if err := json.Unmarshal(buf, envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrMalformedEnvelope, err)
	}
	return envelope, nil
}

// Create seals a new wallet state for the given mnemonic. It fails if a
// wallet already exists.
func (s *Service) Create(
	ctx context.Context, mnemonic []string, pin string,
) (*wallet.Envelope, error) {
	initialized, err := s.IsInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if initialized {
		return nil, domain.ErrWalletAlreadyInitialized
	}

	state, err := domain.NewWalletState(mnemonic, s.defaultNetwork)
	if err != nil {
		return nil, err
	}
	defer state.Wipe()

	return s.Persist(ctx, state, pin)
}

// Unlock opens the stored envelope with the pin. On success it returns the
// wallet state and the sealing key to reseal later mutations; the caller owns
// both and must wipe them. Older envelope versions are migrated and
// rewritten with the current version.
func (s *Service) Unlock(
	ctx context.Context, pin string,
) (*domain.WalletState, *wallet.SealingKey, error) {
	envelope, err := s.Envelope(ctx)
	if err != nil {
		return nil, nil, err
	}

	plaintext, key, err := wallet.Decrypt(wallet.DecryptOpts{
		Envelope: envelope,
		Pin:      pin,
	})
	if err != nil {
		return nil, nil, err
	}

	state, migrated, err := s.decodeState(envelope.Version, plaintext)
	if err != nil {
		key.Wipe()
		return nil, nil, err
	}

	if migrated {
		if _, err := s.Reseal(ctx, state, key); err != nil {
			state.Wipe()
			key.Wipe()
			return nil, nil, fmt.Errorf("failed to rewrite migrated vault: %w", err)
		}
		log.Infof(
			"vault migrated from version %d to %d",
			envelope.Version, wallet.EnvelopeVersion,
		)
	}

	return state, key, nil
}

// Persist seals the state under a key freshly derived from the pin, with a
// new salt, and atomically replaces the stored envelope.
func (s *Service) Persist(
	ctx context.Context, state *domain.WalletState, pin string,
) (*wallet.Envelope, error) {
	if state == nil {
		return nil, fmt.Errorf("missing wallet state")
	}
	plaintext, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	envelope, key, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  plaintext,
		Pin:        pin,
		Iterations: s.iterations,
	})
	if err != nil {
		return nil, err
	}
	key.Wipe()

	if err := s.write(ctx, envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

// Reseal seals the state with an already derived key and atomically replaces
// the stored envelope. The KDF is not run again.
func (s *Service) Reseal(
	ctx context.Context, state *domain.WalletState, key *wallet.SealingKey,
) (*wallet.Envelope, error) {
	if state == nil {
		return nil, fmt.Errorf("missing wallet state")
	}
	envelope, err := SealState(state, key)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

func (s *Service) write(ctx context.Context, envelope *wallet.Envelope) error {
	buf, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, EnvelopeKey, buf); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return nil
}

func (s *Service) decodeState(
	version int, plaintext []byte,
) (*domain.WalletState, bool, error) {
	defer wipe(plaintext)

	if version > wallet.EnvelopeVersion {
		return nil, false, fmt.Errorf(
			"%w: unsupported vault version %d", wallet.ErrMalformedEnvelope, version,
		)
	}

	migrated := false
	buf := plaintext
	for v := version; v < wallet.EnvelopeVersion; v++ {
		migrate, ok := s.migrations[v]
		if !ok {
			return nil, false, fmt.Errorf("missing vault migration from version %d", v)
		}
		next, err := migrate(buf, s.defaultNetwork)
		if migrated {
			wipe(buf)
		}
		if err != nil {
			return nil, false, fmt.Errorf("vault migration from version %d: %w", v, err)
		}
		buf = next
		migrated = true
	}
	if migrated {
		defer wipe(buf)
	}

	state, err := OpenStateBytes(buf)
	if err != nil {
		return nil, false, err
	}
	return state, migrated, nil
}

// SealState serializes and seals the state with the given key.
func SealState(
	state *domain.WalletState, key *wallet.SealingKey,
) (*wallet.Envelope, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	return wallet.Seal(key, plaintext)
}

// OpenState opens an envelope of the current version with the given key.
func OpenState(
	envelope *wallet.Envelope, key *wallet.SealingKey,
) (*domain.WalletState, error) {
	plaintext, err := wallet.Open(key, envelope)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	if envelope.Version != wallet.EnvelopeVersion {
		return nil, fmt.Errorf(
			"%w: vault version %d needs migration", wallet.ErrMalformedEnvelope,
			envelope.Version,
		)
	}
	return OpenStateBytes(plaintext)
}

// OpenStateBytes decodes a plaintext wallet state.
func OpenStateBytes(plaintext []byte) (*domain.WalletState, error) {
	state := &domain.WalletState{}
	if err := json.Unmarshal(plaintext, state); err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrMalformedEnvelope, err)
	}
	if state.Accounts == nil {
		state.Accounts = map[uint32]wallet.Account{}
	}
	return state, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
