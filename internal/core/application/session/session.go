package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/pkg/securemem"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	DefaultInactivityTimeout = 15 * time.Minute
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 5 * time.Minute
)

var (
	// ErrAlreadyUnlocked ...
	ErrAlreadyUnlocked = errors.New("vault is already unlocked")
	// ErrUnlockInProgress is returned when an unlock is requested while
	// another one is still decrypting the vault.
	ErrUnlockInProgress = errors.New("another unlock is in progress")
)

// State of the session state machine.
type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "LOCKED"
	case StateUnlocking:
		return "UNLOCKING"
	case StateUnlocked:
		return "UNLOCKED"
	default:
		return "UNKNOWN"
	}
}

// LockReason tells why the session was locked.
type LockReason string

const (
	LockReasonUser     LockReason = "user"
	LockReasonTimeout  LockReason = "inactivity"
	LockReasonShutdown LockReason = "shutdown"
)

// Vault opens the persisted wallet state with a pin.
type Vault interface {
	Unlock(
		ctx context.Context, pin string,
	) (*domain.WalletState, *wallet.SealingKey, error)
}

// Config tunes the session timings. Zero values fall back to defaults.
type Config struct {
	InactivityTimeout time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	// Clock is used for lockout bookkeeping. Defaults to time.Now.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Status is a snapshot of the session.
type Status struct {
	State            State
	UnlockedAt       time.Time
	LastActivityAt   time.Time
	FailedAttempts   int
	LockoutRemaining time.Duration
}

type secrets struct {
	mnemonic securemem.Handle
	seed     securemem.Handle
	key      securemem.Handle
}

// Manager gates access to the unlocked secrets. While unlocked, the mnemonic,
// the seed and the vault sealing key live in the secure memory container and
// are only revealed for the duration of one operation.
type Manager struct {
	vault     Vault
	container *securemem.Container
	cfg       Config

	lock           sync.Mutex
	state          State
	unlockedAt     time.Time
	lastActivityAt time.Time
	failedAttempts int
	lockoutUntil   time.Time
	secrets        *secrets
	timer          *time.Timer
	// generation is bumped on every lock so that a stale timer or a late
	// unlock result can recognize it's outdated.
	generation uint64

	locked pubsub.Topic[LockReason]
}

// NewManager returns a locked session manager.
func NewManager(
	vault Vault, container *securemem.Container, cfg Config,
) (*Manager, error) {
	if vault == nil {
		return nil, fmt.Errorf("missing vault")
	}
	if container == nil {
		return nil, fmt.Errorf("missing secure memory container")
	}
	return &Manager{
		vault:     vault,
		container: container,
		cfg:       cfg.withDefaults(),
	}, nil
}

// OnLock registers fn to be called every time the session gets locked.
func (m *Manager) OnLock(fn func(LockReason)) (unsubscribe func()) {
	return m.locked.Subscribe(fn)
}

// Unlock decrypts the vault with the pin. The KDF runs on its own goroutine
// so that ctx cancellation is honoured. On success the public part of the
// wallet state is returned.
//
// After MaxFailedAttempts consecutive wrong pins, any attempt during the
// lockout window fails with *domain.LockedOutError without evaluating the pin.
func (m *Manager) Unlock(ctx context.Context, pin string) (*domain.WalletInfo, error) {
	m.lock.Lock()
	if err := m.checkLockout(); err != nil {
		m.lock.Unlock()
		return nil, err
	}

	switch m.state {
	case StateUnlocked:
		m.lock.Unlock()
		return nil, ErrAlreadyUnlocked
	case StateUnlocking:
		m.lock.Unlock()
		return nil, ErrUnlockInProgress
	}

	m.state = StateUnlocking
	generation := m.generation
	m.lock.Unlock()

	type result struct {
		state *domain.WalletState
		key   *wallet.SealingKey
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		state, key, err := m.vault.Unlock(ctx, pin)
		resultCh <- result{state, key, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		go func() {
			// Drop whatever the abandoned decryption returns.
			if late := <-resultCh; late.err == nil {
				late.state.Wipe()
				late.key.Wipe()
			}
		}()
		m.lock.Lock()
		if m.generation == generation && m.state == StateUnlocking {
			m.state = StateLocked
		}
		m.lock.Unlock()
		return nil, ctx.Err()
	case res = <-resultCh:
	}

	if res.err != nil {
		m.failUnlock(generation, res.err)
		return nil, res.err
	}

	defer res.state.Wipe()
	defer res.key.Wipe()

	info, err := m.completeUnlock(generation, res.state, res.key)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// VerifyPin checks the pin against the stored vault without unlocking the
// session. Wrong pins count toward the same lockout as Unlock. On success the
// decrypted state and sealing key are returned and the caller must wipe both.
func (m *Manager) VerifyPin(
	ctx context.Context, pin string,
) (*domain.WalletState, *wallet.SealingKey, error) {
	m.lock.Lock()
	if err := m.checkLockout(); err != nil {
		m.lock.Unlock()
		return nil, nil, err
	}
	if m.state == StateUnlocking {
		m.lock.Unlock()
		return nil, nil, ErrUnlockInProgress
	}
	m.lock.Unlock()

	state, key, err := m.vault.Unlock(ctx, pin)

	m.lock.Lock()
	defer m.lock.Unlock()

	if err != nil {
		m.recordFailure(err)
		return nil, nil, err
	}
	m.failedAttempts = 0
	m.lockoutUntil = time.Time{}
	return state, key, nil
}

// checkLockout must be called with m.lock held. An expired lockout resets the
// failed attempts counter.
func (m *Manager) checkLockout() error {
	if m.lockoutUntil.IsZero() {
		return nil
	}
	now := m.cfg.Clock()
	if now.Before(m.lockoutUntil) {
		return &domain.LockedOutError{Remaining: m.lockoutUntil.Sub(now)}
	}
	m.failedAttempts = 0
	m.lockoutUntil = time.Time{}
	return nil
}

func (m *Manager) failUnlock(generation uint64, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.generation == generation && m.state == StateUnlocking {
		m.state = StateLocked
	}
	m.recordFailure(err)
}

// recordFailure must be called with m.lock held.
func (m *Manager) recordFailure(err error) {
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		return
	}

	m.failedAttempts++
	log.WithField("failed_attempts", m.failedAttempts).Warn("wrong pin")

	if m.failedAttempts >= m.cfg.MaxFailedAttempts {
		m.lockoutUntil = m.cfg.Clock().Add(m.cfg.LockoutDuration)
		log.Warnf(
			"too many failed unlock attempts, locked out for %s",
			m.cfg.LockoutDuration,
		)
	}
}

func (m *Manager) completeUnlock(
	generation uint64, state *domain.WalletState, key *wallet.SealingKey,
) (*domain.WalletInfo, error) {
	seed, err := wallet.NewSeed(wallet.NewSeedOpts{Mnemonic: state.Mnemonic})
	if err != nil {
		m.failUnlock(generation, err)
		return nil, err
	}

	s := &secrets{}
	if s.seed, err = m.container.Store(seed); err != nil {
		m.failUnlock(generation, err)
		return nil, err
	}
	if s.mnemonic, err = m.container.Store(
		[]byte(strings.Join(state.Mnemonic, " ")),
	); err != nil {
		m.wipeSecrets(s)
		m.failUnlock(generation, err)
		return nil, err
	}
	if s.key, err = m.container.Store(key.Bytes()); err != nil {
		m.wipeSecrets(s)
		m.failUnlock(generation, err)
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.generation != generation || m.state != StateUnlocking {
		m.wipeSecrets(s)
		return nil, domain.ErrVaultLocked
	}

	now := m.cfg.Clock()
	m.state = StateUnlocked
	m.unlockedAt = now
	m.lastActivityAt = now
	m.failedAttempts = 0
	m.lockoutUntil = time.Time{}
	m.secrets = s
	m.armTimer()

	log.Debug("vault unlocked")

	info := state.Info()
	return &info, nil
}

// wipeSecrets only touches the handles of s, so that the secrets of a
// concurrent unlock are left alone.
func (m *Manager) wipeSecrets(s *secrets) {
	for _, h := range []securemem.Handle{s.seed, s.mnemonic, s.key} {
		if h != 0 {
			m.container.Wipe(h)
		}
	}
}

// Lock wipes every secret and moves to the locked state. Locking an already
// locked session is a no-op.
func (m *Manager) Lock() {
	m.lockWithReason(LockReasonUser)
}

// Close locks the session for shutdown.
func (m *Manager) Close() {
	m.lockWithReason(LockReasonShutdown)
}

func (m *Manager) lockWithReason(reason LockReason) {
	m.lock.Lock()
	wasUnlocked := m.lockLocked()
	m.lock.Unlock()

	if wasUnlocked {
		log.WithField("reason", reason).Info("vault locked")
		m.locked.Publish(reason)
	}
}

// lockLocked must be called with m.lock held.
func (m *Manager) lockLocked() bool {
	wasUnlocked := m.state == StateUnlocked
	m.generation++
	m.state = StateLocked
	m.secrets = nil
	m.container.WipeAll()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return wasUnlocked
}

// Touch records activity and restarts the inactivity timer.
func (m *Manager) Touch() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != StateUnlocked {
		return
	}
	m.lastActivityAt = m.cfg.Clock()
	m.armTimer()
}

func (m *Manager) armTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
	generation := m.generation
	m.timer = time.AfterFunc(m.cfg.InactivityTimeout, func() {
		m.lock.Lock()
		if m.generation != generation || m.state != StateUnlocked {
			m.lock.Unlock()
			return
		}
		m.lockLocked()
		m.lock.Unlock()

		log.WithField("reason", LockReasonTimeout).Info("vault locked")
		m.locked.Publish(LockReasonTimeout)
	})
}

// IsUnlocked ...
func (m *Manager) IsUnlocked() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state == StateUnlocked
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.lock.Lock()
	defer m.lock.Unlock()

	var remaining time.Duration
	if now := m.cfg.Clock(); now.Before(m.lockoutUntil) {
		remaining = m.lockoutUntil.Sub(now)
	}
	return Status{
		State:            m.state,
		UnlockedAt:       m.unlockedAt,
		LastActivityAt:   m.lastActivityAt,
		FailedAttempts:   m.failedAttempts,
		LockoutRemaining: remaining,
	}
}

// WithSeed reveals the seed to fn and wipes it as soon as fn returns. It fails
// with domain.ErrVaultLocked when the session is not unlocked. Every call
// counts as activity.
func (m *Manager) WithSeed(fn func(seed []byte) error) error {
	seed, err := m.reveal(func(s *secrets) securemem.Handle { return s.seed })
	if err != nil {
		return err
	}
	defer securemem.Zero(seed)

	return fn(seed)
}

// WithSealingKey reveals the mnemonic and the vault sealing key to fn, for
// rewriting the vault without the pin, and wipes them as soon as fn returns.
func (m *Manager) WithSealingKey(
	fn func(mnemonic []string, key *wallet.SealingKey) error,
) error {
	rawKey, err := m.reveal(func(s *secrets) securemem.Handle { return s.key })
	if err != nil {
		return err
	}
	defer securemem.Zero(rawKey)

	rawMnemonic, err := m.reveal(func(s *secrets) securemem.Handle { return s.mnemonic })
	if err != nil {
		return err
	}
	defer securemem.Zero(rawMnemonic)

	key, err := wallet.SealingKeyFromBytes(rawKey)
	if err != nil {
		return err
	}
	defer key.Wipe()

	return fn(strings.Fields(string(rawMnemonic)), key)
}

func (m *Manager) reveal(
	handleOf func(*secrets) securemem.Handle,
) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != StateUnlocked || m.secrets == nil {
		return nil, domain.ErrVaultLocked
	}
	secret, err := m.container.Reveal(handleOf(m.secrets))
	if err != nil {
		return nil, domain.ErrVaultLocked
	}

	m.lastActivityAt = m.cfg.Clock()
	m.armTimer()
	return secret, nil
}
