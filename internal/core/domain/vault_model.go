package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vaultgate/vaultgate/pkg/wallet"
)

// Token is an asset the user asked to track.
type Token struct {
	Denom    string `json:"denom"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Settings holds the user preferences persisted with the vault.
type Settings struct {
	Network       string  `json:"network"`
	ActiveAccount uint32  `json:"activeAccount"`
	Tokens        []Token `json:"tokens,omitempty"`
}

// WalletState is the plaintext sealed inside the vault envelope.
type WalletState struct {
	Mnemonic []string                  `json:"mnemonic"`
	Accounts map[uint32]wallet.Account `json:"accounts"`
	Settings Settings                  `json:"settings"`
}

// WalletInfo is the public part of the wallet state. It never holds secrets
// and can be cached while the vault is locked.
type WalletInfo struct {
	Accounts map[uint32]wallet.Account
	Settings Settings
}

// WalletStatus describes the vault from the operator point of view.
type WalletStatus struct {
	Initialized      bool  `json:"initialized"`
	Unlocked         bool  `json:"unlocked"`
	FailedAttempts   int   `json:"failedAttempts"`
	LockoutRemaining int64 `json:"lockoutRemainingSeconds"`
}

// NewWalletState returns a state for the given mnemonic with no derived
// accounts on the given network.
func NewWalletState(mnemonic []string, network string) (*WalletState, error) {
	if !wallet.IsMnemonicValid(mnemonic) {
		return nil, wallet.ErrInvalidMnemonic
	}
	if len(mnemonic) != wallet.MnemonicWords {
		return nil, fmt.Errorf(
			"%w: expected %d words, got %d", wallet.ErrInvalidMnemonic,
			wallet.MnemonicWords, len(mnemonic),
		)
	}
	if _, err := wallet.NetworkByName(network); err != nil {
		return nil, err
	}
	return &WalletState{
		Mnemonic: append([]string{}, mnemonic...),
		Accounts: map[uint32]wallet.Account{},
		Settings: Settings{Network: strings.ToLower(network)},
	}, nil
}

// Account returns the derived account at the given index.
func (s *WalletState) Account(index uint32) (wallet.Account, bool) {
	acc, ok := s.Accounts[index]
	return acc, ok
}

// AddAccount records a newly derived account. Accounts are immutable once
// recorded, so adding an already known index is a no-op and returns false.
func (s *WalletState) AddAccount(account wallet.Account) bool {
	if s.Accounts == nil {
		s.Accounts = map[uint32]wallet.Account{}
	}
	if _, ok := s.Accounts[account.Index]; ok {
		return false
	}
	s.Accounts[account.Index] = account
	return true
}

// AddToken appends a token to the tracked list, refusing duplicates by denom.
func (s *WalletState) AddToken(token Token) error {
	for _, t := range s.Settings.Tokens {
		if t.Denom == token.Denom {
			return ErrTokenAlreadyAdded
		}
	}
	s.Settings.Tokens = append(s.Settings.Tokens, token)
	return nil
}

// Info returns a copy of the public part of the state.
func (s *WalletState) Info() WalletInfo {
	accounts := make(map[uint32]wallet.Account, len(s.Accounts))
	for i, a := range s.Accounts {
		accounts[i] = a
	}
	settings := s.Settings
	settings.Tokens = append([]Token{}, s.Settings.Tokens...)
	return WalletInfo{
		Accounts: accounts,
		Settings: settings,
	}
}

// Wipe drops the mnemonic words. Go strings can't be zeroed, so this only
// releases the references.
func (s *WalletState) Wipe() {
	for i := range s.Mnemonic {
		s.Mnemonic[i] = ""
	}
	s.Mnemonic = nil
}

// AccountIndexes returns the derived account indexes in ascending order.
func (i WalletInfo) AccountIndexes() []uint32 {
	indexes := make([]uint32, 0, len(i.Accounts))
	for index := range i.Accounts {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
	return indexes
}
