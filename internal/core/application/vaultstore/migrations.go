package vaultstore

import (
	"encoding/json"
	"strings"

	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// migrateMnemonicOnly upgrades a version 1 vault, whose plaintext is just the
// space separated mnemonic, to a full wallet state with no derived accounts.
func migrateMnemonicOnly(plaintext []byte, defaultNetwork string) ([]byte, error) {
	mnemonic := strings.Fields(string(plaintext))
	state, err := domain.NewWalletState(mnemonic, defaultNetwork)
	if err != nil {
		return nil, err
	}
	defer state.Wipe()

	return json.Marshal(state)
}
