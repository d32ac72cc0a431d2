package httpinterface

import (
	"strings"

	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

type genSeedReply struct {
	Mnemonic []string `json:"mnemonic"`
}

type initWalletRequest struct {
	// Mnemonic is a space separated list of words.
	Mnemonic string `json:"mnemonic"`
	Pin      string `json:"pin"`
}

func (r initWalletRequest) mnemonic() []string {
	return strings.Fields(r.Mnemonic)
}

func (r initWalletRequest) validate() error {
	if len(r.mnemonic()) <= 0 {
		return wallet.ErrNullMnemonic
	}
	if r.Pin == "" {
		return wallet.ErrNullPin
	}
	return nil
}

type unlockWalletRequest struct {
	Pin string `json:"pin"`
}

type changePinRequest struct {
	OldPin string `json:"oldPin"`
	NewPin string `json:"newPin"`
}

type selectAccountRequest struct {
	Index uint32 `json:"index"`
}

type setNetworkRequest struct {
	Network string `json:"network"`
}

type decisionRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type disconnectAppRequest struct {
	Origin string `json:"origin"`
}

type issueTokenRequest struct {
	Origin     string `json:"origin"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

type issueTokenReply struct {
	Token string `json:"token"`
}

type accountReply struct {
	Index     uint32 `json:"index"`
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

type infoReply struct {
	Network       string         `json:"network"`
	ActiveAccount uint32         `json:"activeAccount"`
	Accounts      []accountReply `json:"accounts"`
	Tokens        []domain.Token `json:"tokens"`
}

type listApprovalsReply struct {
	Approvals []domain.ApprovalRequest `json:"approvals"`
}

type appReply struct {
	Origin         string `json:"origin"`
	DisplayName    string `json:"displayName"`
	Icon           string `json:"icon,omitempty"`
	ConnectedAt    int64  `json:"connectedAt"`
	LastActivityAt int64  `json:"lastActivityAt"`
}

type listAppsReply struct {
	Apps []appReply `json:"apps"`
}
