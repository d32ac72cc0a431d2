package broker

import "github.com/vaultgate/vaultgate/internal/core/domain"

type pong struct {
	Type domain.MessageType `json:"type"`
}

type isConnected struct {
	Connected bool `json:"connected"`
}

type disconnected struct {
	Disconnected bool `json:"disconnected"`
}

type publicKey struct {
	PublicKey string `json:"publicKey"`
}

type networkInfo struct {
	Network string `json:"network"`
	ChainID string `json:"chainId"`
}

type signedMessage struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
}

type signedTransaction struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Hash      string `json:"hash"`
}

type tokenAdded struct {
	Token domain.Token `json:"token"`
}
