package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const addressHashSize = 20

// Network identifies the ledger a vault account lives on. The bech32 human
// readable part is the only network-dependent piece of an address.
type Network struct {
	Name      string `json:"name"`
	Bech32HRP string `json:"bech32Hrp"`
	ChainID   string `json:"chainId"`
}

var (
	// MainNet ...
	MainNet = Network{
		Name:      "mainnet",
		Bech32HRP: "vault",
		ChainID:   "vaultgate-1",
	}
	// TestNet ...
	TestNet = Network{
		Name:      "testnet",
		Bech32HRP: "tvault",
		ChainID:   "vaultgate-testnet-1",
	}

	networks = map[string]Network{
		MainNet.Name: MainNet,
		TestNet.Name: TestNet,
	}
)

// NetworkByName returns the known network with the given name.
func NetworkByName(name string) (Network, error) {
	net, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return net, nil
}

// EncodeAddress returns the bech32 encoding of the first 20 bytes of the
// sha256 hash of the given ed25519 public key.
func EncodeAddress(net Network, pubkey []byte) (string, error) {
	if len(pubkey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}
	if net.Bech32HRP == "" {
		return "", ErrUnknownNetwork
	}

	hash := sha256.Sum256(pubkey)
	data, err := bech32.ConvertBits(hash[:addressHashSize], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(net.Bech32HRP, data)
}

// DecodeAddress validates the given address against the network prefix and
// returns the 20-byte public key hash it commits to.
func DecodeAddress(net Network, addr string) ([]byte, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != net.Bech32HRP {
		return nil, ErrInvalidAddressPrefix
	}
	hash, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(hash) != addressHashSize {
		return nil, ErrInvalidAddress
	}
	return hash, nil
}
