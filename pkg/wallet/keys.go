package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// masterKeyDomain is the SLIP-10 HMAC key for the ed25519 curve.
var masterKeyDomain = []byte("ed25519 seed")

// extendedKey is a SLIP-10 node: 32-byte private key followed by its 32-byte
// chain code.
type extendedKey struct {
	key       []byte
	chainCode []byte
}

func (k *extendedKey) wipe() {
	if k == nil {
		return
	}
	zero(k.key)
	zero(k.chainCode)
}

func newMasterKey(seed []byte) *extendedKey {
	mac := hmac.New(sha512.New, masterKeyDomain)
	mac.Write(seed)

	return splitNode(mac.Sum(nil))
}

// splitNode copies an HMAC-SHA512 output into a node and zeroes the output.
func splitNode(sum []byte) *extendedKey {
	defer zero(sum)

	return &extendedKey{
		key:       append([]byte{}, sum[:32]...),
		chainCode: append([]byte{}, sum[32:]...),
	}
}

// child derives the hardened child at the given index. Ed25519 has no public
// derivation, so non-hardened indexes are rejected.
func (k *extendedKey) child(index uint32) (*extendedKey, error) {
	if index < hdkeychain.HardenedKeyStart {
		return nil, ErrNonHardenedDerivationPath
	}

	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, k.key...)
	data = binary.BigEndian.AppendUint32(data, index)
	defer zero(data)

	mac := hmac.New(sha512.New, k.chainCode)
	mac.Write(data)

	return splitNode(mac.Sum(nil)), nil
}

// deriveSigningKey walks the given path from the seed master node and returns
// the ed25519 private key of the leaf. Every intermediate node is wiped.
// The caller owns the returned key and must zero it.
func deriveSigningKey(seed []byte, path DerivationPath) (ed25519.PrivateKey, error) {
	if err := validateSeed(seed); err != nil {
		return nil, err
	}
	if len(path) <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrDerivationFailed, ErrNullDerivationPath)
	}

	node := newMasterKey(seed)
	for _, step := range path {
		next, err := node.child(step)
		node.wipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
		}
		node = next
	}
	defer node.wipe()

	return ed25519.NewKeyFromSeed(node.key), nil
}

func publicKeyOf(prvkey ed25519.PrivateKey) []byte {
	pubkey := prvkey.Public().(ed25519.PublicKey)
	return append([]byte{}, pubkey...)
}
