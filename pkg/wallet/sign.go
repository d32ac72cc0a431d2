package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"
)

const messagePrefix = "vaultgate signed message:\n"

// MessageHash returns the digest signed by SignMessage:
// sha256(prefix || decimal length || message).
func MessageHash(message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(messagePrefix))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write(message)
	return h.Sum(nil)
}

// SignMessageOpts is the struct given to SignMessage method
type SignMessageOpts struct {
	Seed    []byte
	Index   uint32
	Message []byte
}

func (o SignMessageOpts) validate() error {
	if err := validateSeed(o.Seed); err != nil {
		return err
	}
	if o.Index > MaxHardenedValue {
		return ErrOutOfRangeAccountIndex
	}
	if len(o.Message) <= 0 {
		return ErrNullMessage
	}
	return nil
}

// SignMessage signs the prefixed hash of the given message with the key of
// the given account index.
func SignMessage(opts SignMessageOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return signDigest(opts.Seed, opts.Index, MessageHash(opts.Message))
}

// SignTransactionOpts is the struct given to SignTransaction method
type SignTransactionOpts struct {
	Seed        []byte
	Index       uint32
	Network     Network
	Transaction *Transaction
}

func (o SignTransactionOpts) validate() error {
	if err := validateSeed(o.Seed); err != nil {
		return err
	}
	if o.Index > MaxHardenedValue {
		return ErrOutOfRangeAccountIndex
	}
	if o.Transaction == nil {
		return ErrNullTransaction
	}
	if err := o.Transaction.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	if o.Transaction.ChainID != o.Network.ChainID {
		return fmt.Errorf(
			"%w: chain id %s does not match network %s",
			ErrSigningFailed, o.Transaction.ChainID, o.Network.Name,
		)
	}
	return nil
}

// SignTransaction signs the canonical hash of the given transaction with the
// key of the given account index. The sender of the transaction must be the
// address of that account.
func SignTransaction(opts SignTransactionOpts) (*SignedTransaction, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	prvkey, err := deriveSigningKey(opts.Seed, AccountDerivationPath(opts.Index))
	if err != nil {
		return nil, err
	}
	defer zero(prvkey)

	pubkey := publicKeyOf(prvkey)
	addr, err := EncodeAddress(opts.Network, pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	if addr != opts.Transaction.From {
		return nil, fmt.Errorf(
			"%w: sender %s is not account %d", ErrSigningFailed,
			opts.Transaction.From, opts.Index,
		)
	}

	sig := ed25519.Sign(prvkey, opts.Transaction.Hash())
	return &SignedTransaction{
		Transaction: *opts.Transaction,
		PublicKey:   pubkey,
		Signature:   sig,
	}, nil
}

// VerifyMessage returns whether sig is a valid signature of message for the
// given public key.
func VerifyMessage(pubkey, message, sig []byte) bool {
	return verify(pubkey, MessageHash(message), sig)
}

// VerifyTransaction returns whether the signed transaction carries a valid
// signature of its own public key.
func VerifyTransaction(tx SignedTransaction) bool {
	return verify(tx.PublicKey, tx.Transaction.Hash(), tx.Signature)
}

func verify(pubkey, digest, sig []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), digest, sig)
}

func signDigest(seed []byte, index uint32, digest []byte) ([]byte, error) {
	prvkey, err := deriveSigningKey(seed, AccountDerivationPath(index))
	if err != nil {
		return nil, err
	}
	defer zero(prvkey)

	return ed25519.Sign(prvkey, digest), nil
}
