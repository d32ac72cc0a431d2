package wallet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/shopspring/decimal"
)

const transactionDomain = "vaultgate-tx-v1"

var (
	// ErrNullChainID ...
	ErrNullChainID = errors.New("transaction chain id must not be null")
	// ErrNullSender ...
	ErrNullSender = errors.New("transaction sender must not be null")
	// ErrNullReceiver ...
	ErrNullReceiver = errors.New("transaction receiver must not be null")
	// ErrNullDenom ...
	ErrNullDenom = errors.New("transaction denom must not be null")
	// ErrInvalidAmount ...
	ErrInvalidAmount = errors.New("transaction amount must be positive")
	// ErrInvalidFee ...
	ErrInvalidFee = errors.New("transaction fee must not be negative")
)

// Transaction is a value transfer between two vault addresses.
type Transaction struct {
	ChainID  string          `json:"chainId"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Denom    string          `json:"denom"`
	Fee      decimal.Decimal `json:"fee"`
	Sequence uint64          `json:"sequence"`
	Memo     string          `json:"memo,omitempty"`
}

// Validate checks that the transaction has every mandatory field.
func (tx Transaction) Validate() error {
	if tx.ChainID == "" {
		return ErrNullChainID
	}
	if tx.From == "" {
		return ErrNullSender
	}
	if tx.To == "" {
		return ErrNullReceiver
	}
	if tx.Denom == "" {
		return ErrNullDenom
	}
	if !tx.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if tx.Fee.IsNegative() {
		return ErrInvalidFee
	}
	return nil
}

// Serialize returns the canonical binary form of the transaction.
// Fields are written in a fixed order, each length-prefixed, with amounts
// normalized so that "1.50" and "1.5" serialize identically.
func (tx Transaction) Serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = appendLengthPrefixed(buf, []byte(transactionDomain))
	buf = appendLengthPrefixed(buf, []byte(tx.ChainID))
	buf = appendLengthPrefixed(buf, []byte(tx.From))
	buf = appendLengthPrefixed(buf, []byte(tx.To))
	buf = appendLengthPrefixed(buf, []byte(tx.Amount.String()))
	buf = appendLengthPrefixed(buf, []byte(tx.Denom))
	buf = appendLengthPrefixed(buf, []byte(tx.Fee.String()))
	buf = binary.BigEndian.AppendUint64(buf, tx.Sequence)
	buf = appendLengthPrefixed(buf, []byte(tx.Memo))
	return buf
}

// Hash returns the sha256 digest of the canonical serialization. This is the
// value actually signed.
func (tx Transaction) Hash() []byte {
	h := sha256.Sum256(tx.Serialize())
	return h[:]
}

// SignedTransaction is a transaction together with the signer's public key
// and the ed25519 signature over its hash.
type SignedTransaction struct {
	Transaction Transaction `json:"transaction"`
	PublicKey   []byte      `json:"publicKey"`
	Signature   []byte      `json:"signature"`
}
