package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vaultgate/vaultgate/pkg/wallet"
)

var (
	// ErrNotConnected is returned when an origin performs an operation that
	// requires a prior approved CONNECT.
	ErrNotConnected = errors.New("origin is not connected")
	// ErrInvalidRequest is returned for malformed envelopes, unknown message
	// types or invalid payloads.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrApprovalRejected is returned when the user declines a request.
	ErrApprovalRejected = errors.New("request rejected by user")
	// ErrApprovalTimeout is returned when a request is not decided in time.
	ErrApprovalTimeout = errors.New("approval request expired")
	// ErrVaultLocked is returned when an operation needs the unlocked secret.
	ErrVaultLocked = errors.New("vault is locked")
	// ErrDecryptionFailed is returned for a wrong pin or a corrupted envelope.
	ErrDecryptionFailed = wallet.ErrDecryptionFailed
	// ErrLockedOut is matched by any *LockedOutError.
	ErrLockedOut = errors.New("too many failed unlock attempts")
	// ErrDerivationFailed ...
	ErrDerivationFailed = wallet.ErrDerivationFailed
	// ErrSigningFailed ...
	ErrSigningFailed = wallet.ErrSigningFailed
	// ErrBroadcastFailed is returned when a signed transaction can't be
	// relayed to the ledger.
	ErrBroadcastFailed = errors.New("broadcast failed")

	// ErrWalletNotInitialized ...
	ErrWalletNotInitialized = errors.New("wallet is not initialized")
	// ErrWalletAlreadyInitialized ...
	ErrWalletAlreadyInitialized = errors.New("wallet is already initialized")
	// ErrApprovalNotFound ...
	ErrApprovalNotFound = errors.New("approval request not found")
	// ErrApprovalNotPending ...
	ErrApprovalNotPending = errors.New("approval request is not pending")
	// ErrConnectedAppNotFound ...
	ErrConnectedAppNotFound = errors.New("connected app not found")
	// ErrNullOrigin ...
	ErrNullOrigin = errors.New("origin must not be null")
	// ErrTokenAlreadyAdded ...
	ErrTokenAlreadyAdded = errors.New("token is already in the list")
	// ErrAccountNotFound ...
	ErrAccountNotFound = errors.New("account not derived yet")
)

// LockedOutError is returned while unlock attempts are refused after too many
// consecutive failures.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf(
		"%s, retry in %s", ErrLockedOut, e.Remaining.Round(time.Second),
	)
}

// Is makes errors.Is(err, ErrLockedOut) hold for any *LockedOutError.
func (e *LockedOutError) Is(target error) bool {
	return target == ErrLockedOut
}

// RemainingSeconds returns the lockout window left, rounded up.
func (e *LockedOutError) RemainingSeconds() int64 {
	return int64(math.Ceil(e.Remaining.Seconds()))
}

// Wire error codes.
const (
	CodeNotConnected     = "NOT_CONNECTED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeApprovalRejected = "APPROVAL_REJECTED"
	CodeApprovalTimeout  = "APPROVAL_TIMEOUT"
	CodeVaultLocked      = "VAULT_LOCKED"
	CodeDecryptionFailed = "DECRYPTION_FAILED"
	CodeLockedOut        = "LOCKED_OUT"
	CodeDerivationFailed = "DERIVATION_FAILED"
	CodeSigningFailed    = "SIGNING_FAILED"
	CodeBroadcastFailed  = "BROADCAST_FAILED"
	CodeInternal         = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotConnected, CodeNotConnected},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrApprovalRejected, CodeApprovalRejected},
	{ErrApprovalTimeout, CodeApprovalTimeout},
	{ErrVaultLocked, CodeVaultLocked},
	{ErrWalletNotInitialized, CodeVaultLocked},
	{ErrDecryptionFailed, CodeDecryptionFailed},
	{ErrLockedOut, CodeLockedOut},
	{ErrDerivationFailed, CodeDerivationFailed},
	{ErrSigningFailed, CodeSigningFailed},
	{ErrBroadcastFailed, CodeBroadcastFailed},
}

// ErrorCode maps an error to its wire code. Unknown errors map to INTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

var errMissingPayload = errors.New("missing payload")

func invalidPayload(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}
