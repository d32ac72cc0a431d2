package httpinterface

import (
	"errors"
	"net/http"

	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/pkg/macaroons"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

var (
	errMethodNotAllowed     = errors.New("method not allowed")
	errUnsupportedMediaType = errors.New("content type must be application/json")
	errMissingOrigin        = errors.New("missing origin")
	errMissingID            = errors.New("missing approval request id")

	badRequestErrors = []error{
		domain.ErrInvalidRequest,
		domain.ErrNullOrigin,
		domain.ErrAccountNotFound,
		wallet.ErrNullMnemonic,
		wallet.ErrInvalidMnemonic,
		wallet.ErrNullPin,
		wallet.ErrUnknownNetwork,
		wallet.ErrOutOfRangeAccountIndex,
		errMissingOrigin,
		errMissingID,
	}
	notFoundErrors = []error{
		domain.ErrApprovalNotFound,
		domain.ErrConnectedAppNotFound,
	}
	unauthorizedErrors = []error{
		macaroons.ErrMissingMacaroon,
		macaroons.ErrInvalidMacaroon,
	}
	conflictErrors = []error{
		domain.ErrWalletAlreadyInitialized,
		domain.ErrWalletNotInitialized,
		session.ErrAlreadyUnlocked,
		session.ErrUnlockInProgress,
	}
)

// httpStatus maps an application error to the status code of the reply.
func httpStatus(err error) int {
	if errors.Is(err, errMethodNotAllowed) {
		return http.StatusMethodNotAllowed
	}
	if errors.Is(err, errUnsupportedMediaType) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, macaroons.ErrPermissionDenied) {
		return http.StatusForbidden
	}
	for _, e := range unauthorizedErrors {
		if errors.Is(err, e) {
			return http.StatusUnauthorized
		}
	}
	for _, e := range badRequestErrors {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	for _, e := range notFoundErrors {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	for _, e := range conflictErrors {
		if errors.Is(err, e) {
			return http.StatusConflict
		}
	}

	switch domain.ErrorCode(err) {
	case domain.CodeDecryptionFailed:
		return http.StatusUnauthorized
	case domain.CodeLockedOut:
		return http.StatusTooManyRequests
	case domain.CodeVaultLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

type errorReply struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	RemainingSeconds int64  `json:"remainingSeconds,omitempty"`
}

func newErrorReply(err error) errorReply {
	reply := errorReply{Error: err.Error(), Code: domain.ErrorCode(err)}
	var lockedOut *domain.LockedOutError
	if errors.As(err, &lockedOut) {
		reply.RemainingSeconds = lockedOut.RemainingSeconds()
	}
	return reply
}
