package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code string
	}{
		{domain.ErrNotConnected, domain.CodeNotConnected},
		{fmt.Errorf("decode: %w", domain.ErrInvalidRequest), domain.CodeInvalidRequest},
		{domain.ErrApprovalRejected, domain.CodeApprovalRejected},
		{domain.ErrApprovalTimeout, domain.CodeApprovalTimeout},
		{domain.ErrVaultLocked, domain.CodeVaultLocked},
		{wallet.ErrDecryptionFailed, domain.CodeDecryptionFailed},
		{&domain.LockedOutError{Remaining: time.Minute}, domain.CodeLockedOut},
		{wallet.ErrNullSeed, domain.CodeDerivationFailed},
		{wallet.ErrNullMessage, domain.CodeSigningFailed},
		{fmt.Errorf("%w: timeout", domain.ErrBroadcastFailed), domain.CodeBroadcastFailed},
		{errors.New("boom"), domain.CodeInternal},
	}

	for _, tt := range tests {
		require.Equal(t, tt.code, domain.ErrorCode(tt.err), tt.err.Error())
	}
	require.Empty(t, domain.ErrorCode(nil))
}

func TestLockedOutError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("unlock: %w", &domain.LockedOutError{
		Remaining: 90*time.Second + 100*time.Millisecond,
	})
	require.ErrorIs(t, err, domain.ErrLockedOut)

	res := domain.NewErrorResponse("1", err)
	require.Equal(t, domain.ResponseError, res.Type)
	require.Equal(t, domain.CodeLockedOut, res.Code)
	require.Equal(t, int64(91), res.RemainingSeconds)
}
