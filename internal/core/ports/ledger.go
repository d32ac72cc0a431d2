package ports

import (
	"context"

	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

// LedgerClient is the remote ledger RPC. Implementations apply their own
// timeout and retry policy.
type LedgerClient interface {
	GetBalance(ctx context.Context, address string) (*domain.Balance, error)
	BroadcastTransaction(
		ctx context.Context, tx wallet.SignedTransaction,
	) (string, error)
}
