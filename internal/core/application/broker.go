package application

import (
	"context"

	"github.com/vaultgate/vaultgate/internal/core/application/broker"
	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// BrokerService is both the handler of the requests coming from external
// origins and the operator's view of the approvals they are waiting on.
type BrokerService interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
	ListPending() []domain.ApprovalRequest
	Approve(ctx context.Context, id string) error
	Reject(id, reason string) error
	ListApps(ctx context.Context) ([]domain.ConnectedApp, error)
	DisconnectApp(ctx context.Context, origin string) error
	Close()
}

func NewBrokerService(cfg broker.Config) (BrokerService, error) {
	return broker.New(cfg)
}
