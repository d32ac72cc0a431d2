package ports

import (
	"context"

	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// RequestHandler processes one protocol envelope and returns its response.
// It blocks until the response is ready, possibly for as long as an approval
// takes.
type RequestHandler interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

// Transport carries protocol envelopes between callers and a RequestHandler.
//
// Implementations must deliver envelopes in order per channel, attach a
// trustworthy origin to every request (the handler can't verify it) and apply
// rate limiting before requests reach the handler.
type Transport interface {
	Start(handler RequestHandler) error
	// Notify pushes an event to every channel opened by the given origin.
	Notify(origin string, event domain.Event)
	Stop()
}
