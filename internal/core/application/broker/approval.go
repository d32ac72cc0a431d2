package broker

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

type pendingApproval struct {
	seq     uint64
	request *domain.ApprovalRequest
	payload interface{}
	// account is the one active when the request was made. Signing
	// requests are executed with it even if the selection changes.
	account walletcore.Account
	timer   *time.Timer

	once   sync.Once
	done   chan struct{}
	result interface{}
	err    error
}

func (p *pendingApproval) resolve(result interface{}, err error) {
	p.once.Do(func() {
		p.result, p.err = result, err
		close(p.done)
	})
}

// wait blocks until the request is settled. A caller that goes away does not
// cancel the request, which stays pending until decided or expired.
func (p *pendingApproval) wait(ctx context.Context) (interface{}, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Broker) enqueue(
	req domain.Request, payload interface{}, account walletcore.Account,
) (*pendingApproval, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.enqueueLocked(req, payload, account)
}

// enqueueConnect coalesces a CONNECT from an origin that already has one
// pending: every caller waits on the same request and gets its outcome.
func (b *Broker) enqueueConnect(
	req domain.Request, payload domain.ConnectPayload,
) (*pendingApproval, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if p, ok := b.connecting[req.Origin]; ok {
		log.WithField("origin", req.Origin).Debug(
			"connect request coalesced into pending one",
		)
		return p, nil
	}
	p, err := b.enqueueLocked(req, payload, walletcore.Account{})
	if err != nil {
		return nil, err
	}
	b.connecting[req.Origin] = p
	return p, nil
}

func (b *Broker) enqueueLocked(
	req domain.Request, payload interface{}, account walletcore.Account,
) (*pendingApproval, error) {
	if b.closed {
		return nil, ErrBrokerClosed
	}

	request := domain.NewApprovalRequest(
		req.Type, req.Origin, req.Payload, b.approvalTimeout,
	)
	b.seq++
	p := &pendingApproval{
		seq:     b.seq,
		request: request,
		payload: payload,
		account: account,
		done:    make(chan struct{}),
	}
	p.timer = time.AfterFunc(b.approvalTimeout, func() {
		b.expire(request.ID)
	})
	b.pending[request.ID] = p
	b.metrics.pendingApprovals.Inc()

	log.WithFields(log.Fields{
		"id":     request.ID,
		"kind":   request.Kind,
		"origin": request.Origin,
	}).Info("approval requested")
	return p, nil
}

// take removes the pending request with the given id from the queue.
func (b *Broker) take(id string) (*pendingApproval, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	delete(b.pending, id)
	if b.connecting[p.request.Origin] == p {
		delete(b.connecting, p.request.Origin)
	}
	p.timer.Stop()
	b.metrics.pendingApprovals.Dec()
	return p, nil
}

// ListPending returns the requests waiting for a decision, oldest first.
func (b *Broker) ListPending() []domain.ApprovalRequest {
	b.lock.Lock()
	pending := make([]*pendingApproval, 0, len(b.pending))
	for _, p := range b.pending {
		pending = append(pending, p)
	}
	b.lock.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].seq < pending[j].seq
	})
	requests := make([]domain.ApprovalRequest, 0, len(pending))
	for _, p := range pending {
		requests = append(requests, *p.request)
	}
	return requests
}

// Approve executes the operation of the given request and resolves its
// caller with the outcome. The vault must be unlocked at decision time,
// otherwise the caller gets ErrVaultLocked. Either way the request leaves
// the queue.
func (b *Broker) Approve(ctx context.Context, id string) error {
	p, err := b.take(id)
	if err != nil {
		return err
	}
	if err := p.request.Approve(); err != nil {
		p.resolve(nil, err)
		return err
	}

	if !b.wallet.Session().IsUnlocked() {
		p.resolve(nil, domain.ErrVaultLocked)
		b.metrics.decisions.WithLabelValues(
			string(p.request.Kind), "VAULT_LOCKED",
		).Inc()
		return domain.ErrVaultLocked
	}

	result, err := b.execute(ctx, p)
	p.resolve(result, err)
	b.metrics.decisions.WithLabelValues(
		string(p.request.Kind), p.request.Status.String(),
	).Inc()

	logger := log.WithFields(log.Fields{
		"id":   p.request.ID,
		"kind": p.request.Kind,
	})
	if err != nil {
		logger.WithError(err).Warn("approved request failed")
		return err
	}
	logger.Info("request approved")
	return nil
}

// Reject resolves the caller of the given request with ErrApprovalRejected.
func (b *Broker) Reject(id, reason string) error {
	p, err := b.take(id)
	if err != nil {
		return err
	}
	if err := p.request.Reject(); err != nil {
		p.resolve(nil, err)
		return err
	}

	rejectErr := domain.ErrApprovalRejected
	if reason != "" {
		rejectErr = fmt.Errorf("%w: %s", domain.ErrApprovalRejected, reason)
	}
	p.resolve(nil, rejectErr)
	b.metrics.decisions.WithLabelValues(
		string(p.request.Kind), p.request.Status.String(),
	).Inc()

	log.WithField("id", id).Info("request rejected")
	return nil
}

func (b *Broker) expire(id string) {
	p, err := b.take(id)
	if err != nil {
		return
	}
	if err := p.request.Expire(); err != nil {
		p.resolve(nil, err)
		log.WithError(err).WithField("id", id).Warn(
			"failed to expire approval request",
		)
		return
	}

	p.resolve(nil, domain.ErrApprovalTimeout)
	b.metrics.decisions.WithLabelValues(
		string(p.request.Kind), p.request.Status.String(),
	).Inc()

	log.WithField("id", id).Info("approval request expired")
}

func (b *Broker) execute(
	ctx context.Context, p *pendingApproval,
) (interface{}, error) {
	switch p.request.Kind {
	case domain.MessageConnect:
		payload := p.payload.(domain.ConnectPayload)
		app, err := domain.NewConnectedApp(
			p.request.Origin, payload.DisplayName, payload.Icon,
		)
		if err != nil {
			return nil, err
		}
		identity, err := b.identity()
		if err != nil {
			return nil, err
		}
		if err := b.apps.UpsertApp(ctx, *app); err != nil {
			return nil, err
		}
		log.WithField("origin", app.Origin).Info("app connected")
		return identity, nil

	case domain.MessageSignMessage:
		payload := p.payload.(domain.SignMessagePayload)
		account := p.account
		sig, err := b.wallet.SignMessage(account.Index, []byte(payload.Message))
		if err != nil {
			return nil, err
		}
		return signedMessage{
			Signature: hex.EncodeToString(sig),
			PublicKey: hex.EncodeToString(account.PublicKey),
			Address:   account.Address,
		}, nil

	case domain.MessageSignTransaction:
		payload := p.payload.(domain.TransactionPayload)
		signed, err := b.wallet.SignTransaction(p.account.Index, payload.Transaction)
		if err != nil {
			return nil, err
		}
		return signedTransaction{
			Signature: hex.EncodeToString(signed.Signature),
			PublicKey: hex.EncodeToString(signed.PublicKey),
			Hash:      hex.EncodeToString(signed.Transaction.Hash()),
		}, nil

	case domain.MessageSendTransaction:
		payload := p.payload.(domain.TransactionPayload)
		signed, err := b.wallet.SignTransaction(p.account.Index, payload.Transaction)
		if err != nil {
			return nil, err
		}
		result := domain.SendTransactionResult{
			Signature: hex.EncodeToString(signed.Signature),
		}
		hash, err := b.ledger.BroadcastTransaction(ctx, *signed)
		if err != nil {
			log.WithError(err).Warn("failed to broadcast signed transaction")
			result.BroadcastError = fmt.Errorf(
				"%w: %v", domain.ErrBroadcastFailed, err,
			).Error()
			return result, nil
		}
		result.Hash = hash
		return result, nil

	case domain.MessageAddToken:
		payload := p.payload.(domain.AddTokenPayload)
		if err := b.wallet.AddToken(ctx, payload.Token); err != nil {
			return nil, err
		}
		return tokenAdded{Token: payload.Token}, nil

	default:
		return nil, domain.ErrInvalidRequest
	}
}
