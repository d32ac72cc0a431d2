package broker_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/core/application/broker"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/infrastructure/storage/db/inmemory"
	"github.com/vaultgate/vaultgate/pkg/securemem"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	testIterations = 1000
	testPin        = "123456"
	testOrigin     = "https://dapp.example.com"
)

var (
	ctx          = context.Background()
	testMnemonic = strings.Split(
		"leave dice fine decrease dune ribbon ocean earn lunar account silver "+
			"admit cheap fringe disorder trade because trade steak clock grace "+
			"video jacket equal",
		" ",
	)
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetBalance(
	ctx context.Context, address string,
) (*domain.Balance, error) {
	args := m.Called(ctx, address)
	var res *domain.Balance
	if a := args.Get(0); a != nil {
		res = a.(*domain.Balance)
	}
	return res, args.Error(1)
}

func (m *mockLedger) BroadcastTransaction(
	ctx context.Context, tx walletcore.SignedTransaction,
) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

type testEnv struct {
	broker   *broker.Broker
	wallet   *wallet.Service
	apps     domain.ConnectedAppRepository
	ledger   *mockLedger
	events   *pubsub.Service
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, approvalTimeout time.Duration) *testEnv {
	store, err := vaultstore.NewService(
		inmemory.NewKVStore(), testIterations, "testnet",
	)
	require.NoError(t, err)
	_, err = store.Create(ctx, testMnemonic, testPin)
	require.NoError(t, err)

	sess, err := session.NewManager(store, securemem.New(), session.Config{})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	events := pubsub.NewService()
	walletSvc, err := wallet.NewService(store, sess, events)
	require.NoError(t, err)
	require.NoError(t, walletSvc.Unlock(ctx, testPin))

	apps := inmemory.NewConnectedAppRepository()
	ledger := &mockLedger{}
	registry := prometheus.NewRegistry()

	b, err := broker.New(broker.Config{
		Wallet:          walletSvc,
		Apps:            apps,
		Ledger:          ledger,
		Events:          events,
		ApprovalTimeout: approvalTimeout,
		Registerer:      registry,
	})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return &testEnv{b, walletSvc, apps, ledger, events, registry}
}

func newRequest(
	t *testing.T, msgType domain.MessageType, origin string, payload interface{},
) domain.Request {
	var raw json.RawMessage
	if payload != nil {
		buf, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = buf
	}
	return domain.Request{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Origin:    origin,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (e *testEnv) handleAsync(req domain.Request) <-chan domain.Response {
	resCh := make(chan domain.Response, 1)
	go func() {
		resCh <- e.broker.Handle(ctx, req)
	}()
	return resCh
}

func (e *testEnv) waitPending(t *testing.T, n int) []domain.ApprovalRequest {
	require.Eventually(t, func() bool {
		return len(e.broker.ListPending()) == n
	}, 2*time.Second, 5*time.Millisecond)
	return e.broker.ListPending()
}

func (e *testEnv) connect(t *testing.T, origin string) domain.Response {
	resCh := e.handleAsync(newRequest(t, domain.MessageConnect, origin, nil))
	pending := e.waitPending(t, 1)
	require.NoError(t, e.broker.Approve(ctx, pending[0].ID))
	return <-resCh
}

func (e *testEnv) activeAccount(t *testing.T) walletcore.Account {
	account, err := e.wallet.ActiveAccount()
	require.NoError(t, err)
	return account
}

func (e *testEnv) testTransaction(t *testing.T) walletcore.Transaction {
	account := e.activeAccount(t)
	return walletcore.Transaction{
		ChainID:  walletcore.TestNet.ChainID,
		From:     account.Address,
		To:       account.Address,
		Amount:   decimal.RequireFromString("10"),
		Denom:    "uvlt",
		Fee:      decimal.RequireFromString("0.002"),
		Sequence: 7,
		Memo:     "test",
	}
}

func TestNew(t *testing.T) {
	env := newTestEnv(t, 0)

	tests := []struct {
		name string
		cfg  broker.Config
	}{
		{"missing wallet", broker.Config{
			Apps: env.apps, Ledger: env.ledger, Events: env.events,
		}},
		{"missing apps", broker.Config{
			Wallet: env.wallet, Ledger: env.ledger, Events: env.events,
		}},
		{"missing ledger", broker.Config{
			Wallet: env.wallet, Apps: env.apps, Events: env.events,
		}},
		{"missing events", broker.Config{
			Wallet: env.wallet, Apps: env.apps, Ledger: env.ledger,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := broker.New(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, 0)

	req := newRequest(t, domain.MessagePing, testOrigin, nil)
	res := env.broker.Handle(ctx, req)
	require.Equal(t, domain.ResponseOK, res.Type)
	require.Equal(t, req.ID, res.ID)

	buf, err := json.Marshal(res.Payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"PONG"}`, string(buf))
}

func TestInvalidRequest(t *testing.T) {
	env := newTestEnv(t, 0)

	tests := []struct {
		name string
		req  domain.Request
	}{
		{"unknown type", newRequest(t, "STEAL_KEYS", testOrigin, nil)},
		{"missing origin", newRequest(t, domain.MessagePing, "", nil)},
		{"missing payload", newRequest(t, domain.MessageSignMessage, testOrigin, nil)},
		{"malformed payload", domain.Request{
			ID: "1", Type: domain.MessageAddToken, Origin: testOrigin,
			Payload: json.RawMessage(`{"token":`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.broker.Handle(ctx, tt.req)
			require.Equal(t, domain.ResponseError, res.Type)
			require.Equal(t, domain.CodeInvalidRequest, res.Code)
		})
	}
}

func TestUnauthorizedRead(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, msgType := range []domain.MessageType{
		domain.MessageGetAddress, domain.MessageGetPublicKey,
		domain.MessageGetBalance, domain.MessageGetNetwork,
		domain.MessageIsConnected,
	} {
		t.Run(string(msgType), func(t *testing.T) {
			res := env.broker.Handle(ctx, newRequest(t, msgType, testOrigin, nil))
			require.Equal(t, domain.ResponseError, res.Type)
			require.Equal(t, domain.CodeNotConnected, res.Code)
		})
	}

	res := env.broker.Handle(ctx, newRequest(
		t, domain.MessageSignMessage, testOrigin,
		domain.SignMessagePayload{Message: "hello"},
	))
	require.Equal(t, domain.CodeNotConnected, res.Code)
	require.Empty(t, env.broker.ListPending())

	env.ledger.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestConnect(t *testing.T) {
	env := newTestEnv(t, 0)
	account := env.activeAccount(t)

	res := env.connect(t, testOrigin)
	require.Equal(t, domain.ResponseOK, res.Type)
	identity := res.Payload.(domain.Identity)
	require.Equal(t, account.Address, identity.Address)
	require.Equal(t, hex.EncodeToString(account.PublicKey), identity.PublicKey)
	require.Equal(t, "testnet", identity.Network)

	app, err := env.apps.GetApp(ctx, testOrigin)
	require.NoError(t, err)
	require.Equal(t, testOrigin, app.DisplayName)

	// Reconnecting needs no approval and creates no new record.
	res = env.broker.Handle(ctx, newRequest(t, domain.MessageConnect, testOrigin, nil))
	require.Equal(t, domain.ResponseOK, res.Type)
	require.Equal(t, identity, res.Payload)
	require.Empty(t, env.broker.ListPending())

	apps, err := env.apps.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)

	res = env.broker.Handle(ctx, newRequest(t, domain.MessageIsConnected, testOrigin, nil))
	require.Equal(t, domain.ResponseOK, res.Type)

	res = env.broker.Handle(ctx, newRequest(t, domain.MessageGetNetwork, testOrigin, nil))
	require.Equal(t, domain.ResponseOK, res.Type)
	buf, err := json.Marshal(res.Payload)
	require.NoError(t, err)
	require.JSONEq(
		t, `{"network":"testnet","chainId":"vaultgate-testnet-1"}`, string(buf),
	)
}

func TestConnectRejected(t *testing.T) {
	env := newTestEnv(t, 0)

	resCh := env.handleAsync(newRequest(
		t, domain.MessageConnect, testOrigin,
		domain.ConnectPayload{DisplayName: "Dapp"},
	))
	pending := env.waitPending(t, 1)
	require.Equal(t, domain.MessageConnect, pending[0].Kind)
	require.Equal(t, testOrigin, pending[0].Origin)

	require.NoError(t, env.broker.Reject(pending[0].ID, "not now"))
	res := <-resCh
	require.Equal(t, domain.ResponseError, res.Type)
	require.Equal(t, domain.CodeApprovalRejected, res.Code)

	_, err := env.apps.GetApp(ctx, testOrigin)
	require.ErrorIs(t, err, domain.ErrConnectedAppNotFound)

	err = env.broker.Reject(pending[0].ID, "")
	require.ErrorIs(t, err, domain.ErrApprovalNotFound)
}

func TestConnectCoalesced(t *testing.T) {
	env := newTestEnv(t, 0)

	first := env.handleAsync(newRequest(t, domain.MessageConnect, testOrigin, nil))
	pending := env.waitPending(t, 1)
	second := env.handleAsync(newRequest(t, domain.MessageConnect, testOrigin, nil))

	// Give the second request the time to reach the queue.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, env.broker.ListPending(), 1)

	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))
	res1, res2 := <-first, <-second
	require.Equal(t, domain.ResponseOK, res1.Type)
	require.Equal(t, domain.ResponseOK, res2.Type)
	require.Equal(t, res1.Payload, res2.Payload)
	require.NotEqual(t, res1.ID, res2.ID)

	apps, err := env.apps.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)
	account := env.activeAccount(t)

	balance := &domain.Balance{
		Available: decimal.RequireFromString("100.5"),
		Staked:    decimal.RequireFromString("20"),
		Rewards:   decimal.Zero,
	}
	env.ledger.On("GetBalance", mock.Anything, account.Address).
		Return(balance, nil).Once()
	env.ledger.On("GetBalance", mock.Anything, account.Address).
		Return(nil, errors.New("ledger unreachable")).Once()

	res := env.broker.Handle(ctx, newRequest(t, domain.MessageGetBalance, testOrigin, nil))
	require.Equal(t, domain.ResponseOK, res.Type)
	require.Equal(t, balance, res.Payload)

	res = env.broker.Handle(ctx, newRequest(t, domain.MessageGetBalance, testOrigin, nil))
	require.Equal(t, domain.ResponseError, res.Type)
	require.Equal(t, domain.CodeInternal, res.Code)

	env.ledger.AssertExpectations(t)
}

func TestSignMessage(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)
	account := env.activeAccount(t)

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSignMessage, testOrigin,
		domain.SignMessagePayload{Message: "hello vault"},
	))
	pending := env.waitPending(t, 1)
	require.Equal(t, domain.MessageSignMessage, pending[0].Kind)
	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))

	res := <-resCh
	require.Equal(t, domain.ResponseOK, res.Type)
	buf, err := json.Marshal(res.Payload)
	require.NoError(t, err)
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(buf, &out))

	sig, err := hex.DecodeString(out["signature"])
	require.NoError(t, err)
	require.True(t, walletcore.VerifyMessage(
		account.PublicKey, []byte("hello vault"), sig,
	))

	// Signing needs a fresh approval every time.
	resCh = env.handleAsync(newRequest(
		t, domain.MessageSignMessage, testOrigin,
		domain.SignMessagePayload{Message: "again"},
	))
	pending = env.waitPending(t, 1)
	require.NoError(t, env.broker.Reject(pending[0].ID, ""))
	require.Equal(t, domain.CodeApprovalRejected, (<-resCh).Code)
}

func TestSignWithAccountOfRequest(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)
	account := env.activeAccount(t)

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSignMessage, testOrigin,
		domain.SignMessagePayload{Message: "hello vault"},
	))
	pending := env.waitPending(t, 1)

	// The user switches account while the request waits for a decision.
	other, err := env.wallet.SelectAccount(ctx, 1)
	require.NoError(t, err)
	require.NotEqual(t, account.PublicKey, other.PublicKey)

	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))

	res := <-resCh
	require.Equal(t, domain.ResponseOK, res.Type)
	buf, err := json.Marshal(res.Payload)
	require.NoError(t, err)
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(buf, &out))
	require.Equal(t, hex.EncodeToString(account.PublicKey), out["publicKey"])
	require.Equal(t, account.Address, out["address"])

	sig, err := hex.DecodeString(out["signature"])
	require.NoError(t, err)
	require.True(t, walletcore.VerifyMessage(
		account.PublicKey, []byte("hello vault"), sig,
	))
	require.False(t, walletcore.VerifyMessage(
		other.PublicKey, []byte("hello vault"), sig,
	))
}

func TestApprovalTimeout(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)
	env.connect(t, testOrigin)

	res := env.broker.Handle(ctx, newRequest(
		t, domain.MessageSignTransaction, testOrigin,
		domain.TransactionPayload{Transaction: env.testTransaction(t)},
	))
	require.Equal(t, domain.ResponseError, res.Type)
	require.Equal(t, domain.CodeApprovalTimeout, res.Code)
	require.Nil(t, res.Payload)
	require.Empty(t, env.broker.ListPending())

	require.Zero(t, gaugeValue(t, env.registry, "vaultgate_broker_pending_approvals"))
	count, err := testutil.GatherAndCount(
		env.registry, "vaultgate_broker_approval_decisions_total",
	)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSendTransactionBroadcastFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)
	account := env.activeAccount(t)
	tx := env.testTransaction(t)

	env.ledger.On("BroadcastTransaction", mock.Anything, mock.Anything).
		Return("", errors.New("connection reset")).Once()

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSendTransaction, testOrigin,
		domain.TransactionPayload{Transaction: tx},
	))
	pending := env.waitPending(t, 1)
	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))

	res := <-resCh
	require.Equal(t, domain.ResponseOK, res.Type)
	result := res.Payload.(domain.SendTransactionResult)
	require.NotEmpty(t, result.Signature)
	require.Empty(t, result.Hash)
	require.Contains(t, result.BroadcastError, "connection reset")

	sig, err := hex.DecodeString(result.Signature)
	require.NoError(t, err)
	require.True(t, walletcore.VerifyTransaction(walletcore.SignedTransaction{
		Transaction: tx,
		PublicKey:   account.PublicKey,
		Signature:   sig,
	}))
	env.ledger.AssertExpectations(t)
}

func TestSendTransaction(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)
	tx := env.testTransaction(t)

	env.ledger.On("BroadcastTransaction", mock.Anything, mock.MatchedBy(
		func(signed walletcore.SignedTransaction) bool {
			return walletcore.VerifyTransaction(signed)
		},
	)).Return("abcd", nil).Once()

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSendTransaction, testOrigin,
		domain.TransactionPayload{Transaction: tx},
	))
	pending := env.waitPending(t, 1)
	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))

	result := (<-resCh).Payload.(domain.SendTransactionResult)
	require.Equal(t, "abcd", result.Hash)
	require.Empty(t, result.BroadcastError)
	env.ledger.AssertExpectations(t)
}

func TestApproveWhileLocked(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSignTransaction, testOrigin,
		domain.TransactionPayload{Transaction: env.testTransaction(t)},
	))
	pending := env.waitPending(t, 1)

	// Locking does not cancel the request.
	env.wallet.Lock()
	require.Len(t, env.broker.ListPending(), 1)

	err := env.broker.Approve(ctx, pending[0].ID)
	require.ErrorIs(t, err, domain.ErrVaultLocked)

	res := <-resCh
	require.Equal(t, domain.CodeVaultLocked, res.Code)
	require.Empty(t, env.broker.ListPending())
}

func TestAddToken(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)

	token := domain.Token{Denom: "uatom", Symbol: "ATOM", Decimals: 6}
	resCh := env.handleAsync(newRequest(
		t, domain.MessageAddToken, testOrigin, domain.AddTokenPayload{Token: token},
	))
	pending := env.waitPending(t, 1)
	require.NoError(t, env.broker.Approve(ctx, pending[0].ID))
	require.Equal(t, domain.ResponseOK, (<-resCh).Type)

	info, err := env.wallet.Info()
	require.NoError(t, err)
	require.Equal(t, []domain.Token{token}, info.Settings.Tokens)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)

	var disconnected []string
	env.events.Disconnected.Subscribe(func(e pubsub.Disconnected) {
		disconnected = append(disconnected, e.Origin)
	})

	res := env.broker.Handle(ctx, newRequest(t, domain.MessageDisconnect, testOrigin, nil))
	require.Equal(t, domain.ResponseOK, res.Type)
	require.Equal(t, []string{testOrigin}, disconnected)

	res = env.broker.Handle(ctx, newRequest(t, domain.MessageGetAddress, testOrigin, nil))
	require.Equal(t, domain.CodeNotConnected, res.Code)

	// Disconnecting an unknown origin is still honoured.
	res = env.broker.Handle(ctx, newRequest(t, domain.MessageDisconnect, "other", nil))
	require.Equal(t, domain.ResponseOK, res.Type)
}

func TestDisconnectApp(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)

	apps, err := env.broker.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, testOrigin, apps[0].Origin)

	var disconnected []string
	env.events.Disconnected.Subscribe(func(e pubsub.Disconnected) {
		disconnected = append(disconnected, e.Origin)
	})

	err = env.broker.DisconnectApp(ctx, testOrigin)
	require.NoError(t, err)
	require.Equal(t, []string{testOrigin}, disconnected)

	apps, err = env.broker.ListApps(ctx)
	require.NoError(t, err)
	require.Empty(t, apps)

	err = env.broker.DisconnectApp(ctx, testOrigin)
	require.ErrorIs(t, err, domain.ErrConnectedAppNotFound)
}

func TestClose(t *testing.T) {
	env := newTestEnv(t, 0)
	env.connect(t, testOrigin)

	resCh := env.handleAsync(newRequest(
		t, domain.MessageSignMessage, testOrigin,
		domain.SignMessagePayload{Message: "hello"},
	))
	env.waitPending(t, 1)

	env.broker.Close()
	res := <-resCh
	require.Equal(t, domain.ResponseError, res.Type)
	require.Equal(t, domain.CodeInternal, res.Code)
	require.Empty(t, env.broker.ListPending())

	res = env.broker.Handle(ctx, newRequest(t, domain.MessagePing, testOrigin, nil))
	require.Equal(t, domain.ResponseError, res.Type)
}

func gaugeValue(
	t *testing.T, registry *prometheus.Registry, name string,
) float64 {
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
