package httpledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"github.com/vaultgate/vaultgate/pkg/circuitbreaker"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

const DefaultRequestTimeout = 15 * time.Second

var (
	// ErrNullBaseURL ...
	ErrNullBaseURL = errors.New("ledger base url must not be null")
	// ErrInvalidBaseURL ...
	ErrInvalidBaseURL = errors.New("ledger base url must be a valid URI")
)

// StatusError is returned when the ledger replies with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger responded with status %d: %s", e.StatusCode, e.Message)
}

type client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewClient returns a ledger client talking to the REST API at baseURL. Every
// call is bounded by requestTimeout and goes through a circuit breaker.
func NewClient(
	baseURL string, requestTimeout time.Duration,
) (ports.LedgerClient, error) {
	if baseURL == "" {
		return nil, ErrNullBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, ErrInvalidBaseURL
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cb:         circuitbreaker.NewCircuitBreaker("ledger"),
	}, nil
}

func (c *client) GetBalance(
	ctx context.Context, address string,
) (*domain.Balance, error) {
	endpoint := fmt.Sprintf(
		"%s/accounts/%s/balance", c.baseURL, url.PathEscape(address),
	)
	resp := balanceResponse{}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain()
}

func (c *client) BroadcastTransaction(
	ctx context.Context, tx wallet.SignedTransaction,
) (string, error) {
	body, err := json.Marshal(newBroadcastRequest(tx))
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/txs", c.baseURL)
	resp := broadcastResponse{}
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", err
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("ledger returned an empty transaction hash")
	}
	return resp.Hash, nil
}

func (c *client) do(
	ctx context.Context, method, endpoint string, body []byte, out interface{},
) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		rs, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer rs.Body.Close()

		buf, err := io.ReadAll(rs.Body)
		if err != nil {
			return nil, err
		}
		if rs.StatusCode < 200 || rs.StatusCode >= 300 {
			return nil, &StatusError{rs.StatusCode, strings.TrimSpace(string(buf))}
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return nil, fmt.Errorf("failed to parse ledger response: %w", err)
		}
		return nil, nil
	})
	return err
}

type balanceResponse struct {
	Available string `json:"available"`
	Staked    string `json:"staked"`
	Rewards   string `json:"rewards"`
}

func (r balanceResponse) toDomain() (*domain.Balance, error) {
	parse := func(s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}
	available, err := parse(r.Available)
	if err != nil {
		return nil, fmt.Errorf("invalid available balance: %w", err)
	}
	staked, err := parse(r.Staked)
	if err != nil {
		return nil, fmt.Errorf("invalid staked balance: %w", err)
	}
	rewards, err := parse(r.Rewards)
	if err != nil {
		return nil, fmt.Errorf("invalid rewards balance: %w", err)
	}
	return &domain.Balance{
		Available: available,
		Staked:    staked,
		Rewards:   rewards,
	}, nil
}

type broadcastRequest struct {
	Transaction wallet.Transaction `json:"transaction"`
	PublicKey   string             `json:"publicKey"`
	Signature   string             `json:"signature"`
}

func newBroadcastRequest(tx wallet.SignedTransaction) broadcastRequest {
	return broadcastRequest{
		Transaction: tx.Transaction,
		PublicKey:   hex.EncodeToString(tx.PublicKey),
		Signature:   hex.EncodeToString(tx.Signature),
	}
}

type broadcastResponse struct {
	Hash string `json:"hash"`
}
