// Package escrow is the HTTP client for the third-party escrow provider.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Customer identifies one party to the escrow transaction
type Customer struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Party struct {
	Role     string   `json:"role"`
	Customer Customer `json:"customer"`
}

type Item struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Type             string          `json:"type"`
	InspectionPeriod int             `json:"inspection_period"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
}

// OpenRequest is the payload for opening a provider transaction
type OpenRequest struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Currency         string            `json:"currency"`
	Items            []Item            `json:"items"`
	Parties          []Party           `json:"parties"`
	BrokerCommission decimal.Decimal   `json:"broker_commission"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type FundRequest struct {
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	PaymentDetails map[string]any       `json:"payment_details,omitempty"`
}

type ReleaseRequest struct {
	Reason   string            `json:"reason"`
	Amount   decimal.Decimal   `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CancelRequest struct {
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Transaction is the provider's view of an escrow transaction
type Transaction struct {
	ID     string              `json:"id"`
	Status domain.EscrowStatus `json:"status"`
}

const (
	defaultTimeout = 15 * time.Second
	defaultBackoff = 500 * time.Millisecond
)

// Client calls the escrow provider REST API. Every call is bounded by the
// configured timeout; a timeout is reported as a ProviderTimeoutError.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	attempts   uint64
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient creates a new escrow provider client
func NewClient(cfg *config.EscrowConfig, logger *zap.Logger) *Client {
	attempts := cfg.ReconcileAttempts
	if attempts < 1 {
		attempts = 1
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "dealflow-api/1.0"
	}
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backoff := cfg.ReconcileBackoffDuration()
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  userAgent,
		timeout:    timeout,
		attempts:   uint64(attempts),
		backoff:    backoff,
		logger:     logger,
	}
}

// WithTimeout returns a copy of the client with a different per-call timeout
func (c *Client) WithTimeout(d time.Duration) *Client {
	clone := *c
	clone.timeout = d
	return &clone
}

// Open creates the provider-side transaction
func (c *Client) Open(ctx context.Context, req OpenRequest) (*Transaction, error) {
	return c.call(ctx, http.MethodPost, "/transactions", req)
}

// Fund records the buyer's deposit
func (c *Client) Fund(ctx context.Context, providerID string, req FundRequest) (*Transaction, error) {
	return c.call(ctx, http.MethodPost, "/transactions/"+providerID+"/fund", req)
}

// Release pays the escrowed amount out to the seller
func (c *Client) Release(ctx context.Context, providerID string, req ReleaseRequest) (*Transaction, error) {
	payload := struct {
		Action    string `json:"action"`
		ReleaseTo string `json:"release_to"`
		ReleaseRequest
	}{"release", "seller", req}
	return c.call(ctx, http.MethodPost, "/transactions/"+providerID+"/release", payload)
}

// Cancel returns the escrowed funds to the buyer
func (c *Client) Cancel(ctx context.Context, providerID string, req CancelRequest) (*Transaction, error) {
	payload := struct {
		Action   string `json:"action"`
		ReturnTo string `json:"return_to"`
		CancelRequest
	}{"cancel", "buyer", req}
	return c.call(ctx, http.MethodPost, "/transactions/"+providerID+"/cancel", payload)
}

// GetStatus polls the provider for the authoritative status, retrying
// transient failures with exponential backoff.
func (c *Client) GetStatus(ctx context.Context, providerID string) (*Transaction, error) {
	var txn *Transaction
	backoff := retry.WithMaxRetries(c.attempts-1, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		got, err := c.call(ctx, http.MethodGet, "/transactions/"+providerID, nil)
		if err != nil {
			if errors.Is(err, domain.ErrProviderTimeout) || isServerError(err) {
				c.logger.Debug("escrow status poll failed, retrying",
					zap.String("provider_transaction_id", providerID),
					zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		txn = got
		return nil
	})
	if err != nil {
		if domain.KindOf(err) != domain.KindProvider && domain.KindOf(err) != domain.KindProviderTimeout {
			// retry.Do hands back the bare context error when the poll is interrupted
			return nil, domain.NewProviderTimeoutError("escrow status poll interrupted", err)
		}
		return nil, err
	}
	return txn, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any) (*Transaction, error) {
	if method != http.MethodGet {
		// Once sent, a mutating call is only ended by the client timeout
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewProviderError("failed to encode escrow request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domain.NewProviderError("failed to build escrow request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, domain.NewProviderTimeoutError(fmt.Sprintf("escrow provider %s %s timed out", method, path), err)
		}
		return nil, domain.NewProviderError(fmt.Sprintf("escrow provider %s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	c.logger.Debug("escrow provider call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, domain.NewProviderTimeoutError(fmt.Sprintf("escrow provider %s %s timed out", method, path), err)
		}
		return nil, domain.NewProviderError("failed to read escrow response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewProviderError(providerMessage(data, resp.StatusCode), &StatusError{Code: resp.StatusCode})
	}

	var txn Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, domain.NewProviderError("failed to decode escrow response", err)
	}
	if txn.ID == "" {
		return nil, domain.NewProviderError("escrow response missing transaction id", nil)
	}
	return &txn, nil
}

// StatusError carries a non-2xx provider response code
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Code)
}

func isServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

// isTimeout reports a call that ended without a provider answer. A cancelled
// context counts: the request may already have been accepted.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func providerMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("escrow API call failed: %d", status)
}
