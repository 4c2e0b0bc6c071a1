package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/money"
)

// ErrProviderUnavailable marks a transient transport failure (timeout,
// connection refused, 5xx). Callers must not change any local payment
// state on this error; the deposit may still complete on the provider
// side and arrive later via callback.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// ErrProviderRejected marks a definitive rejection of the request by
// the provider (4xx response body received).
var ErrProviderRejected = errors.New("payment provider rejected request")

// DepositRequest is the outbound deposit initiation payload.
type DepositRequest struct {
	DepositID     string                         `json:"depositId"`
	Amount        string                         `json:"amount"`
	Currency      string                         `json:"currency"`
	Correspondent string                         `json:"correspondent"`
	Payer         DepositPayer                   `json:"payer"`
	StatementDesc string                         `json:"statementDescription,omitempty"`
	Metadata      []models.CallbackMetadataField `json:"metadata,omitempty"`
}

type DepositPayer struct {
	Type    string         `json:"type"`
	Address DepositAddress `json:"address"`
}

type DepositAddress struct {
	Value string `json:"value"`
}

// DepositResponse is the provider acknowledgement of an initiation or
// status poll.
type DepositResponse struct {
	DepositID       string                  `json:"depositId"`
	Status          models.ProviderStatus   `json:"status"`
	RequestedAmount string                  `json:"requestedAmount,omitempty"`
	Currency        string                  `json:"currency,omitempty"`
	FailureReason   *models.CallbackFailure `json:"failureReason,omitempty"`
	RejectionReason json.RawMessage         `json:"rejectionReason,omitempty"`
}

type payoutRecipient struct {
	Type    string         `json:"type"`
	Address DepositAddress `json:"address"`
}

type payoutRequest struct {
	PayoutID      string          `json:"payoutId"`
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
	Correspondent string          `json:"correspondent"`
	Recipient     payoutRecipient `json:"recipient"`
	StatementDesc string          `json:"statementDescription,omitempty"`
}

// PayoutResponse is the provider acknowledgement of a payout request
// or status poll.
type PayoutResponse struct {
	PayoutID      string                  `json:"payoutId"`
	Status        models.ProviderStatus   `json:"status"`
	FailureReason *models.CallbackFailure `json:"failureReason,omitempty"`
}

// Client talks to the pawaPay REST API. Every call is bounded by the
// configured timeout; a deadline hit surfaces as ErrProviderUnavailable.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg config.PawaPayConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 4500 * time.Millisecond
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// InitiateDeposit submits a new deposit to the provider. The deposit id
// is generated by the caller so retries reuse the same id.
func (c *Client) InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResponse, error) {
	c.log.LogGateway("INITIATE_DEPOSIT", req.DepositID, fmt.Sprintf("Submitting deposit %s %s", req.Amount, req.Currency))

	body, err := c.doRequest(ctx, http.MethodPost, "/deposits", req)
	if err != nil {
		return nil, err
	}

	resp, err := decodeDepositResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode deposit response: %w", err)
	}

	c.log.LogGateway("DEPOSIT_ACK", req.DepositID, "Provider status: "+string(resp.Status))
	return resp, nil
}

// GetDepositStatus polls the provider for the current deposit status.
// The endpoint may return either a single object or a one-element
// array; both shapes are accepted.
func (c *Client) GetDepositStatus(ctx context.Context, depositID string) (*DepositResponse, error) {
	c.log.LogGateway("POLL_DEPOSIT", depositID, "Polling deposit status")

	body, err := c.doRequest(ctx, http.MethodGet, "/deposits/"+depositID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := decodeDepositResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode deposit status: %w", err)
	}
	return resp, nil
}

// InitiatePayout submits a platform-to-host transfer.
func (c *Client) InitiatePayout(ctx context.Context, req models.PayoutRequest) (*PayoutResponse, error) {
	c.log.LogGateway("INITIATE_PAYOUT", req.PayoutID, fmt.Sprintf("Submitting payout %.2f %s", req.Amount, req.Currency))

	outbound := payoutRequest{
		PayoutID:      req.PayoutID,
		Amount:        money.FormatAmount(req.Amount, req.Currency),
		Currency:      req.Currency,
		Correspondent: req.Provider,
		Recipient: payoutRecipient{
			Type:    "MSISDN",
			Address: DepositAddress{Value: req.PhoneNumber},
		},
		StatementDesc: req.Description,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/payouts", outbound)
	if err != nil {
		return nil, err
	}

	resp, err := decodePayoutResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payout response: %w", err)
	}

	c.log.LogGateway("PAYOUT_ACK", req.PayoutID, "Provider status: "+string(resp.Status))
	return resp, nil
}

// GetPayoutStatus polls the provider for the current payout status.
func (c *Client) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResponse, error) {
	c.log.LogGateway("POLL_PAYOUT", payoutID, "Polling payout status")

	body, err := c.doRequest(ctx, http.MethodGet, "/payouts/"+payoutID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := decodePayoutResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payout status: %w", err)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("GATEWAY", fmt.Sprintf("Provider call %s %s failed: %s", method, path, err.Error()))
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %s", ErrProviderUnavailable, err.Error())
	}

	if resp.StatusCode >= 500 {
		c.log.Warn("GATEWAY", fmt.Sprintf("Provider returned %d for %s %s", resp.StatusCode, method, path))
		return nil, fmt.Errorf("%w: provider returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		c.log.Warn("GATEWAY", fmt.Sprintf("Provider rejected %s %s with %d: %s", method, path, resp.StatusCode, string(body)))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderRejected, resp.StatusCode, string(body))
	}

	return body, nil
}

// decodeDepositResponse accepts both the bare object shape and the
// array shape the status endpoint sometimes returns, taking the first
// element of the array.
func decodeDepositResponse(body []byte) (*DepositResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []DepositResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.New("empty deposit status response")
		}
		return &list[0], nil
	}

	var resp DepositResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func decodePayoutResponse(body []byte) (*PayoutResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []PayoutResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.New("empty payout status response")
		}
		return &list[0], nil
	}

	var resp PayoutResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
