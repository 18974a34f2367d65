package payme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maquis-app/maquis-backend/pkg/config"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
)

const (
	sandboxBaseURL            = "https://sandbox.payme.ci/api/v1"
	productionBaseURL         = "https://api.payme.ci/api/v1"
	responseBodyReadLimit int64 = 1024
)

var (
	errMerchantRequired = errors.New("payme merchant id is required")
	errAPIKeyRequired   = errors.New("payme api key is required")
)

// Client wraps the Payme mobile money gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantID string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the environment-derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Payme client from configuration.
func NewClient(cfg config.PaymeConfig, opts ...Option) (*Client, error) {
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, errMerchantRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	baseURL := sandboxBaseURL
	if cfg.Environment() == "production" {
		baseURL = productionBaseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		merchantID: merchantID,
		apiKey:     apiKey,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// ChargeRequest initiates a mobile money charge. AmountCents is converted to
// the gateway's centime representation on the wire.
type ChargeRequest struct {
	AmountCents int64
	Phone       string
	OrderID     string
	CallbackURL string
}

// ChargeResult is the gateway's acknowledgement of a charge.
type ChargeResult struct {
	TransactionID string
	Status        string
}

type chargePayload struct {
	Amount      int64  `json:"amount"`
	Phone       string `json:"phone"`
	OrderID     string `json:"order_id"`
	CallbackURL string `json:"callback_url"`
}

type chargeResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Charge submits a payment request to the gateway and waits for the
// synchronous acknowledgement.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payme client not configured")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}

	payload, err := json.Marshal(chargePayload{
		Amount:      req.AmountCents,
		Phone:       req.Phone,
		OrderID:     req.OrderID,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal charge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("payments"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build charge request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, err, "execute charge request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "charge request rejected")
	}

	var apiResp chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, err, "decode charge response")
	}
	if apiResp.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeExternalPayment, "gateway returned no transaction id")
	}
	if strings.EqualFold(apiResp.Status, "failed") {
		return nil, pkgerrors.New(pkgerrors.CodeExternalPayment, failureMessage(apiResp.Message))
	}

	return &ChargeResult{
		TransactionID: apiResp.TransactionID,
		Status:        strings.ToLower(apiResp.Status),
	}, nil
}

// TransactionStatus fetches the current gateway state of a transaction.
func (c *Client) TransactionStatus(ctx context.Context, transactionID string) (*ChargeResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payme client not configured")
	}
	trimmed := strings.TrimSpace(transactionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("payments/"+trimmed), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build status request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, err, "execute status request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found at gateway")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "status request failed")
	}

	var apiResp chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalPayment, err, "decode status response")
	}

	return &ChargeResult{
		TransactionID: apiResp.TransactionID,
		Status:        strings.ToLower(apiResp.Status),
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)
	req.Header.Set("X-Api-Key", c.apiKey)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func failureMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "gateway declined the charge"
	}
	return msg
}
