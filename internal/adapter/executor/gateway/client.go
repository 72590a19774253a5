// Package gateway talks to the on-chain escrow gateway over HTTP/JSON.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"p2p-credit-backend/internal/domain/escrow"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ escrow.Executor = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type opRequest struct {
	Amount string `json:"amount,omitempty"`
}

type opResponse struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) Deposit(ctx context.Context, holdID string, amount decimal.Decimal, key string) (string, error) {
	return c.call(ctx, holdID, "deposit", key, opRequest{Amount: amount.StringFixed(2)})
}

func (c *Client) Release(ctx context.Context, holdID, key string) (string, error) {
	return c.call(ctx, holdID, "release", key, opRequest{})
}

func (c *Client) Refund(ctx context.Context, holdID, key string) (string, error) {
	return c.call(ctx, holdID, "refund", key, opRequest{})
}

func (c *Client) GetStatus(ctx context.Context, holdID string) (escrow.ExecutorState, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.holdURL(holdID), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return escrow.ExecutorNone, nil
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("escrow gateway: status %s: code %d", holdID, resp.StatusCode)
	}
	var out opResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("escrow gateway: decode status: %w", err)
	}
	return escrow.ExecutorState(strings.ToUpper(out.Status)), nil
}

func (c *Client) holdURL(holdID string) string {
	return c.baseURL + "/holds/" + url.PathEscape(holdID)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call maps the gateway's answers onto the executor contract:
// 200 applied, 409 already applied (body carries the original ref),
// 422 rejected; anything else is transient.
func (c *Client) call(ctx context.Context, holdID, op, key string, payload opRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.holdURL(holdID)+"/"+op, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Idempotency-Key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out opResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return out.TxRef, nil
	case http.StatusConflict:
		return out.TxRef, escrow.ErrAlreadyApplied
	case http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s %s: %s", escrow.ErrRejected, op, holdID, out.Error)
	default:
		return "", fmt.Errorf("escrow gateway: %s %s: code %d", op, holdID, resp.StatusCode)
	}
}
