package tokenoracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/holiman/uint256"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultQueryTimeout = 10 * time.Second
)

// TokenError is an error reported by the token service itself.
type TokenError struct {
	Code string
	Msg  string
}

func (e *TokenError) Error() string {
	if e.Code == "" {
		return "token service error: " + e.Msg
	}
	return fmt.Sprintf("token service error %s: %s", e.Code, e.Msg)
}

// Client reads balances and performs treasury transfers against an external
// token service over JSON/HTTP. Amounts travel as base-10 strings.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	queryTimeout time.Duration
}

var _ ports.TokenOracle = (*Client)(nil)

func NewClient(baseURL string, token string, queryTimeout time.Duration) *Client {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			// Timeouts come from the per-request context.
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout: DefaultDialTimeout,
				}).DialContext,
			},
		},
		queryTimeout: queryTimeout,
	}
}

type pingResponse struct {
	Pong  bool   `json:"pong,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type balanceRequest struct {
	Token   string `json:"token"`
	Account string `json:"account"`
}

type balanceResponse struct {
	Balance string `json:"balance,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type supplyRequest struct {
	Token string `json:"token"`
}

type supplyResponse struct {
	TotalSupply string `json:"total_supply,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
}

type transferRequest struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transferResponse struct {
	OK    bool   `json:"ok,omitempty"`
	TxID  string `json:"tx_id,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func (c *Client) doRequest(ctx context.Context, endpoint string, reqBody any, result any) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach token service: %w", err)
	}
	defer resp.Body.Close()

	bodyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(bodyData, &errResp) == nil && errResp.Error != "" {
			return &TokenError{Code: errResp.Code, Msg: errResp.Error}
		}
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bodyData))
	}

	if err := json.Unmarshal(bodyData, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping checks that the token service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.doRequest(ctx, "/ping", struct{}{}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &TokenError{Code: resp.Code, Msg: resp.Error}
	}
	if !resp.Pong {
		return fmt.Errorf("unexpected ping response: pong field is false or missing")
	}
	return nil
}

func (c *Client) BalanceOf(ctx context.Context, account entities.AccountID) (uint256.Int, error) {
	var resp balanceResponse
	req := balanceRequest{Token: c.token, Account: string(account.Normalize())}
	if err := c.doRequest(ctx, "/balance", req, &resp); err != nil {
		return uint256.Int{}, err
	}
	if resp.Error != "" {
		return uint256.Int{}, &TokenError{Code: resp.Code, Msg: resp.Error}
	}
	return parseAmount("balance", resp.Balance)
}

func (c *Client) TotalSupply(ctx context.Context) (uint256.Int, error) {
	var resp supplyResponse
	if err := c.doRequest(ctx, "/total_supply", supplyRequest{Token: c.token}, &resp); err != nil {
		return uint256.Int{}, err
	}
	if resp.Error != "" {
		return uint256.Int{}, &TokenError{Code: resp.Code, Msg: resp.Error}
	}
	return parseAmount("total_supply", resp.TotalSupply)
}

func (c *Client) Transfer(ctx context.Context, to entities.AccountID, amount uint256.Int) error {
	var resp transferResponse
	req := transferRequest{
		Token:  c.token,
		To:     string(to.Normalize()),
		Amount: amount.Dec(),
	}
	if err := c.doRequest(ctx, "/transfer", req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &TokenError{Code: resp.Code, Msg: resp.Error}
	}
	if !resp.OK {
		return fmt.Errorf("unexpected transfer response: ok field is false or missing")
	}
	return nil
}

func parseAmount(field string, raw string) (uint256.Int, error) {
	if raw == "" {
		return uint256.Int{}, fmt.Errorf("response missing %s field", field)
	}
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid %s value %q: %w", field, raw, err)
	}
	return *value, nil
}
