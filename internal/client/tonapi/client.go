package tonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tonapi error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, token string) *Client {
	if host == "" {
		host = "https://tonapi.io"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// AccountEvents returns the most recent events for an account, newest
// first, bounded by limit. Events still in progress are included and must
// be filtered by the caller.
func (c *Client) AccountEvents(ctx context.Context, account string, limit int) ([]AccountEvent, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	body, err := c.doRequest(ctx, "/v2/accounts/"+url.PathEscape(account)+"/events", query)
	if err != nil {
		return nil, err
	}
	var out accountEventsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return out.Events, nil
}

// TonBalance returns the account's native balance in nanotons.
func (c *Client) TonBalance(ctx context.Context, account string) (*big.Int, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}
	body, err := c.doRequest(ctx, "/v2/accounts/"+url.PathEscape(account), nil)
	if err != nil {
		return nil, err
	}
	var out accountResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	return big.NewInt(out.Balance), nil
}

// JettonBalance reads the owner's balance of one jetton through its
// per-token sub-account, in raw token units.
func (c *Client) JettonBalance(ctx context.Context, owner, jettonMaster string) (*big.Int, error) {
	if owner == "" || jettonMaster == "" {
		return nil, fmt.Errorf("owner and jetton are required")
	}
	body, err := c.doRequest(ctx, "/v2/accounts/"+url.PathEscape(owner)+"/jettons/"+url.PathEscape(jettonMaster), nil)
	if err != nil {
		// No jetton sub-account yet means the owner never held the token.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	var out jettonBalanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse jetton balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(out.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid jetton balance %q", out.Balance)
	}
	return balance, nil
}

// JettonDecimals returns the token's decimal count from its metadata.
func (c *Client) JettonDecimals(ctx context.Context, jettonMaster string) (int, error) {
	if jettonMaster == "" {
		return 0, fmt.Errorf("jetton is required")
	}
	body, err := c.doRequest(ctx, "/v2/jettons/"+url.PathEscape(jettonMaster), nil)
	if err != nil {
		return 0, err
	}
	var out jettonInfoResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("failed to parse jetton info: %w", err)
	}
	if out.Metadata.Decimals == "" {
		// Jettons without explicit metadata default to 9, like the
		// native currency.
		return 9, nil
	}
	decimals, err := strconv.Atoi(out.Metadata.Decimals)
	if err != nil {
		return 0, fmt.Errorf("invalid decimals %q: %w", out.Metadata.Decimals, err)
	}
	return decimals, nil
}
