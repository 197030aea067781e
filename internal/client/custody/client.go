// Package custody talks to the key-custody service that signs and submits
// wallet transactions. Keys never enter this process.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("custody error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, apiKey string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type swapPayload struct {
	Vault    string `json:"vault"`
	Pool     string `json:"pool"`
	Amount   string `json:"amount"`
	MinOut   string `json:"min_out"`
	Deadline int64  `json:"deadline"`
	// Jetton is set for token-side swaps only.
	Jetton string `json:"jetton,omitempty"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

func (c *Client) submit(ctx context.Context, walletID int64, kind string, payload swapPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	path := c.host + "/v1/wallets/" + strconv.FormatInt(walletID, 10) + "/" + kind
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.TxHash, nil
}

func (c *Client) SubmitSwap(ctx context.Context, walletID int64, req ton.SwapRequest) (string, error) {
	return c.submit(ctx, walletID, "swap", swapPayload{
		Vault:    req.VaultAddress,
		Pool:     req.PoolAddress,
		Amount:   req.AmountNano.String(),
		MinOut:   req.MinOut.String(),
		Deadline: req.Deadline.Unix(),
	})
}

func (c *Client) SubmitJettonSwap(ctx context.Context, walletID int64, req ton.JettonSwapRequest) (string, error) {
	return c.submit(ctx, walletID, "jetton-swap", swapPayload{
		Vault:    req.VaultAddress,
		Pool:     req.PoolAddress,
		Amount:   req.AmountUnits.String(),
		MinOut:   req.MinOut.String(),
		Deadline: req.Deadline.Unix(),
		Jetton:   req.JettonMaster,
	})
}
