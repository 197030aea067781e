package dedust

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
)

// AssetNative is the asset tag of the native currency.
const AssetNative = "native"

// JettonAsset builds the asset tag for a jetton master address in raw form.
func JettonAsset(rawAddress string) string {
	return "jetton:" + rawAddress
}

// Pool is a liquidity pool snapshot: two assets with their reserves and
// the trade fee in basis points.
type Pool struct {
	Address  string   `json:"address"`
	Assets   []string `json:"assets"`
	Reserves []string `json:"reserves"`
	// TradeFee is a percent string, e.g. "0.25".
	TradeFee string `json:"tradeFee"`
}

// Vault routes swap deposits for one asset.
type Vault struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dex api error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = "https://api.dedust.io"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
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

// FindPool resolves the (native, jetton) pool for a token. Returns nil
// when no pool exists.
func (c *Client) FindPool(ctx context.Context, jettonRawAddress string) (*Pool, error) {
	if jettonRawAddress == "" {
		return nil, fmt.Errorf("jetton address is required")
	}
	body, err := c.doRequest(ctx, "/v2/pools-lite")
	if err != nil {
		return nil, err
	}
	var pools []Pool
	if err := json.Unmarshal(body, &pools); err != nil {
		return nil, fmt.Errorf("failed to parse pools: %w", err)
	}
	want := JettonAsset(jettonRawAddress)
	for i := range pools {
		p := &pools[i]
		if len(p.Assets) != 2 {
			continue
		}
		if (p.Assets[0] == AssetNative && p.Assets[1] == want) ||
			(p.Assets[1] == AssetNative && p.Assets[0] == want) {
			return p, nil
		}
	}
	return nil, nil
}

// VaultFor resolves the deposit vault for an asset tag.
func (c *Client) VaultFor(ctx context.Context, asset string) (*Vault, error) {
	if asset == "" {
		return nil, fmt.Errorf("asset is required")
	}
	body, err := c.doRequest(ctx, "/v2/vaults")
	if err != nil {
		return nil, err
	}
	var vaults []Vault
	if err := json.Unmarshal(body, &vaults); err != nil {
		return nil, fmt.Errorf("failed to parse vaults: %w", err)
	}
	for i := range vaults {
		if vaults[i].Asset == asset {
			return &vaults[i], nil
		}
	}
	return nil, fmt.Errorf("no vault for asset %s", asset)
}

// EstimateOut computes the constant-product output for swapping amountIn
// of assetIn through the pool, fee applied on the input side. Integer
// arithmetic only.
func EstimateOut(pool *Pool, assetIn string, amountIn *big.Int) (*big.Int, error) {
	if pool == nil || len(pool.Assets) != 2 || len(pool.Reserves) != 2 {
		return nil, fmt.Errorf("malformed pool")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	var inIdx int
	switch assetIn {
	case pool.Assets[0]:
		inIdx = 0
	case pool.Assets[1]:
		inIdx = 1
	default:
		return nil, fmt.Errorf("asset %s not in pool", assetIn)
	}
	reserveIn, ok := new(big.Int).SetString(pool.Reserves[inIdx], 10)
	if !ok {
		return nil, fmt.Errorf("invalid reserve %q", pool.Reserves[inIdx])
	}
	reserveOut, ok := new(big.Int).SetString(pool.Reserves[1-inIdx], 10)
	if !ok {
		return nil, fmt.Errorf("invalid reserve %q", pool.Reserves[1-inIdx])
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("pool has empty reserves")
	}
	feeBps, err := feeToBps(pool.TradeFee)
	if err != nil {
		return nil, err
	}

	// out = reserveOut * inAfterFee / (reserveIn + inAfterFee)
	tenK := big.NewInt(10000)
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(10000-feeBps))
	inAfterFee.Quo(inAfterFee, tenK)
	num := new(big.Int).Mul(reserveOut, inAfterFee)
	den := new(big.Int).Add(reserveIn, inAfterFee)
	return num.Quo(num, den), nil
}

// feeToBps parses a percent string like "0.25" into basis points.
func feeToBps(fee string) (int64, error) {
	fee = strings.TrimSpace(fee)
	if fee == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(fee, ".")
	// Pad/truncate the fraction to two digits: percent -> bps.
	frac = (frac + "00")[:2]
	var bps int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid trade fee %q", fee)
		}
		bps = bps*10 + int64(r-'0')
	}
	if bps < 0 || bps >= 10000 {
		return 0, fmt.Errorf("trade fee %q out of range", fee)
	}
	return bps, nil
}
