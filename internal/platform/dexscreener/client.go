// Package dexscreener is a REST client for the DexScreener pair API. It is
// both the scan source for new pairs and the price feed for held tokens.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// LimiterKey names the DexScreener request budget in the rate limiter.
const LimiterKey = "dexscreener"

// maxTokensPerRequest is the API limit on addresses per /tokens call.
const maxTokensPerRequest = 30

// Client is the DexScreener REST client.
type Client struct {
	baseURL    string
	chain      string
	httpClient *http.Client
	limiter    domain.RateLimiter
	now        func() time.Time
}

// NewClient creates a new DexScreener client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com/latest/dex".
func NewClient(baseURL, chain string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chain:   chain,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetLimiter makes every request wait on the shared "dexscreener" budget.
func (c *Client) SetLimiter(l domain.RateLimiter) {
	c.limiter = l
}

// NewPairs lists the latest pairs on the configured chain.
func (c *Client) NewPairs(ctx context.Context) ([]Pair, error) {
	body, err := c.doGet(ctx, "/pairs/"+url.PathEscape(c.chain))
	if err != nil {
		return nil, fmt.Errorf("dexscreener: new pairs: %w", err)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener: decode pairs: %w", err)
	}
	return resp.Pairs, nil
}

// TokenPairs returns every pair trading any of the given token addresses.
// Requests are chunked to the API's per-call address limit.
func (c *Client) TokenPairs(ctx context.Context, tokens []string) ([]Pair, error) {
	var out []Pair
	for start := 0; start < len(tokens); start += maxTokensPerRequest {
		end := min(start+maxTokensPerRequest, len(tokens))
		escaped := make([]string, 0, end-start)
		for _, t := range tokens[start:end] {
			escaped = append(escaped, url.PathEscape(t))
		}

		body, err := c.doGet(ctx, "/tokens/"+strings.Join(escaped, ","))
		if err != nil {
			return nil, fmt.Errorf("dexscreener: token pairs: %w", err)
		}
		var resp pairsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("dexscreener: decode token pairs: %w", err)
		}
		out = append(out, resp.Pairs...)
	}
	return out, nil
}

// Quotes implements domain.PriceFeed. For each token the deepest pair on the
// configured chain is used. Tokens with no priced pair are left out.
func (c *Client) Quotes(ctx context.Context, tokens []string) (map[string]domain.Quote, error) {
	pairs, err := c.TokenPairs(ctx, tokens)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		wanted[t] = true
	}

	now := c.now()
	best := make(map[string]Pair, len(tokens))
	for _, p := range pairs {
		if c.chain != "" && p.ChainID != "" && p.ChainID != c.chain {
			continue
		}
		addr := p.BaseToken.Address
		if !wanted[addr] || p.PriceUSD <= 0 {
			continue
		}
		if cur, ok := best[addr]; !ok || p.LiquidityUSD() > cur.LiquidityUSD() {
			best[addr] = p
		}
	}

	out := make(map[string]domain.Quote, len(best))
	for addr, p := range best {
		out[addr] = p.Quote(now)
	}
	return out, nil
}

// doGet sends an unauthenticated GET request to the API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, LimiterKey); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
}

// Compile-time interface check.
var _ domain.PriceFeed = (*Client)(nil)
