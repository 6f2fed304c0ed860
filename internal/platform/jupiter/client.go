// Package jupiter is a REST client for the Jupiter swap aggregator: route
// quotes and unsigned swap transactions.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// QuoteRequest selects a route for an exact-in swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // base units of InputMint
	SlippageBps int
}

// Quote is a route quote. Raw is the verbatim response, which the swap
// endpoint expects back unchanged.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	Raw                  json.RawMessage `json:"-"`
}

// InAmountRaw parses InAmount.
func (q Quote) InAmountRaw() (uint64, error) {
	return strconv.ParseUint(q.InAmount, 10, 64)
}

// OutAmountRaw parses OutAmount.
func (q Quote) OutAmountRaw() (uint64, error) {
	return strconv.ParseUint(q.OutAmount, 10, 64)
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports any             `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Client is the Jupiter REST client.
type Client struct {
	baseURL     string
	apiKey      string
	priorityFee uint64
	httpClient  *http.Client
}

// NewClient creates a Jupiter client.
//
// baseURL is the swap API root, e.g. "https://lite-api.jup.ag/swap/v1".
// priorityFee is a lamport cap for the priority fee; zero lets Jupiter pick.
func NewClient(baseURL, apiKey string, priorityFee uint64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		priorityFee: priorityFee,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Quote fetches the best route for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	params.Set("swapMode", "ExactIn")

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: quote: %w", err)
	}
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	if q.OutAmount == "" {
		return Quote{}, fmt.Errorf("jupiter: quote has no route")
	}
	q.Raw = body
	return q, nil
}

// SwapTransaction builds the unsigned swap transaction for quote, paid for
// and signed by user.
func (c *Client) SwapTransaction(ctx context.Context, quote Quote, user string) ([]byte, error) {
	r := swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           user,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	if c.priorityFee > 0 {
		r.PrioritizationFeeLamports = map[string]any{
			"priorityLevelWithMaxLamports": map[string]any{
				"maxLamports":   c.priorityFee,
				"priorityLevel": "high",
			},
		}
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("jupiter: marshal swap: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", payload)
	if err != nil {
		return nil, fmt.Errorf("jupiter: swap: %w", err)
	}
	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("jupiter: decode swap: %w", err)
	}
	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil || len(tx) == 0 {
		return nil, fmt.Errorf("jupiter: bad swap transaction encoding")
	}
	return tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

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
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	default:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
}
