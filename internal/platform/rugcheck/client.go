// Package rugcheck fetches token risk summaries from the RugCheck API.
package rugcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// ErrMalformedResponse is returned when the summary body cannot be used.
var ErrMalformedResponse = errors.New("malformed rugcheck response")

// Risk is one risk entry of a summary report.
type Risk struct {
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
}

// Client is the RugCheck REST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter
	now        func() time.Time
}

// LimiterKey names the RugCheck request budget in the rate limiter.
const LimiterKey = "rugcheck"

// NewClient creates a RugCheck client.
//
// baseURL is the tokens root, e.g. "https://api.rugcheck.xyz/v1/tokens".
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetLimiter makes every request wait on the shared "rugcheck" budget.
func (c *Client) SetLimiter(l domain.RateLimiter) {
	c.limiter = l
}

// Assess implements domain.SafetyChecker. It reports the score (the
// normalised score when present) and every risk name; it does not apply a
// threshold. Transport failures and unusable bodies return an error together
// with a verdict describing the failure.
func (c *Client) Assess(ctx context.Context, tokenAddress string) (domain.SafetyVerdict, error) {
	v := domain.SafetyVerdict{CheckedAt: c.now()}
	if tokenAddress == "" {
		return c.failed(v, "No token address provided", "missing token address", ErrMalformedResponse)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, LimiterKey); err != nil {
			return c.failed(v, "API call timed out", "rate limit wait", err)
		}
	}

	u := fmt.Sprintf("%s/%s/report/summary", c.baseURL, url.PathEscape(tokenAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.failed(v, "Request build failed", err.Error(), err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return c.failed(v, "API call timed out", "timeout", err)
		}
		return c.failed(v, "HTTP request failed", err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failed(v, "Read failed", err.Error(), err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return c.failed(v, "Token not found on RugCheck", fmt.Sprintf("token not found (%d)", resp.StatusCode), domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return c.failed(v, "RugCheck API authorization failed", fmt.Sprintf("auth error (%d)", resp.StatusCode), domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return c.failed(v, "RugCheck API rate limit exceeded", fmt.Sprintf("rate limit (%d)", resp.StatusCode), domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		return c.failed(v, "HTTP error: "+msg, msg, errors.New(msg))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return c.failed(v, "Empty/invalid response from RugCheck", "invalid API response format", ErrMalformedResponse)
	}

	score, ok := numberField(raw, "scoreNormalised")
	if !ok {
		score, ok = numberField(raw, "score")
	}
	if !ok {
		return c.failed(v, "Score missing or not numeric", "score missing", ErrMalformedResponse)
	}
	v.Score = score

	if rawRisks, present := raw["risks"]; present {
		var risks []Risk
		if err := json.Unmarshal(rawRisks, &risks); err == nil {
			for _, r := range risks {
				if r.Name != "" {
					v.RiskNames = append(v.RiskNames, r.Name)
				}
			}
		} else {
			v.Reasons = append(v.Reasons, "'risks' field invalid")
		}
	}
	return v, nil
}

func (c *Client) failed(v domain.SafetyVerdict, reason, apiErr string, cause error) (domain.SafetyVerdict, error) {
	v.Passed = false
	v.Transient = true
	v.APIError = apiErr
	v.Reasons = append(v.Reasons, reason)
	return v, fmt.Errorf("rugcheck: assess: %s: %w", apiErr, cause)
}

func numberField(raw map[string]json.RawMessage, key string) (float64, bool) {
	data, ok := raw[key]
	if !ok || string(data) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, false
	}
	return f, true
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// Compile-time interface check.
var _ domain.SafetyChecker = (*Client)(nil)
