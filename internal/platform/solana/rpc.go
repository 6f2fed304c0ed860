package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TokenAmount is an SPL token balance or supply.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// Raw returns the integer amount in base units.
func (t TokenAmount) Raw() (uint64, error) {
	return strconv.ParseUint(t.Amount, 10, 64)
}

// SignatureStatus is the confirmation state of a submitted transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction executed with an error.
func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a Solana JSON-RPC client.
type Client struct {
	endpoint   string
	commitment string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewClient creates an RPC client for endpoint, e.g.
// "https://api.mainnet-beta.solana.com".
func NewClient(endpoint, commitment string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		endpoint:   endpoint,
		commitment: commitment,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetBalance returns the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, account string) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{account, map[string]any{"commitment": c.commitment}}, &res); err != nil {
		return 0, fmt.Errorf("solana: get balance: %w", err)
	}
	return res.Value, nil
}

// GetTokenSupply returns the supply and decimals of a mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (TokenAmount, error) {
	var res struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []any{mint}, &res); err != nil {
		return TokenAmount{}, fmt.Errorf("solana: get token supply %s: %w", mint, err)
	}
	return res.Value, nil
}

// GetTokenAccountBalance returns the balance of an SPL token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (TokenAmount, error) {
	var res struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenAccountBalance", []any{account, map[string]any{"commitment": c.commitment}}, &res); err != nil {
		return TokenAmount{}, fmt.Errorf("solana: get token account balance %s: %w", account, err)
	}
	return res.Value, nil
}

// GetAccountOwner returns the program that owns an account.
func (c *Client) GetAccountOwner(ctx context.Context, account string) (string, error) {
	var res struct {
		Value *struct {
			Owner string `json:"owner"`
		} `json:"value"`
	}
	params := []any{account, map[string]any{"encoding": "base64", "dataSlice": map[string]int{"offset": 0, "length": 0}}}
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return "", fmt.Errorf("solana: get account info %s: %w", account, err)
	}
	if res.Value == nil {
		return "", fmt.Errorf("solana: account %s does not exist", account)
	}
	return res.Value.Owner, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	opts := map[string]any{
		"encoding":            "base64",
		"skipPreflight":       false,
		"preflightCommitment": c.commitment,
		"maxRetries":          3,
	}
	var sig string
	if err := c.call(ctx, "sendTransaction", []any{base64.StdEncoding.EncodeToString(tx), opts}, &sig); err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}
	return sig, nil
}

// GetSignatureStatuses returns the status of each signature; unknown
// signatures map to nil.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs []string) ([]*SignatureStatus, error) {
	var res struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{sigs, map[string]any{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, fmt.Errorf("solana: get signature statuses: %w", err)
	}
	return res.Value, nil
}

// WaitForConfirmation polls until sig reaches the client's commitment level,
// the transaction fails, or ctx is done.
func (c *Client) WaitForConfirmation(ctx context.Context, sig string, poll time.Duration) error {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		statuses, err := c.GetSignatureStatuses(ctx, []string{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Failed() {
				return fmt.Errorf("solana: transaction %s failed: %s", sig, st.Err)
			}
			if reached(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func reached(status, want string) bool {
	rank := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return rank[status] >= rank[want] && rank[status] > 0
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if len(rr.Result) == 0 {
		return errors.New("empty result")
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
