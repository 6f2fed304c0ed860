package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

const quoteBody = `{"inputMint":"So11111111111111111111111111111111111111112","inAmount":"300000000",
"outputMint":"MintA","outAmount":"123456789","otherAmountThreshold":"122000000",
"swapMode":"ExactIn","slippageBps":100,"priceImpactPct":"0.01","routePlan":[{"percent":100}]}`

func TestQuoteAndSwap(t *testing.T) {
	var swapReq map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/quote":
			q := r.URL.Query()
			assert.Equal(t, "300000000", q.Get("amount"))
			assert.Equal(t, "100", q.Get("slippageBps"))
			assert.Equal(t, "MintA", q.Get("outputMint"))
			_, _ = w.Write([]byte(quoteBody))
		case "/swap":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&swapReq))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"swapTransaction":      base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
				"lastValidBlockHeight": 100,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key", 50_000, time.Second)
	ctx := context.Background()

	q, err := c.Quote(ctx, QuoteRequest{
		InputMint:   "So11111111111111111111111111111111111111112",
		OutputMint:  "MintA",
		Amount:      300_000_000,
		SlippageBps: 100,
	})
	require.NoError(t, err)
	out, err := q.OutAmountRaw()
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), out)

	tx, err := c.SwapTransaction(ctx, q, "Wallet111")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, tx)

	// The quote is forwarded verbatim, including fields the client ignores.
	assert.Contains(t, string(swapReq["quoteResponse"]), "routePlan")
	assert.JSONEq(t, `"Wallet111"`, string(swapReq["userPublicKey"]))
	assert.Contains(t, string(swapReq["prioritizationFeeLamports"]), "50000")
}

func TestQuoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: domain.ErrRateLimited},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, wantErr: domain.ErrUnauthorized},
		{name: "no route", status: http.StatusOK, body: `{"inAmount":"1"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", 0, time.Second).Quote(context.Background(), QuoteRequest{Amount: 1})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
