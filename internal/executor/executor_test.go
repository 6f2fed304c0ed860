package executor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/crypto"
	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/platform/jupiter"
	"github.com/alanyoungcy/solanabot/internal/platform/solana"
)

const mintA = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticFeed struct {
	quotes map[string]domain.Quote
	err    error
}

func (f staticFeed) Quotes(_ context.Context, tokens []string) (map[string]domain.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote)
	for _, t := range tokens {
		if q, ok := f.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

func feedAt(usd, native float64) staticFeed {
	return staticFeed{quotes: map[string]domain.Quote{
		mintA: {TokenAddress: mintA, PriceUSD: usd, PriceNative: native},
	}}
}

func TestPaperGateway(t *testing.T) {
	ctx := context.Background()
	g := NewPaperGateway(feedAt(0.02, 0.0001), 10, discard())

	fill, err := g.Buy(ctx, mintA, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 3000, fill.ExecutedSize, 1e-9)
	assert.Equal(t, 0.02, fill.ExecutedPrice)
	assert.NotEmpty(t, fill.Signature)

	bal, err := g.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9.7, bal, 1e-9)

	fill, err = g.Sell(ctx, mintA, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, fill.ExecutedSize)
	bal, _ = g.Balance(ctx)
	assert.InDelta(t, 9.8, bal, 1e-9)

	_, err = g.Buy(ctx, mintA, 100)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
}

func TestPaperGatewayNoPrice(t *testing.T) {
	ctx := context.Background()
	g := NewPaperGateway(staticFeed{}, 10, discard())
	_, err := g.Buy(ctx, mintA, 0.1)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.ErrorIs(t, err, domain.ErrPriceFeedUnavailable)

	g = NewPaperGateway(staticFeed{err: errors.New("down")}, 10, discard())
	_, err = g.Sell(ctx, mintA, 1)
	assert.ErrorIs(t, err, domain.ErrPriceFeedUnavailable)

	bal, _ := g.Balance(ctx)
	assert.Equal(t, 10.0, bal)
}

// fakeSwapper fills every exact-in request at rate out-units per in-unit.
type fakeSwapper struct {
	signer   ed25519.PublicKey
	rate     float64
	requests []jupiter.QuoteRequest
	err      error
}

func (f *fakeSwapper) Quote(_ context.Context, req jupiter.QuoteRequest) (jupiter.Quote, error) {
	if f.err != nil {
		return jupiter.Quote{}, f.err
	}
	f.requests = append(f.requests, req)
	out := uint64(float64(req.Amount) * f.rate)
	return jupiter.Quote{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		InAmount:   strconv.FormatUint(req.Amount, 10),
		OutAmount:  strconv.FormatUint(out, 10),
	}, nil
}

// SwapTransaction returns a legacy transaction with one empty signature slot
// and the wallet as fee payer.
func (f *fakeSwapper) SwapTransaction(_ context.Context, _ jupiter.Quote, _ string) ([]byte, error) {
	msg := []byte{1, 0, 0, 1}
	msg = append(msg, f.signer...)
	msg = append(msg, make([]byte, 32)...)
	msg = append(msg, 0)
	tx := append([]byte{1}, make([]byte, 64)...)
	return append(tx, msg...), nil
}

type fakeChain struct {
	t        *testing.T
	signer   ed25519.PublicKey
	lamports uint64
	held     uint64
	decimals int
	sent     int
	sendErr  error
}

func (c *fakeChain) GetBalance(context.Context, string) (uint64, error) { return c.lamports, nil }

func (c *fakeChain) GetTokenSupply(context.Context, string) (solana.TokenAmount, error) {
	return solana.TokenAmount{Amount: "1", Decimals: c.decimals}, nil
}

func (c *fakeChain) GetTokenAccountBalance(_ context.Context, account string) (solana.TokenAmount, error) {
	assert.True(c.t, solana.IsValidAddress(account))
	return solana.TokenAmount{Amount: strconv.FormatUint(c.held, 10), Decimals: c.decimals}, nil
}

func (c *fakeChain) GetAccountOwner(context.Context, string) (string, error) {
	return solana.TokenProgramID, nil
}

func (c *fakeChain) SendTransaction(_ context.Context, tx []byte) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	assert.True(c.t, ed25519.Verify(c.signer, tx[65:], tx[1:65]), "transaction not signed by wallet")
	c.sent++
	return "sig" + strconv.Itoa(c.sent), nil
}

func (c *fakeChain) WaitForConfirmation(context.Context, string, time.Duration) error { return nil }

func newLive(t *testing.T) (*LiveGateway, *fakeSwapper, *fakeChain) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	swapper := &fakeSwapper{signer: pub, rate: 0.5}
	chain := &fakeChain{t: t, signer: pub, lamports: 2 * solana.LamportsPerSOL, decimals: 6}
	g := NewLiveGateway(swapper, chain, crypto.NewWallet(priv), feedAt(0.02, 0.0001), LiveConfig{SlippageBps: 150}, discard())
	return g, swapper, chain
}

func TestLiveBuy(t *testing.T) {
	g, swapper, chain := newLive(t)

	fill, err := g.Buy(context.Background(), mintA, 0.5)
	require.NoError(t, err)
	require.Len(t, swapper.requests, 1)
	req := swapper.requests[0]
	assert.Equal(t, solana.WrappedSOLMint, req.InputMint)
	assert.Equal(t, mintA, req.OutputMint)
	assert.Equal(t, uint64(500_000_000), req.Amount)
	assert.Equal(t, 150, req.SlippageBps)

	// 250_000_000 raw units at 6 decimals.
	assert.InDelta(t, 250.0, fill.ExecutedSize, 1e-9)
	assert.Equal(t, 0.02, fill.ExecutedPrice)
	assert.Equal(t, "sig1", fill.Signature)
	assert.Equal(t, 1, chain.sent)

	bal, err := g.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, bal)
}

func TestLiveSellCapsAtHeldBalance(t *testing.T) {
	g, swapper, chain := newLive(t)
	chain.held = 100_000_000 // 100 tokens

	fill, err := g.Sell(context.Background(), mintA, 150)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, fill.ExecutedSize, 1e-9)
	require.Len(t, swapper.requests, 1)
	assert.Equal(t, uint64(100_000_000), swapper.requests[0].Amount)
	assert.Equal(t, solana.WrappedSOLMint, swapper.requests[0].OutputMint)
}

func TestLiveFailures(t *testing.T) {
	ctx := context.Background()

	g, _, chain := newLive(t)
	_, err := g.Sell(ctx, mintA, 10)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed, "empty balance")

	chain.sendErr = errors.New("blockhash not found")
	_, err = g.Buy(ctx, mintA, 0.1)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	_, err = g.Buy(ctx, mintA, 0)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	g, swapper, _ := newLive(t)
	swapper.err = domain.ErrRateLimited
	_, err = g.Buy(ctx, mintA, 0.1)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
