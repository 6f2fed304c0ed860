package executor

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/platform/jupiter"
	"github.com/alanyoungcy/solanabot/internal/platform/solana"
)

// Swapper quotes routes and builds unsigned swap transactions.
type Swapper interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote jupiter.Quote, user string) ([]byte, error)
}

// Chain is the subset of the Solana RPC the live gateway needs.
type Chain interface {
	GetBalance(ctx context.Context, account string) (uint64, error)
	GetTokenSupply(ctx context.Context, mint string) (solana.TokenAmount, error)
	GetTokenAccountBalance(ctx context.Context, account string) (solana.TokenAmount, error)
	GetAccountOwner(ctx context.Context, account string) (string, error)
	SendTransaction(ctx context.Context, tx []byte) (string, error)
	WaitForConfirmation(ctx context.Context, sig string, poll time.Duration) error
}

// Signer holds the wallet keypair.
type Signer interface {
	Address() string
	PrivateKey() ed25519.PrivateKey
}

// LiveConfig tunes the live gateway.
type LiveConfig struct {
	SlippageBps    int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

type mintInfo struct {
	decimals int
	program  string
}

// LiveGateway swaps SOL for tokens and back through Jupiter, signing with the
// wallet key and submitting through Solana RPC.
//
// Fill prices are the feed's USD price at submission; fill sizes come from
// the route's output amount for buys and the reconciled token balance for
// sells.
type LiveGateway struct {
	swapper Swapper
	chain   Chain
	signer  Signer
	feed    domain.PriceFeed
	cfg     LiveConfig
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	mints map[string]mintInfo
}

// NewLiveGateway creates a live gateway.
func NewLiveGateway(swapper Swapper, chain Chain, signer Signer, feed domain.PriceFeed, cfg LiveConfig, logger *slog.Logger) *LiveGateway {
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 100
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	return &LiveGateway{
		swapper: swapper,
		chain:   chain,
		signer:  signer,
		feed:    feed,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "live_gateway")),
		now:     func() time.Time { return time.Now().UTC() },
		mints:   make(map[string]mintInfo),
	}
}

// Buy swaps quoteSize SOL into the token.
func (g *LiveGateway) Buy(ctx context.Context, tokenAddress string, quoteSize float64) (domain.Fill, error) {
	lamports := uint64(math.Floor(quoteSize * solana.LamportsPerSOL))
	if lamports == 0 {
		return domain.Fill{}, fmt.Errorf("%w: quote size %v below one lamport", domain.ErrExecutionFailed, quoteSize)
	}
	info, err := g.mint(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	price, err := g.price(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, err
	}

	quote, sig, err := g.swap(ctx, solana.WrappedSOLMint, tokenAddress, lamports)
	if err != nil {
		return domain.Fill{}, err
	}
	out, err := quote.OutAmountRaw()
	if err != nil {
		return domain.Fill{}, fmt.Errorf("%w: swap %s confirmed with unreadable out amount: %w", domain.ErrExecutionFailed, sig, err)
	}

	fill := domain.Fill{
		ExecutedPrice: price,
		ExecutedSize:  float64(out) / math.Pow10(info.decimals),
		Signature:     sig,
		ExecutedAt:    g.now(),
	}
	g.logger.InfoContext(ctx, "live buy confirmed",
		slog.String("token", tokenAddress),
		slog.String("signature", sig),
		slog.Float64("sol", quoteSize),
		slog.Float64("size", fill.ExecutedSize),
	)
	return fill, nil
}

// Sell swaps size tokens back into SOL. The amount is capped at the wallet's
// actual token balance, so the fill may be smaller than requested.
func (g *LiveGateway) Sell(ctx context.Context, tokenAddress string, size float64) (domain.Fill, error) {
	info, err := g.mint(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	held, err := g.held(ctx, tokenAddress, info)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}

	scale := math.Pow10(info.decimals)
	raw := uint64(math.Round(size * scale))
	if raw > held {
		raw = held
	}
	if raw == 0 {
		return domain.Fill{}, fmt.Errorf("%w: no %s balance to sell", domain.ErrExecutionFailed, tokenAddress)
	}
	price, err := g.price(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, err
	}

	_, sig, err := g.swap(ctx, tokenAddress, solana.WrappedSOLMint, raw)
	if err != nil {
		return domain.Fill{}, err
	}

	fill := domain.Fill{
		ExecutedPrice: price,
		ExecutedSize:  float64(raw) / scale,
		Signature:     sig,
		ExecutedAt:    g.now(),
	}
	g.logger.InfoContext(ctx, "live sell confirmed",
		slog.String("token", tokenAddress),
		slog.String("signature", sig),
		slog.Float64("size", fill.ExecutedSize),
	)
	return fill, nil
}

// Balance implements domain.BalanceProvider with the wallet's SOL balance.
func (g *LiveGateway) Balance(ctx context.Context) (float64, error) {
	lamports, err := g.chain.GetBalance(ctx, g.signer.Address())
	if err != nil {
		return 0, err
	}
	return float64(lamports) / solana.LamportsPerSOL, nil
}

// swap quotes, signs, submits and confirms one exact-in swap.
func (g *LiveGateway) swap(ctx context.Context, in, out string, amount uint64) (jupiter.Quote, string, error) {
	quote, err := g.swapper.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   in,
		OutputMint:  out,
		Amount:      amount,
		SlippageBps: g.cfg.SlippageBps,
	})
	if err != nil {
		return jupiter.Quote{}, "", fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	unsigned, err := g.swapper.SwapTransaction(ctx, quote, g.signer.Address())
	if err != nil {
		return jupiter.Quote{}, "", fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	signed, err := solana.SignTransaction(unsigned, g.signer.PrivateKey())
	if err != nil {
		return jupiter.Quote{}, "", fmt.Errorf("%w: %w: %w", domain.ErrExecutionFailed, domain.ErrSigningFailed, err)
	}
	sig, err := g.chain.SendTransaction(ctx, signed)
	if err != nil {
		return jupiter.Quote{}, "", fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()
	if err := g.chain.WaitForConfirmation(cctx, sig, g.cfg.PollInterval); err != nil {
		return jupiter.Quote{}, "", fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	return quote, sig, nil
}

func (g *LiveGateway) price(ctx context.Context, tokenAddress string) (float64, error) {
	quotes, err := g.feed.Quotes(ctx, []string{tokenAddress})
	if err != nil {
		return 0, fmt.Errorf("%w: %w: %w", domain.ErrExecutionFailed, domain.ErrPriceFeedUnavailable, err)
	}
	q, ok := quotes[tokenAddress]
	if !ok || q.PriceUSD <= 0 {
		return 0, fmt.Errorf("%w: %w: no price for %s", domain.ErrExecutionFailed, domain.ErrPriceFeedUnavailable, tokenAddress)
	}
	return q.PriceUSD, nil
}

// mint returns the cached decimals and owning token program of a mint.
func (g *LiveGateway) mint(ctx context.Context, tokenAddress string) (mintInfo, error) {
	g.mu.Lock()
	info, ok := g.mints[tokenAddress]
	g.mu.Unlock()
	if ok {
		return info, nil
	}

	supply, err := g.chain.GetTokenSupply(ctx, tokenAddress)
	if err != nil {
		return mintInfo{}, err
	}
	program, err := g.chain.GetAccountOwner(ctx, tokenAddress)
	if err != nil {
		return mintInfo{}, err
	}
	info = mintInfo{decimals: supply.Decimals, program: program}

	g.mu.Lock()
	g.mints[tokenAddress] = info
	g.mu.Unlock()
	return info, nil
}

// held returns the wallet's raw token balance from its associated token
// account.
func (g *LiveGateway) held(ctx context.Context, tokenAddress string, info mintInfo) (uint64, error) {
	owner, err := solana.ParsePublicKey(g.signer.Address())
	if err != nil {
		return 0, err
	}
	mint, err := solana.ParsePublicKey(tokenAddress)
	if err != nil {
		return 0, err
	}
	program, err := solana.ParsePublicKey(info.program)
	if err != nil {
		return 0, err
	}
	ata, err := solana.AssociatedTokenAddress(owner, mint, program)
	if err != nil {
		return 0, err
	}
	bal, err := g.chain.GetTokenAccountBalance(ctx, ata.String())
	if err != nil {
		return 0, err
	}
	return bal.Raw()
}

// Compile-time interface checks.
var (
	_ domain.ExecutionGateway = (*LiveGateway)(nil)
	_ domain.BalanceProvider  = (*LiveGateway)(nil)
	_ Chain                   = (*solana.Client)(nil)
	_ Swapper                 = (*jupiter.Client)(nil)
)
