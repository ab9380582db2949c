package executor_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/application/executor"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeQuotes struct {
	mu       sync.Mutex
	out      uint64
	err      error
	requests []domain.QuoteRequest
}

func (f *fakeQuotes) Quote(_ context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{
		InputMint:  req.Input.Mint,
		OutputMint: req.Output.Mint,
		InAmount:   req.Amount,
		OutAmount:  f.out,
	}, nil
}

func (f *fakeQuotes) BuildSwap(_ context.Context, _ domain.Quote) (domain.UnsignedTx, error) {
	return domain.UnsignedTx{Base64: "AA=="}, nil
}

func (f *fakeQuotes) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeBuilder struct {
	tips     []uint64
	accounts []string
}

func (f *fakeBuilder) Build(_ context.Context, _ domain.UnsignedTx, tipLamports uint64, tipAccount string) (domain.SignedBundle, error) {
	f.tips = append(f.tips, tipLamports)
	f.accounts = append(f.accounts, tipAccount)
	return domain.SignedBundle{
		Transactions:  [][]byte{{1}, {2}},
		SwapSignature: "swap-sig",
		TipAccount:    tipAccount,
		TipLamports:   tipLamports,
	}, nil
}

type fakeRelayer struct {
	mu      sync.Mutex
	status  domain.BundleStatus
	sendErr error
	sends   int
}

func (f *fakeRelayer) SendBundle(_ context.Context, _ domain.SignedBundle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "bundle-1", nil
}

func (f *fakeRelayer) BundleStatus(_ context.Context, _ string) (domain.BundleStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

// fakeBalances devuelve seq en orden y repite el último valor.
type fakeBalances struct {
	mu    sync.Mutex
	seq   []domain.Balances
	calls int
}

func (f *fakeBalances) Balances(_ context.Context) (domain.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.seq) {
		i = len(f.seq) - 1
	}
	f.calls++
	return f.seq[i], nil
}

type fakeTips struct {
	sol float64
	err error
}

func (f fakeTips) LatestTip(_ context.Context) (float64, error) {
	return f.sol, f.err
}

type fakeSignatures struct {
	status domain.BundleStatus
}

func (f fakeSignatures) SignatureStatus(_ context.Context, _ string) (domain.BundleStatus, error) {
	return f.status, nil
}

// --- helpers ---

func testConfig() executor.Config {
	cfg := executor.DefaultConfig()
	cfg.TotalBudget = time.Minute
	cfg.RetryDelay = 0
	cfg.PollInterval = time.Millisecond
	cfg.BundleTimeout = 20 * time.Millisecond
	cfg.BalanceChecks = 3
	cfg.BalanceCheckDelay = 0
	return cfg
}

func buyRequest() executor.Request {
	return executor.Request{
		Sentiment: domain.ExtremeFear,
		Balances:  domain.Balances{Asset: 10, Stable: 1000},
		Price:     150,
		Settings:  domain.DefaultSettings(),
	}
}

type harness struct {
	quotes   *fakeQuotes
	builder  *fakeBuilder
	relayer  *fakeRelayer
	balances *fakeBalances
}

func newHarness(status domain.BundleStatus, seq ...domain.Balances) *harness {
	return &harness{
		quotes:   &fakeQuotes{out: 200_000_000}, // 0.2 SOL
		builder:  &fakeBuilder{},
		relayer:  &fakeRelayer{status: status},
		balances: &fakeBalances{seq: seq},
	}
}

// executor builds an Executor with one default tip account; opts may override it.
func (h *harness) executor(t *testing.T, cfg executor.Config, opts ...executor.Option) *executor.Executor {
	t.Helper()
	opts = append([]executor.Option{executor.WithTipAccounts([]string{"tip-default"})}, opts...)
	e, err := executor.New(h.quotes, h.builder, h.relayer, h.balances, fakeTips{sol: 0.0001}, cfg, opts...)
	require.NoError(t, err)
	return e
}

// --- tests ---

func TestExecute_BuyLanded(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	after := domain.Balances{Asset: 10.2 - 0.00011, Stable: 970}
	h := newHarness(domain.BundleLanded, before, after)

	res, err := h.executor(t, testConfig()).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.Buy, res.Direction())
	assert.InDelta(t, 0.2, res.AssetDelta, 1e-9, "tip is added back to the asset leg")
	assert.InDelta(t, -30, res.StableDelta, 1e-9)
	assert.InDelta(t, 150, res.Price, 1e-6)
	assert.Equal(t, "bundle-1", res.BundleID)
	assert.Equal(t, uint64(110_000), res.TipLamports)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Reconciled)
	assert.Equal(t, after, res.Balances)

	require.Len(t, h.quotes.requests, 1)
	req := h.quotes.requests[0]
	assert.Equal(t, domain.USDC, req.Input)
	assert.Equal(t, domain.SOL, req.Output)
	assert.Equal(t, uint64(30_000_000), req.Amount)
}

func TestExecute_SellLanded(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	after := domain.Balances{Asset: 10 - 0.1 - 0.00011 - 0.000005, Stable: 1015}
	h := newHarness(domain.BundleLanded, before, after)
	h.quotes.out = 15_000_000

	req := buyRequest()
	req.Sentiment = domain.Greed
	req.AverageEntryPrice = 140

	res, err := h.executor(t, testConfig()).Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.Sell, res.Direction())
	assert.InDelta(t, -0.100005, res.AssetDelta, 1e-9)
	assert.InDelta(t, 15, res.StableDelta, 1e-9)
	assert.InDelta(t, 149.99, res.Price, 0.01)
	assert.Equal(t, uint64(100_000_000), h.quotes.requests[0].Amount)
	assert.Equal(t, domain.SOL, h.quotes.requests[0].Input)
}

func TestExecute_LandedWithoutVisibleBalanceUsesQuote(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	h := newHarness(domain.BundleLanded, before)

	res, err := h.executor(t, testConfig()).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.InDelta(t, 0.2, res.AssetDelta, 1e-12)
	assert.InDelta(t, -30, res.StableDelta, 1e-12)
	assert.InDelta(t, 970, res.Balances.Stable, 1e-9)
}

func TestExecute_AllAttemptsFailed(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := newHarness(domain.BundleFailed, domain.Balances{Asset: 10, Stable: 1000})

	res, err := h.executor(t, testConfig()).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 3, h.relayer.sends)
	assert.Equal(t, 3, h.quotes.calls(), "each attempt gets a fresh quote")
	assert.Contains(t, buf.String(), "no trade")
}

func TestExecute_NeverLandedNoBalanceChange(t *testing.T) {
	h := newHarness(domain.BundlePending, domain.Balances{Asset: 10, Stable: 1000})
	cfg := testConfig()
	cfg.MaxAttempts = 2

	res, err := h.executor(t, cfg).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 2, h.relayer.sends)
}

func TestExecute_TimeoutReconciledFromBalances(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	after := domain.Balances{Asset: 10.19989, Stable: 970}
	h := newHarness(domain.BundleInvalid, before, after)

	res, err := h.executor(t, testConfig()).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Reconciled)
	assert.InDelta(t, -30, res.StableDelta, 1e-9)
	assert.Equal(t, 1, h.relayer.sends)
}

func TestExecute_TimeoutWrongDirectionNotReconciled(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	// un depósito externo de USDC no es una compra
	after := domain.Balances{Asset: 10, Stable: 1100}
	h := newHarness(domain.BundlePending, before, after)
	cfg := testConfig()
	cfg.MaxAttempts = 1

	res, err := h.executor(t, cfg).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestExecute_SignatureCheckerSettlesTimeout(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	h := newHarness(domain.BundlePending, before)

	ex := h.executor(t, testConfig(), executor.WithSignatureChecker(fakeSignatures{status: domain.BundleLanded}))
	res, err := ex.Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Reconciled)
	assert.InDelta(t, 0.2, res.AssetDelta, 1e-12)
}

func TestExecute_SignatureCheckerFailedStopsAttempt(t *testing.T) {
	before := domain.Balances{Asset: 10, Stable: 1000}
	after := domain.Balances{Asset: 10.2, Stable: 970}
	h := newHarness(domain.BundlePending, before, after)
	cfg := testConfig()
	cfg.MaxAttempts = 1

	ex := h.executor(t, cfg, executor.WithSignatureChecker(fakeSignatures{status: domain.BundleFailed}))
	res, err := ex.Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestExecute_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*executor.Request)
	}{
		{"neutral holds", func(r *executor.Request) { r.Sentiment = domain.Neutral }},
		{"insufficient stable", func(r *executor.Request) { r.Balances.Stable = 0 }},
		{"dust balance floors to zero", func(r *executor.Request) { r.Balances.Stable = 0.00001 }},
		{"sell below average entry", func(r *executor.Request) {
			r.Sentiment = domain.ExtremeGreed
			r.AverageEntryPrice = 160
		}},
		{"sell at average entry", func(r *executor.Request) {
			r.Sentiment = domain.Greed
			r.AverageEntryPrice = 150
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(domain.BundleLanded, domain.Balances{Asset: 10, Stable: 1000})
			req := buyRequest()
			tt.mutate(&req)

			res, err := h.executor(t, testConfig()).Execute(context.Background(), req)
			require.NoError(t, err)
			assert.Nil(t, res)
			assert.Zero(t, h.quotes.calls())
			assert.Zero(t, h.relayer.sends)
		})
	}
}

func TestExecute_SellWithoutEntryHistoryProceeds(t *testing.T) {
	h := newHarness(domain.BundleLanded, domain.Balances{Asset: 10, Stable: 1000})
	h.quotes.out = 15_000_000
	req := buyRequest()
	req.Sentiment = domain.Greed

	res, err := h.executor(t, testConfig()).Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.Sell, res.Direction())
}

func TestExecute_ZeroQuoteFailsAttempt(t *testing.T) {
	h := newHarness(domain.BundleLanded, domain.Balances{Asset: 10, Stable: 1000})
	h.quotes.out = 0

	res, err := h.executor(t, testConfig()).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 3, h.quotes.calls())
	assert.Zero(t, h.relayer.sends)
}

func TestExecute_BudgetStopsRetries(t *testing.T) {
	h := newHarness(domain.BundleLanded, domain.Balances{Asset: 10, Stable: 1000})
	h.relayer.sendErr = errors.New("rate limited")
	cfg := testConfig()
	cfg.TotalBudget = time.Nanosecond
	cfg.RetryDelay = time.Millisecond

	res, err := h.executor(t, cfg).Execute(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, h.relayer.sends)
}

func TestExecute_ContextCancelled(t *testing.T) {
	h := newHarness(domain.BundlePending, domain.Balances{Asset: 10, Stable: 1000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.executor(t, testConfig()).Execute(ctx, buyRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestExecute_FeeAndTipAccountForwarded(t *testing.T) {
	h := newHarness(domain.BundleLanded, domain.Balances{Asset: 10, Stable: 1000})
	req := buyRequest()
	req.Settings.DeveloperFeeBps = 7

	_, err := h.executor(t, testConfig(), executor.WithTipAccounts([]string{"tip-a"})).Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 7, h.quotes.requests[0].FeeBps)
	assert.Equal(t, []string{"tip-a"}, h.builder.accounts)
}

func TestNew_RequiresTipAccounts(t *testing.T) {
	h := newHarness(domain.BundleLanded)
	tips := fakeTips{sol: 0.0001}

	_, err := executor.New(h.quotes, h.builder, h.relayer, h.balances, tips, testConfig())
	assert.ErrorIs(t, err, executor.ErrNoTipAccounts)

	_, err = executor.New(h.quotes, h.builder, h.relayer, h.balances, tips, testConfig(),
		executor.WithTipAccounts([]string{"tip-a", ""}))
	assert.ErrorIs(t, err, executor.ErrNoTipAccounts)

	e, err := executor.New(h.quotes, h.builder, h.relayer, h.balances, tips, testConfig(),
		executor.WithTipAccounts([]string{"tip-a"}))
	require.NoError(t, err)
	assert.NotNil(t, e)
}
