package domain

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestPosition() *Position {
	return NewPosition(Balances{Asset: 10, Stable: 1000}, 100, t0)
}

func TestNewPosition_Snapshot(t *testing.T) {
	p := newTestPosition()
	assert.Equal(t, 10.0, p.InitialAssetBalance)
	assert.Equal(t, 1000.0, p.InitialStableBalance)
	assert.Equal(t, 100.0, p.InitialPrice)
	assert.Equal(t, 2000.0, p.InitialValue)
	assert.Equal(t, t0, p.StartTime)
	assert.Zero(t, p.TotalBought+p.TotalSold+p.TotalSpent+p.TotalReceived+p.NetAssetTraded)
	assert.Empty(t, p.Trades)
	assert.NotNil(t, p.Trades)
}

// Escenario: compra de 1 SOL a 100 → entrada media 100, no realizado a 110 = 10.
func TestLogTrade_SingleBuy(t *testing.T) {
	p := newTestPosition()
	tr, err := p.LogTrade(ExtremeFear, 100, 1, -100, "bundle-1", t0)
	require.NoError(t, err)

	assert.Equal(t, Buy, tr.Direction)
	assert.Equal(t, 1.0, tr.AssetAmount)
	assert.Equal(t, 100.0, tr.StableAmount)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, "bundle-1", tr.BundleID)

	assert.InDelta(t, 100, p.AverageEntryPrice(), 1e-9)
	assert.InDelta(t, 10, p.UnrealizedPnL(110), 1e-9)
	assert.InDelta(t, -100, p.RealizedPnL(), 1e-9)
	assert.Len(t, p.Trades, 1)
}

func TestLogTrade_AverageEntryWeighted(t *testing.T) {
	p := newTestPosition()
	_, err := p.LogTrade(Fear, 100, 1, -100, "a", t0)
	require.NoError(t, err)
	_, err = p.LogTrade(Fear, 120, 1, -120, "b", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 110, p.AverageEntryPrice(), 1e-9)
}

func TestLogTrade_Sell(t *testing.T) {
	p := newTestPosition()
	_, err := p.LogTrade(Fear, 100, 2, -200, "a", t0)
	require.NoError(t, err)
	tr, err := p.LogTrade(Greed, 150, -1, 150, "b", t0)
	require.NoError(t, err)

	assert.Equal(t, Sell, tr.Direction)
	assert.InDelta(t, 1, p.NetAssetTraded, 1e-9)
	assert.InDelta(t, 150, p.AverageSellPrice(), 1e-9)
	assert.InDelta(t, -50, p.RealizedPnL(), 1e-9)
	// 1 SOL neto a 150 contra 50 USDC de coste neto
	assert.InDelta(t, 100, p.UnrealizedPnL(150), 1e-9)
	assert.InDelta(t, 3, p.TotalVolumeAsset, 1e-9)
	assert.InDelta(t, 350, p.TotalVolumeStable, 1e-9)
}

func TestLogTrade_RejectsInvalid(t *testing.T) {
	p := newTestPosition()
	before := *p

	_, err := p.LogTrade(Fear, math.NaN(), 1, -100, "x", t0)
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = p.LogTrade(Fear, 100, 0, -100, "x", t0)
	assert.ErrorIs(t, err, ErrInvalidTrade)
	_, err = p.LogTrade(Fear, 100, 1, math.Inf(-1), "x", t0)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	assert.Equal(t, before.TotalBought, p.TotalBought)
	assert.Equal(t, before.TotalSpent, p.TotalSpent)
	assert.Empty(t, p.Trades)
}

func TestNetAssetTraded_Invariant(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	p := newTestPosition()
	var bought, sold float64
	for i := 0; i < 500; i++ {
		amt := r.Float64()*3 + 0.001
		price := 50 + r.Float64()*100
		if r.IntN(2) == 0 {
			_, err := p.LogTrade(Fear, price, amt, -amt*price, "", t0)
			require.NoError(t, err)
			bought += amt
		} else {
			_, err := p.LogTrade(Greed, price, -amt, amt*price, "", t0)
			require.NoError(t, err)
			sold += amt
		}
		assert.InDelta(t, p.TotalBought-p.TotalSold, p.NetAssetTraded, PositionEpsilon)
	}
	assert.InDelta(t, bought-sold, p.NetAssetTraded, 1e-6)
}

func TestAverageEntry_OrderInvariant(t *testing.T) {
	buys := [][2]float64{{1, 100}, {0.5, 90}, {2, 130}, {1, 100}, {0.25, 80}}

	forward := newTestPosition()
	for _, b := range buys {
		_, err := forward.LogTrade(Fear, b[1], b[0], -b[0]*b[1], "", t0)
		require.NoError(t, err)
	}
	backward := newTestPosition()
	for i := len(buys) - 1; i >= 0; i-- {
		b := buys[i]
		_, err := backward.LogTrade(Fear, b[1], b[0], -b[0]*b[1], "", t0)
		require.NoError(t, err)
	}
	assert.InDelta(t, forward.AverageEntryPrice(), backward.AverageEntryPrice(), 1e-9)
}

func TestCurrentValue_LinearInPrice(t *testing.T) {
	p := newTestPosition()
	p.UpdateBalances(Balances{Asset: 7.25, Stable: 400})
	for _, pair := range [][2]float64{{100, 110}, {50, 200}, {120, 80}} {
		diff := p.CurrentValue(pair[1]) - p.CurrentValue(pair[0])
		assert.InDelta(t, p.AssetBalance*(pair[1]-pair[0]), diff, 1e-9)
	}
}

func TestUpdateBalances_ClampsNegative(t *testing.T) {
	p := newTestPosition()
	p.UpdateBalances(Balances{Asset: -1, Stable: 5})
	assert.Equal(t, Balances{Asset: 0, Stable: 5}, p.Balances())
}

func TestStatistics(t *testing.T) {
	p := newTestPosition()
	assert.Zero(t, p.AverageEntryPrice())
	assert.Zero(t, p.AverageSellPrice())
	assert.Zero(t, p.TradedPerformancePct(100))

	_, err := p.LogTrade(Fear, 100, 1, -100, "", t0)
	require.NoError(t, err)
	p.UpdateBalances(Balances{Asset: 11, Stable: 900})

	assert.InDelta(t, 2200, p.CurrentValue(110), 1e-9)
	assert.InDelta(t, 200, p.TotalPnL(110), 1e-9)
	assert.InDelta(t, 10, p.PortfolioChangePct(110), 1e-9)
	assert.InDelta(t, 10, p.PriceChangePct(110), 1e-9)
	assert.InDelta(t, 10, p.TradedPerformancePct(110), 1e-9)
	assert.InDelta(t, 210, p.VolumeUSD(110), 1e-9)
}

func TestRecentTrades_NewestFirst(t *testing.T) {
	p := newTestPosition()
	for i := 1; i <= 10; i++ {
		_, err := p.LogTrade(Fear, 100, float64(i), -100*float64(i), "", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	recent := p.RecentTrades(RecentTradesLimit)
	require.Len(t, recent, 7)
	assert.Equal(t, 10.0, recent[0].AssetAmount)
	assert.Equal(t, 4.0, recent[6].AssetAmount)

	assert.Len(t, p.RecentTrades(50), 10)
	assert.Empty(t, p.RecentTrades(0))
}

func TestClone_Independent(t *testing.T) {
	p := newTestPosition()
	_, err := p.LogTrade(Fear, 100, 1, -100, "", t0)
	require.NoError(t, err)

	cp := p.Clone()
	cp.Trades[0].Price = 999
	cp.TotalBought = 42
	assert.Equal(t, 100.0, p.Trades[0].Price)
	assert.Equal(t, 1.0, p.TotalBought)
}

func TestSummarize(t *testing.T) {
	p := newTestPosition()
	_, err := p.LogTrade(Fear, 100, 1, -100, "b1", t0)
	require.NoError(t, err)
	p.UpdateBalances(Balances{Asset: 11, Stable: 900})
	p.IncrementCycle()

	s := Summarize(p, 110, 25, Fear, t0.Add(2*time.Hour))
	assert.Equal(t, 110.0, s.Price)
	assert.Equal(t, 25, s.FearGreedIndex)
	assert.Equal(t, Fear, s.Sentiment)
	assert.InDelta(t, 2200, s.PortfolioValue, 1e-9)
	assert.InDelta(t, 2, s.RuntimeHours, 1e-9)
	assert.Equal(t, 1, s.Cycles)
	assert.Len(t, s.RecentTrades, 1)
	assert.Equal(t, 2000.0, s.InitialPortfolioValue)
}
