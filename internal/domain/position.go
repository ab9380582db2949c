package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// PositionEpsilon es la tolerancia con la que se cumple NetAssetTraded == TotalBought - TotalSold.
const PositionEpsilon = 1e-9

// Position es la contabilidad de la sesión: saldos actuales, foto inicial y acumulados.
//
// Solo LogTrade, UpdateBalances e IncrementCycle la mutan. En un reset se reemplaza entera.
type Position struct {
	AssetBalance  float64 `json:"asset_balance"`
	StableBalance float64 `json:"stable_balance"`

	// Foto al inicio de la sesión
	InitialAssetBalance  float64   `json:"initial_asset_balance"`
	InitialStableBalance float64   `json:"initial_stable_balance"`
	InitialPrice         float64   `json:"initial_price"`
	InitialValue         float64   `json:"initial_value"`
	StartTime            time.Time `json:"start_time"`

	// Acumulados de trades
	TotalBought    float64 `json:"total_bought"`   // SOL comprado
	TotalSpent     float64 `json:"total_spent"`    // USDC gastado en compras
	TotalSold      float64 `json:"total_sold"`     // SOL vendido
	TotalReceived  float64 `json:"total_received"` // USDC recibido en ventas
	NetAssetTraded float64 `json:"net_asset_traded"`

	TotalVolumeAsset  float64 `json:"total_volume_asset"`
	TotalVolumeStable float64 `json:"total_volume_stable"`
	Cycles            int     `json:"cycles"`

	Trades []Trade `json:"trades"`
}

// NewPosition crea la foto inicial de una sesión a partir de saldos y precio frescos.
func NewPosition(b Balances, price float64, now time.Time) *Position {
	return &Position{
		AssetBalance:         b.Asset,
		StableBalance:        b.Stable,
		InitialAssetBalance:  b.Asset,
		InitialStableBalance: b.Stable,
		InitialPrice:         price,
		InitialValue:         b.Asset*price + b.Stable,
		StartTime:            now,
		Trades:               []Trade{},
	}
}

// UpdateBalances reemplaza los saldos actuales por los leídos del ledger.
// Saldos negativos se truncan a 0.
func (p *Position) UpdateBalances(b Balances) {
	p.AssetBalance = math.Max(0, b.Asset)
	p.StableBalance = math.Max(0, b.Stable)
}

// Balances devuelve los saldos actuales.
func (p *Position) Balances() Balances {
	return Balances{Asset: p.AssetBalance, Stable: p.StableBalance}
}

// IncrementCycle cuenta un ciclo más de la sesión.
func (p *Position) IncrementCycle() {
	p.Cycles++
}

// LogTrade contabiliza un swap. assetDelta > 0 es compra, < 0 es venta.
// Es contabilidad pura: no toca la red ni los saldos (esos llegan por UpdateBalances).
func (p *Position) LogTrade(sentiment Sentiment, price, assetDelta, stableDelta float64, bundleID string, at time.Time) (Trade, error) {
	for _, v := range []float64{price, assetDelta, stableDelta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Trade{}, fmt.Errorf("position.LogTrade: %w: non-finite value", ErrInvalidTrade)
		}
	}
	if assetDelta == 0 {
		return Trade{}, fmt.Errorf("position.LogTrade: %w: zero asset delta", ErrInvalidTrade)
	}

	dir := Sell
	if assetDelta > 0 {
		dir = Buy
	}
	assetAmount := math.Abs(assetDelta)
	stableAmount := math.Abs(stableDelta)

	trade := Trade{
		ID:           uuid.New().String(),
		Direction:    dir,
		AssetAmount:  assetAmount,
		StableAmount: stableAmount,
		Price:        price,
		Sentiment:    sentiment,
		BundleID:     bundleID,
		Timestamp:    at,
	}
	p.Trades = append(p.Trades, trade)

	if dir == Buy {
		p.TotalBought += assetAmount
		p.TotalSpent += stableAmount
	} else {
		p.TotalSold += assetAmount
		p.TotalReceived += stableAmount
	}
	// recalculado desde los totales para que el invariante no acumule deriva
	p.NetAssetTraded = p.TotalBought - p.TotalSold

	p.TotalVolumeAsset += assetAmount
	p.TotalVolumeStable += stableAmount
	return trade, nil
}

// AverageEntryPrice es el precio medio ponderado de compra; 0 sin compras.
func (p *Position) AverageEntryPrice() float64 {
	if p.TotalBought <= 0 {
		return 0
	}
	return p.TotalSpent / p.TotalBought
}

// AverageSellPrice es el precio medio ponderado de venta; 0 sin ventas.
func (p *Position) AverageSellPrice() float64 {
	if p.TotalSold <= 0 {
		return 0
	}
	return p.TotalReceived / p.TotalSold
}

// RealizedPnL es el flujo de caja neto en USDC: recibido - gastado.
func (p *Position) RealizedPnL() float64 {
	return p.TotalReceived - p.TotalSpent
}

// UnrealizedPnL valora el SOL neto operado a currentPrice contra su coste neto.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	return p.NetAssetTraded*currentPrice - (p.TotalSpent - p.TotalReceived)
}

// CurrentValue es el valor del portfolio en USDC a currentPrice.
func (p *Position) CurrentValue(currentPrice float64) float64 {
	return p.AssetBalance*currentPrice + p.StableBalance
}

// TotalPnL es el cambio de valor del portfolio desde el inicio de la sesión.
func (p *Position) TotalPnL(currentPrice float64) float64 {
	return p.CurrentValue(currentPrice) - p.InitialValue
}

// PortfolioChangePct es TotalPnL en porcentaje del valor inicial.
func (p *Position) PortfolioChangePct(currentPrice float64) float64 {
	if p.InitialValue == 0 {
		return 0
	}
	return p.TotalPnL(currentPrice) / p.InitialValue * 100
}

// PriceChangePct es la variación del precio de SOL desde el inicio de la sesión.
func (p *Position) PriceChangePct(currentPrice float64) float64 {
	if p.InitialPrice == 0 {
		return 0
	}
	return (currentPrice - p.InitialPrice) / p.InitialPrice * 100
}

// TradedPerformancePct es el rendimiento del SOL operado sobre su coste neto.
func (p *Position) TradedPerformancePct(currentPrice float64) float64 {
	cost := p.TotalSpent - p.TotalReceived
	if cost == 0 {
		return 0
	}
	return p.UnrealizedPnL(currentPrice) / math.Abs(cost) * 100
}

// VolumeUSD es el volumen total operado valorado a currentPrice.
func (p *Position) VolumeUSD(currentPrice float64) float64 {
	return p.TotalVolumeStable + p.TotalVolumeAsset*currentPrice
}

// RecentTrades devuelve los últimos n trades, el más reciente primero.
func (p *Position) RecentTrades(n int) []Trade {
	if n <= 0 || len(p.Trades) == 0 {
		return []Trade{}
	}
	if n > len(p.Trades) {
		n = len(p.Trades)
	}
	out := make([]Trade, 0, n)
	for i := len(p.Trades) - 1; i >= len(p.Trades)-n; i-- {
		out = append(out, p.Trades[i])
	}
	return out
}

// Clone devuelve una copia profunda (los publicadores nunca ven la Position viva).
func (p *Position) Clone() *Position {
	cp := *p
	cp.Trades = make([]Trade, len(p.Trades))
	copy(cp.Trades, p.Trades)
	return &cp
}
