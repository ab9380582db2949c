package domain

import "time"

// Direction es el lado de un trade visto desde el activo volátil.
type Direction string

const (
	Buy  Direction = "buy"  // USDC → SOL
	Sell Direction = "sell" // SOL → USDC
	Hold Direction = "hold" // sin trade
)

// Trade es el registro inmutable de un swap contabilizado. Append-only.
type Trade struct {
	ID           string    `json:"id"`
	Direction    Direction `json:"direction"`
	AssetAmount  float64   `json:"asset_amount"`  // SOL, siempre positivo
	StableAmount float64   `json:"stable_amount"` // USDC, siempre positivo
	Price        float64   `json:"price"`
	Sentiment    Sentiment `json:"sentiment"`
	BundleID     string    `json:"bundle_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// TradeResult es el resultado normalizado de un swap que aterrizó.
type TradeResult struct {
	BundleID      string
	SwapSignature string
	TipLamports   uint64
	Price         float64  // |stableDelta| / |assetDelta|
	AssetDelta    float64  // + en compras, - en ventas
	StableDelta   float64  // - en compras, + en ventas
	Balances      Balances // saldos observados tras el swap
	Attempts      int
	Reconciled    bool // confirmado por diferencia de saldos, no por estado del bundle
}

// Direction devuelve Buy si el swap sumó SOL y Sell si lo restó.
func (r TradeResult) Direction() Direction {
	if r.AssetDelta > 0 {
		return Buy
	}
	return Sell
}
