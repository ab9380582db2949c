package domain

import "github.com/shopspring/decimal"

// Asset describe un token SPL (o SOL nativo) del portfolio.
type Asset struct {
	Symbol   string
	Mint     string // dirección base58 del mint
	Decimals int32  // decimales de la unidad mínima (lamports, micro-USDC)
}

var (
	// SOL es el activo volátil. Su mint es el de wrapped SOL, que es lo que entiende el router.
	SOL = Asset{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9}

	// USDC es el activo estable.
	USDC = Asset{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}
)

// ToAtomic convierte una cantidad en unidades enteras (1.5 SOL → 1_500_000_000).
// Trunca hacia abajo; nunca redondea hacia arriba.
func (a Asset) ToAtomic(amount float64) uint64 {
	d := decimal.NewFromFloat(amount).Shift(a.Decimals).Floor()
	if d.Sign() <= 0 {
		return 0
	}
	return uint64(d.IntPart())
}

// FromAtomic convierte unidades enteras a unidades de UI (1_500_000_000 → 1.5 SOL).
func (a Asset) FromAtomic(amount uint64) float64 {
	f, _ := decimal.NewFromUint64(amount).Shift(-a.Decimals).Float64()
	return f
}

// Balances es la foto de los dos saldos del wallet en unidades de UI.
type Balances struct {
	Asset  float64 `json:"asset"`  // SOL
	Stable float64 `json:"stable"` // USDC
}

// Delta devuelve after - before para cada activo.
func (b Balances) Delta(before Balances) (assetDelta, stableDelta float64) {
	return b.Asset - before.Asset, b.Stable - before.Stable
}
