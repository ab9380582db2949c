package domain

import "github.com/shopspring/decimal"

// TradeSize calcula floor(balance × multiplier × 10^decimals) en la unidad mínima del activo
// que se gasta. NEUTRAL siempre da 0. Un 0 significa "saldo insuficiente": no se opera
// y no es un error.
func TradeSize(balance float64, s Sentiment, m Multipliers, decimals int32) uint64 {
	mult := m.For(s)
	if mult <= 0 || balance <= 0 {
		return 0
	}
	raw := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(mult)).
		Shift(decimals).
		Floor()
	if raw.Sign() <= 0 {
		return 0
	}
	return uint64(raw.IntPart())
}
