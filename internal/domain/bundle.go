package domain

import "encoding/json"

// QuoteRequest pide una ruta al router para gastar Amount unidades mínimas de Input.
type QuoteRequest struct {
	Input       Asset
	Output      Asset
	Amount      uint64
	SlippageBps int
	FeeBps      int
}

// Quote es la ruta devuelta por el router. Raw se reenvía tal cual al construir el swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    int
	PriceImpactPct float64
	Raw            json.RawMessage
}

// UnsignedTx es la transacción de swap serializada que devuelve el router, sin firmar.
type UnsignedTx struct {
	Base64               string
	LastValidBlockHeight uint64
}

// SignedBundle son las transacciones firmadas (swap primero, tip después) listas para el relayer.
type SignedBundle struct {
	Transactions  [][]byte
	SwapSignature string
	TipSignature  string
	TipAccount    string
	TipLamports   uint64
}

// BundleStatus es el estado de un bundle en el relayer.
type BundleStatus string

const (
	BundlePending BundleStatus = "Pending"
	BundleLanded  BundleStatus = "Landed"
	BundleFailed  BundleStatus = "Failed"
	BundleInvalid BundleStatus = "Invalid" // el relayer no lo conoce (aún o ya)
	BundleTimeout BundleStatus = "Timeout" // local: se agotó la espera sin estado final
)

// Final devuelve true para los estados que cortan el polling.
func (s BundleStatus) Final() bool {
	return s == BundleLanded || s == BundleFailed
}

// BundleAttempt es el estado efímero de un intento de trade; se descarta al resolverse.
type BundleAttempt struct {
	Number      int
	Quote       Quote
	Bundle      SignedBundle
	TipLamports uint64
	BundleID    string
	Status      BundleStatus
	Before      Balances
}
