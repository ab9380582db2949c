package ports

import (
	"context"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
)

// QuoteService obtiene rutas de swap y transacciones sin firmar del router.
type QuoteService interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
	BuildSwap(ctx context.Context, q domain.Quote) (domain.UnsignedTx, error)
}

// TipStream entrega muestras del tip de mercado (en SOL) del relayer.
type TipStream interface {
	// LatestTip bloquea hasta recibir una muestra o hasta que ctx expire.
	LatestTip(ctx context.Context) (float64, error)
}

// BundleBuilder firma el swap y construye la transacción de tip con un blockhash fresco.
type BundleBuilder interface {
	Build(ctx context.Context, swap domain.UnsignedTx, tipLamports uint64, tipAccount string) (domain.SignedBundle, error)
}

// BundleRelayer envía bundles y consulta su estado.
type BundleRelayer interface {
	SendBundle(ctx context.Context, b domain.SignedBundle) (bundleID string, err error)
	// BundleStatus devuelve BundleInvalid si el relayer aún no conoce el bundle.
	BundleStatus(ctx context.Context, bundleID string) (domain.BundleStatus, error)
}

// BalanceReader lee los saldos del wallet de sesión en el ledger.
type BalanceReader interface {
	Balances(ctx context.Context) (domain.Balances, error)
}

// SignatureChecker consulta el estado de una firma directamente en el ledger.
// Se usa cuando el relayer no dio un estado final a tiempo.
type SignatureChecker interface {
	SignatureStatus(ctx context.Context, signature string) (domain.BundleStatus, error)
}
