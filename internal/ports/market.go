package ports

import (
	"context"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
)

// PriceOracle devuelve el precio en USDC de una unidad del activo.
type PriceOracle interface {
	// Price reintenta internamente; un error significa que se agotaron los reintentos
	// y el ciclo debe abortarse.
	Price(ctx context.Context, asset domain.Asset) (float64, error)
}

// SentimentSource lee el índice fear & greed (0–100).
type SentimentSource interface {
	// FetchIndex nunca falla: ante cualquier error devuelve domain.NeutralIndex.
	FetchIndex(ctx context.Context) int
}
