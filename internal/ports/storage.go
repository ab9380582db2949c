package ports

import (
	"context"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
)

// StateStore persiste el documento de estado entre reinicios.
type StateStore interface {
	// Load devuelve (nil, nil) si todavía no hay estado guardado.
	Load(ctx context.Context) (*domain.PersistedState, error)
	// Save escribe el estado de forma atómica: o queda el anterior o el nuevo.
	Save(ctx context.Context, st domain.PersistedState) error
}

// Journal es el histórico consultable de muestras y trades.
type Journal interface {
	SaveSample(ctx context.Context, s domain.Sample) error
	SaveTrade(ctx context.Context, t domain.Trade) error
	RecentSamples(ctx context.Context, limit int) ([]domain.Sample, error)
	Trades(ctx context.Context) ([]domain.Trade, error)
	// ClearTrades borra el histórico de trades (reset de sesión). Las muestras se conservan.
	ClearTrades(ctx context.Context) error
}

// SettingsProvider da acceso a los settings vigentes.
type SettingsProvider interface {
	// Current devuelve una copia; modificarla no afecta al proveedor.
	Current() domain.Settings
	Update(ctx context.Context, s domain.Settings) error
}
