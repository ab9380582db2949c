package ports

import (
	"context"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
)

// Publisher presenta el resumen de cada ciclo (consola, dashboard).
type Publisher interface {
	Publish(ctx context.Context, s domain.Summary) error
}
