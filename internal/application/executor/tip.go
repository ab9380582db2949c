package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/ports"
	"github.com/shopspring/decimal"
)

const lamportsPerSOL = 1_000_000_000

// TipConfig holds the tip estimation parameters.
type TipConfig struct {
	Timeout         time.Duration // max wait for a stream sample
	Margin          float64       // multiplier over the capped sample
	DefaultLamports uint64        // used when the stream is unreachable
}

// DefaultTipConfig returns the production tip parameters.
func DefaultTipConfig() TipConfig {
	return TipConfig{
		Timeout:         21 * time.Second,
		Margin:          1.1,
		DefaultLamports: 100_000,
	}
}

// TipEstimator turns the relayer's tip stream into a lamport amount.
type TipEstimator struct {
	stream ports.TipStream
	cfg    TipConfig
}

// NewTipEstimator creates a TipEstimator. Zero fields take their defaults.
func NewTipEstimator(stream ports.TipStream, cfg TipConfig) *TipEstimator {
	def := DefaultTipConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Margin <= 0 {
		cfg.Margin = def.Margin
	}
	if cfg.DefaultLamports == 0 {
		cfg.DefaultLamports = def.DefaultLamports
	}
	return &TipEstimator{stream: stream, cfg: cfg}
}

// Estimate reads one sample and returns floor(min(sample, capSOL) × 1e9 × margin).
// An unreachable stream yields the default tip, itself bounded by the same cap.
func (t *TipEstimator) Estimate(ctx context.Context, capSOL float64) uint64 {
	fallback := t.cfg.DefaultLamports
	if capSOL > 0 {
		if capped := TipLamports(capSOL, capSOL, t.cfg.Margin); capped < fallback {
			fallback = capped
		}
	}
	if t.stream == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	sample, err := t.stream.LatestTip(ctx)
	if err != nil {
		slog.Warn("executor: tip stream unavailable, using default tip", "lamports", fallback, "err", err)
		return fallback
	}
	lamports := TipLamports(sample, capSOL, t.cfg.Margin)
	if lamports == 0 {
		return fallback
	}
	slog.Debug("executor: tip estimated", "sample_sol", sample, "lamports", lamports)
	return lamports
}

// TipLamports computes floor(min(sampleSOL, capSOL) × 1e9 × margin).
// A non-positive cap leaves the sample uncapped.
func TipLamports(sampleSOL, capSOL, margin float64) uint64 {
	if math.IsNaN(sampleSOL) || sampleSOL <= 0 {
		return 0
	}
	v := sampleSOL
	if capSOL > 0 && capSOL < v {
		v = capSOL
	}
	d := decimal.NewFromFloat(v).
		Mul(decimal.NewFromInt(lamportsPerSOL)).
		Mul(decimal.NewFromFloat(margin)).
		Floor()
	if d.Sign() <= 0 {
		return 0
	}
	return uint64(d.IntPart())
}
