package domain

import (
	"log/slog"
	"math"
)

// Sentiment es la clasificación discreta del índice fear & greed.
type Sentiment string

const (
	ExtremeFear  Sentiment = "EXTREME_FEAR"
	Fear         Sentiment = "FEAR"
	Neutral      Sentiment = "NEUTRAL"
	Greed        Sentiment = "GREED"
	ExtremeGreed Sentiment = "EXTREME_GREED"
)

// NeutralIndex es el índice que se usa cuando la fuente no devuelve un valor válido.
const NeutralIndex = 50

// Sentiments lista las cinco clasificaciones en orden creciente de índice.
var Sentiments = []Sentiment{ExtremeFear, Fear, Neutral, Greed, ExtremeGreed}

// Direction devuelve el lado del trade que dispara el sentimiento.
// Miedo compra SOL, codicia vende SOL, neutral no opera.
func (s Sentiment) Direction() Direction {
	switch s {
	case ExtremeFear, Fear:
		return Buy
	case Greed, ExtremeGreed:
		return Sell
	default:
		return Hold
	}
}

// Valid devuelve true si s es una de las cinco clasificaciones conocidas.
func (s Sentiment) Valid() bool {
	for _, known := range Sentiments {
		if s == known {
			return true
		}
	}
	return false
}

// Boundaries son los cuatro umbrales EF < F < G < EG que separan las clasificaciones.
type Boundaries struct {
	ExtremeFear  float64 `json:"extreme_fear" yaml:"extreme_fear"`
	Fear         float64 `json:"fear" yaml:"fear"`
	Greed        float64 `json:"greed" yaml:"greed"`
	ExtremeGreed float64 `json:"extreme_greed" yaml:"extreme_greed"`
}

// DefaultBoundaries son los umbrales de fábrica (20/40/60/80).
func DefaultBoundaries() Boundaries {
	return Boundaries{ExtremeFear: 20, Fear: 40, Greed: 60, ExtremeGreed: 80}
}

// Validate devuelve ErrInvalidBoundaries si los umbrales no son estrictamente crecientes
// o caen fuera de [0, 100].
func (b Boundaries) Validate() error {
	vals := []float64{b.ExtremeFear, b.Fear, b.Greed, b.ExtremeGreed}
	for i, v := range vals {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return ErrInvalidBoundaries
		}
		if i > 0 && v <= vals[i-1] {
			return ErrInvalidBoundaries
		}
	}
	return nil
}

// Classify mapea un índice 0–100 a un Sentiment.
//
//	index <  EF        → EXTREME_FEAR
//	EF <= index < F    → FEAR
//	F  <= index < G    → NEUTRAL
//	G  <= index < EG   → GREED
//	EG <= index <= 100 → EXTREME_GREED
//
// Umbrales mal formados o índice no finito / fuera de rango devuelven NEUTRAL
// (se loguea la anomalía, nunca se devuelve error).
func Classify(index float64, b Boundaries) Sentiment {
	if math.IsNaN(index) || math.IsInf(index, 0) || index < 0 || index > 100 {
		slog.Warn("sentiment: index out of range, defaulting to neutral", "index", index)
		return Neutral
	}
	if err := b.Validate(); err != nil {
		slog.Warn("sentiment: boundaries not strictly increasing, defaulting to neutral",
			"extreme_fear", b.ExtremeFear,
			"fear", b.Fear,
			"greed", b.Greed,
			"extreme_greed", b.ExtremeGreed,
		)
		return Neutral
	}

	switch {
	case index < b.ExtremeFear:
		return ExtremeFear
	case index < b.Fear:
		return Fear
	case index < b.Greed:
		return Neutral
	case index < b.ExtremeGreed:
		return Greed
	default:
		return ExtremeGreed
	}
}
