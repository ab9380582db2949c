package domain

import (
	"fmt"
	"math"
)

// Multipliers es la fracción del saldo a operar por sentimiento.
// NEUTRAL se ignora siempre, tenga el valor que tenga.
type Multipliers map[Sentiment]float64

// For devuelve el multiplicador efectivo para s (0 para NEUTRAL o valores inválidos).
func (m Multipliers) For(s Sentiment) float64 {
	if s == Neutral {
		return 0
	}
	v, ok := m[s]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Settings son los parámetros de trading ajustables en caliente.
// Se leen frescos al inicio de cada ciclo; el executor nunca los modifica.
type Settings struct {
	Boundaries      Boundaries  `json:"sentiment_boundaries"`
	Multipliers     Multipliers `json:"sentiment_multipliers"`
	TipCap          float64     `json:"tip_cap"`           // tip máximo en SOL
	MonitorMode     bool        `json:"monitor_mode"`      // recoger datos sin operar
	DeveloperFeeBps int         `json:"developer_fee_bps"` // fee extra de plataforma, >= 0
}

// DefaultSettings devuelve la configuración de fábrica.
func DefaultSettings() Settings {
	return Settings{
		Boundaries: DefaultBoundaries(),
		Multipliers: Multipliers{
			ExtremeFear:  0.03,
			Fear:         0.01,
			Neutral:      0,
			Greed:        0.01,
			ExtremeGreed: 0.03,
		},
		TipCap: 0.0004,
	}
}

// Normalize corrige los valores saneables (fee negativo, multiplicadores ausentes)
// y devuelve una copia independiente del mapa.
func (s Settings) Normalize() Settings {
	out := s
	out.Multipliers = make(Multipliers, len(Sentiments))
	for _, sent := range Sentiments {
		out.Multipliers[sent] = s.Multipliers.For(sent)
	}
	if out.DeveloperFeeBps < 0 {
		out.DeveloperFeeBps = 0
	}
	if out.TipCap <= 0 || math.IsNaN(out.TipCap) {
		out.TipCap = DefaultSettings().TipCap
	}
	return out
}

// Validate devuelve error si los settings no pueden usarse (umbrales o multiplicadores rotos).
func (s Settings) Validate() error {
	if err := s.Boundaries.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	for sent, v := range s.Multipliers {
		if !sent.Valid() {
			return fmt.Errorf("%w: unknown sentiment %q", ErrInvalidSettings, sent)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: multiplier for %s must be within [0, 1], got %v", ErrInvalidSettings, sent, v)
		}
	}
	return nil
}
