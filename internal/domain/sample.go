package domain

import "time"

// Sample es la observación de mercado de un ciclo, se opere o no.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Index     int       `json:"index"`
	Sentiment Sentiment `json:"sentiment"`
}
