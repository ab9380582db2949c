package domain

import "errors"

var (
	// ErrInvalidBoundaries indica umbrales de sentimiento no estrictamente crecientes.
	ErrInvalidBoundaries = errors.New("sentiment boundaries must be strictly increasing within [0, 100]")

	// ErrInvalidSettings indica un Settings que no puede usarse para operar.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrInvalidTrade indica datos de trade que no se pueden contabilizar.
	ErrInvalidTrade = errors.New("invalid trade data")
)
