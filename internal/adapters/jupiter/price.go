package jupiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/retry"
	"github.com/shopspring/decimal"
)

type priceResponse struct {
	Data map[string]struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	} `json:"data"`
}

// Price devuelve el precio en USDC de asset, redondeado a céntimos.
// Reintenta con espera fija; agotar los intentos es error y aborta el ciclo.
func (c *Client) Price(ctx context.Context, asset domain.Asset) (float64, error) {
	u := c.opts.PriceBase + "?ids=" + url.QueryEscape(asset.Mint)

	var price float64
	err := c.price.Do(ctx, func(ctx context.Context, attempt int) error {
		var resp priceResponse
		if err := c.get(ctx, c.singleShot(), u, &resp); err != nil {
			slog.Warn("jupiter: price fetch failed", "attempt", attempt+1, "err", err)
			return err
		}
		entry, ok := resp.Data[asset.Mint]
		if !ok || entry.Price <= 0 || math.IsNaN(entry.Price) || math.IsInf(entry.Price, 0) {
			slog.Warn("jupiter: price missing in response", "mint", asset.Mint, "attempt", attempt+1)
			return fmt.Errorf("no price for %s", asset.Mint)
		}
		price, _ = decimal.NewFromFloat(entry.Price).Round(2).Float64()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("jupiter.Price: %w", err)
	}
	slog.Debug("jupiter: price", "asset", asset.Symbol, "price", fmt.Sprintf("$%.2f", price))
	return price, nil
}

// singleShot es un intento único: el oráculo gestiona sus propios reintentos.
func (c *Client) singleShot() retry.Policy {
	return retry.Fixed(1, 0)
}
