package domain

import "time"

// RecentTradesLimit es el número de trades que se publican al dashboard.
const RecentTradesLimit = 7

// Summary es el resumen de trading que se publica al final de cada ciclo.
type Summary struct {
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	Price          float64   `json:"price"`
	FearGreedIndex int       `json:"fear_greed_index"`
	Sentiment      Sentiment `json:"sentiment"`
	MonitorMode    bool      `json:"monitor_mode"`

	AssetBalance   float64 `json:"asset_balance"`
	StableBalance  float64 `json:"stable_balance"`
	PortfolioValue float64 `json:"portfolio_value"`

	RealizedPnL        float64 `json:"realized_pnl"`
	UnrealizedPnL      float64 `json:"unrealized_pnl"`
	TotalPnL           float64 `json:"total_pnl"`
	PortfolioChangePct float64 `json:"portfolio_change_pct"`
	PriceChangePct     float64 `json:"price_change_pct"`
	AverageEntryPrice  float64 `json:"average_entry_price"`
	AverageSellPrice   float64 `json:"average_sell_price"`
	NetAssetTraded     float64 `json:"net_asset_traded"`
	VolumeAsset        float64 `json:"volume_asset"`
	VolumeStable       float64 `json:"volume_stable"`
	VolumeUSD          float64 `json:"volume_usd"`

	BundleID string `json:"bundle_id,omitempty"`

	InitialPrice          float64   `json:"initial_price"`
	InitialPortfolioValue float64   `json:"initial_portfolio_value"`
	InitialAssetBalance   float64   `json:"initial_asset_balance"`
	InitialStableBalance  float64   `json:"initial_stable_balance"`
	StartTime             time.Time `json:"start_time"`
	RuntimeHours          float64   `json:"runtime_hours"`
	Cycles                int       `json:"cycles"`

	RecentTrades []Trade `json:"recent_trades"`
}

// Summarize construye el Summary de p a currentPrice. Función pura del estado.
func Summarize(p *Position, currentPrice float64, index int, s Sentiment, now time.Time) Summary {
	return Summary{
		Timestamp:             now,
		Price:                 currentPrice,
		FearGreedIndex:        index,
		Sentiment:             s,
		AssetBalance:          p.AssetBalance,
		StableBalance:         p.StableBalance,
		PortfolioValue:        p.CurrentValue(currentPrice),
		RealizedPnL:           p.RealizedPnL(),
		UnrealizedPnL:         p.UnrealizedPnL(currentPrice),
		TotalPnL:              p.TotalPnL(currentPrice),
		PortfolioChangePct:    p.PortfolioChangePct(currentPrice),
		PriceChangePct:        p.PriceChangePct(currentPrice),
		AverageEntryPrice:     p.AverageEntryPrice(),
		AverageSellPrice:      p.AverageSellPrice(),
		NetAssetTraded:        p.NetAssetTraded,
		VolumeAsset:           p.TotalVolumeAsset,
		VolumeStable:          p.TotalVolumeStable,
		VolumeUSD:             p.VolumeUSD(currentPrice),
		InitialPrice:          p.InitialPrice,
		InitialPortfolioValue: p.InitialValue,
		InitialAssetBalance:   p.InitialAssetBalance,
		InitialStableBalance:  p.InitialStableBalance,
		StartTime:             p.StartTime,
		RuntimeHours:          now.Sub(p.StartTime).Hours(),
		Cycles:                p.Cycles,
		RecentTrades:          p.RecentTrades(RecentTradesLimit),
	}
}

// PersistedState es el documento único que se escribe tras cada ciclo
// y se lee al arrancar para reanudar en vez de resetear.
type PersistedState struct {
	Position *Position `json:"position"`
	Summary  Summary   `json:"summary"`
	Settings Settings  `json:"settings"`
	SavedAt  time.Time `json:"saved_at"`
}
