package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Publisher escribiendo el resumen del ciclo en la terminal.
type Console struct {
	out     io.Writer
	compact bool
}

// NewConsole crea un publicador que escribe a stdout.
// compact imprime una línea por ciclo en vez de las tablas.
func NewConsole(compact bool) *Console {
	return &Console{out: os.Stdout, compact: compact}
}

// NewConsoleWriter crea un publicador para tests.
func NewConsoleWriter(w io.Writer, compact bool) *Console {
	return &Console{out: w, compact: compact}
}

// Publish imprime el resumen en el modo configurado.
func (c *Console) Publish(_ context.Context, s domain.Summary) error {
	if c.compact {
		c.printCompact(s)
		return nil
	}
	c.printFull(s)
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(s domain.Summary) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] SOL $%.2f | F&G %d %s | %.4f SOL + %.2f USDC = $%.2f | pnl $%.2f (%+.2f%%)",
		s.Timestamp.Local().Format("15:04:05"),
		s.Price, s.FearGreedIndex, s.Sentiment,
		s.AssetBalance, s.StableBalance, s.PortfolioValue,
		s.TotalPnL, s.PortfolioChangePct)
	if s.MonitorMode {
		sb.WriteString(" | monitor")
	}
	if len(s.RecentTrades) > 0 {
		t := s.RecentTrades[0]
		if t.Timestamp.Equal(s.Timestamp) || s.BundleID != "" && t.BundleID == s.BundleID {
			fmt.Fprintf(&sb, " | %s %.4f SOL @ $%.2f", t.Direction, t.AssetAmount, t.Price)
		}
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la posición y los últimos trades en tablas.
func (c *Console) printFull(s domain.Summary) {
	mode := ""
	if s.MonitorMode {
		mode = " [monitor mode]"
	}
	fmt.Fprintf(c.out, "\n[%s] cycle %d — SOL $%.2f — Fear & Greed %d (%s)%s\n",
		s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.Cycles, s.Price, s.FearGreedIndex, s.Sentiment, mode)

	c.printPosition(s)
	if len(s.RecentTrades) > 0 {
		c.printTrades(s.RecentTrades)
	}
	fmt.Fprintf(c.out, "  runtime %s | volume %.4f SOL / %.2f USDC ($%.2f)\n\n",
		formatRuntime(s.RuntimeHours), s.VolumeAsset, s.VolumeStable, s.VolumeUSD)
}

func (c *Console) printPosition(s domain.Summary) {
	table := tablewriter.NewWriter(c.out)
	table.Header("", "Initial", "Current", "Change")
	table.Append("SOL", fmt.Sprintf("%.4f", s.InitialAssetBalance), fmt.Sprintf("%.4f", s.AssetBalance),
		fmt.Sprintf("%+.4f", s.AssetBalance-s.InitialAssetBalance))
	table.Append("USDC", fmt.Sprintf("%.2f", s.InitialStableBalance), fmt.Sprintf("%.2f", s.StableBalance),
		fmt.Sprintf("%+.2f", s.StableBalance-s.InitialStableBalance))
	table.Append("SOL price", fmt.Sprintf("$%.2f", s.InitialPrice), fmt.Sprintf("$%.2f", s.Price),
		fmt.Sprintf("%+.2f%%", s.PriceChangePct))
	table.Append("Portfolio", fmt.Sprintf("$%.2f", s.InitialPortfolioValue), fmt.Sprintf("$%.2f", s.PortfolioValue),
		fmt.Sprintf("%+.2f%%", s.PortfolioChangePct))
	table.Render()

	fmt.Fprintf(c.out, "  avg entry $%.2f | avg sell $%.2f | realized $%.2f | unrealized $%.2f | total $%.2f\n",
		s.AverageEntryPrice, s.AverageSellPrice, s.RealizedPnL, s.UnrealizedPnL, s.TotalPnL)
}

func (c *Console) printTrades(trades []domain.Trade) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "SOL", "USDC", "Price", "Sentiment", "Bundle")
	for _, t := range trades {
		table.Append(
			t.Timestamp.Local().Format("01-02 15:04"),
			string(t.Direction),
			fmt.Sprintf("%.4f", t.AssetAmount),
			fmt.Sprintf("%.2f", t.StableAmount),
			fmt.Sprintf("$%.2f", t.Price),
			string(t.Sentiment),
			truncate(t.BundleID, 12),
		)
	}
	table.Render()
}

func formatRuntime(hours float64) string {
	d := time.Duration(hours * float64(time.Hour)).Round(time.Minute)
	if d <= 0 {
		return "0m"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd%s", days, strings.TrimSuffix(d.String(), "0s"))
	}
	return strings.TrimSuffix(d.String(), "0s")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
