package notify

import (
	"fmt"
	"io"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// WriteReport imprime el último resumen persistido, las muestras recientes
// y el histórico de trades de la sesión.
func WriteReport(w io.Writer, st *domain.PersistedState, samples []domain.Sample, trades []domain.Trade) {
	if st == nil {
		fmt.Fprintln(w, "no saved state yet — run the bot first")
	} else {
		s := st.Summary
		fmt.Fprintf(w, "\n=== SESSION (saved %s) ===\n", st.SavedAt.Local().Format("2006-01-02 15:04:05"))
		NewConsoleWriter(w, false).printPosition(s)
		fmt.Fprintf(w, "  cycles %d | runtime %s | trades %d\n",
			s.Cycles, formatRuntime(s.RuntimeHours), len(trades))
	}

	if len(samples) > 0 {
		fmt.Fprintf(w, "\n=== LAST %d SAMPLES ===\n", len(samples))
		table := tablewriter.NewWriter(w)
		table.Header("Time", "Price", "F&G", "Sentiment")
		for _, s := range samples {
			table.Append(
				s.Timestamp.Local().Format("01-02 15:04"),
				fmt.Sprintf("$%.2f", s.Price),
				fmt.Sprintf("%d", s.Index),
				string(s.Sentiment),
			)
		}
		table.Render()
	}

	if len(trades) == 0 {
		fmt.Fprintln(w, "\nno trades in the current session")
		return
	}
	var bought, sold, spent, received float64
	for _, t := range trades {
		if t.Direction == domain.Buy {
			bought += t.AssetAmount
			spent += t.StableAmount
		} else {
			sold += t.AssetAmount
			received += t.StableAmount
		}
	}
	fmt.Fprintf(w, "\n=== TRADES (%d) ===\n", len(trades))
	NewConsoleWriter(w, false).printTrades(trades)
	fmt.Fprintf(w, "  bought %.4f SOL for $%.2f | sold %.4f SOL for $%.2f | net %+.4f SOL\n",
		bought, spent, sold, received, bought-sold)
}
