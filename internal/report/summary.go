// Package report renders performance summaries: a console table for the
// periodic log and a spreadsheet of the closed-trade history.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// RenderSummary writes the performance summary followed by one row per open
// position.
func RenderSummary(w io.Writer, s domain.Summary, open []domain.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("PERFORMANCE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Win rate", fmt.Sprintf("%.2f%%", s.WinRate*100)},
		{"Total P/L", fmt.Sprintf("%+.2f%%", s.TotalProfitLoss)},
		{"Unrealised P/L", fmt.Sprintf("%+.2f%%", s.UnrealizedPnL)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Closed", fmt.Sprintf("%d (%d won, %d lost)", s.ClosedPositions, s.Wins, s.Losses)},
		{"Open", s.OpenPositions},
		{"Potential", s.PotentialTrades},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, WidthMax: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()

	if len(open) == 0 {
		return
	}

	p := table.NewWriter()
	p.SetOutputMirror(w)
	p.SetTitle("OPEN POSITIONS")
	p.SetStyle(table.StyleRounded)
	p.AppendHeader(table.Row{"Symbol", "Entry", "Current", "Stop", "P/L", "Size", "Levels hit", "Age"})
	for _, pos := range open {
		p.AppendRow(table.Row{
			pos.Symbol,
			fmt.Sprintf("%.8g", pos.EntryPrice),
			fmt.Sprintf("%.8g", pos.CurrentPrice),
			fmt.Sprintf("%.8g", pos.StopLossPrice),
			fmt.Sprintf("%+.2f%%", pos.ProfitLossPct()),
			fmt.Sprintf("%.4f", pos.Size),
			fmt.Sprintf("%d/%d", len(pos.LevelsHit()), len(pos.TakeProfitLevels)),
			time.Since(pos.EntryTime).Truncate(time.Second).String(),
		})
	}
	p.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	p.Render()
}
