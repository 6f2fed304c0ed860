package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

const (
	historySheet = "History"
	summarySheet = "Summary"
)

var historyHeader = []string{
	"Position", "Symbol", "Token", "Entry Time", "Exit Time", "Duration",
	"Entry Price", "Exit Price", "Avg Exit Price", "Initial Size",
	"Levels Hit", "Exit Reason", "P/L %",
}

type styles struct {
	header  int
	percent int
	loss    int
	date    int
}

func newStyles(fx *excelize.File) (styles, error) {
	var s styles
	var err error

	s.header, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, err
	}
	s.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10, // 0.00%
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}
	s.loss, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, err
	}
	s.date, err = fx.NewStyle(&excelize.Style{NumFmt: 22}) // m/d/yy h:mm
	return s, err
}

// WriteHistoryXLSX writes the closed-trade history and its summary as an
// xlsx workbook.
func WriteHistoryXLSX(w io.Writer, closed []domain.ClosedPosition, s domain.Summary) error {
	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), historySheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	st, err := newStyles(fx)
	if err != nil {
		return fmt.Errorf("report: styles: %w", err)
	}

	for i, h := range historyHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(historySheet, cell, h); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(historyHeader), 1)
	if err := fx.SetCellStyle(historySheet, "A1", last, st.header); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	for i, c := range closed {
		row := i + 2
		levels := make([]string, len(c.LevelsHit))
		for j, l := range c.LevelsHit {
			levels[j] = fmt.Sprintf("%gx", l)
		}
		values := []any{
			c.PositionID, c.Symbol, c.TokenAddress, c.EntryTime, c.ExitTime,
			c.Duration().Round(time.Second).String(),
			c.EntryPrice, c.ExitPrice, c.AvgExitPrice, c.InitialSize,
			strings.Join(levels, " "), string(c.ExitReason), c.ProfitLossPct / 100,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := fx.SetSheetRow(historySheet, start, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", row, err)
		}

		pnlStyle := st.percent
		if c.ProfitLossPct < 0 {
			pnlStyle = st.loss
		}
		pnlCell, _ := excelize.CoordinatesToCellName(len(historyHeader), row)
		_ = fx.SetCellStyle(historySheet, pnlCell, pnlCell, pnlStyle)
		d0, _ := excelize.CoordinatesToCellName(4, row)
		d1, _ := excelize.CoordinatesToCellName(5, row)
		_ = fx.SetCellStyle(historySheet, d0, d1, st.date)
	}
	_ = fx.SetColWidth(historySheet, "A", "A", 34)
	_ = fx.SetColWidth(historySheet, "C", "C", 46)
	_ = fx.SetColWidth(historySheet, "D", "E", 18)
	_ = fx.SetColWidth(historySheet, "G", "M", 14)

	rows := [][]any{
		{"Win rate", s.WinRate},
		{"Total P/L", s.TotalProfitLoss / 100},
		{"Unrealised P/L", s.UnrealizedPnL / 100},
		{"Closed", s.ClosedPositions},
		{"Wins", s.Wins},
		{"Losses", s.Losses},
		{"Open", s.OpenPositions},
		{"Potential", s.PotentialTrades},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := fx.SetSheetRow(summarySheet, cell, &r); err != nil {
			return fmt.Errorf("report: summary: %w", err)
		}
	}
	_ = fx.SetCellStyle(summarySheet, "B1", "B3", st.percent)
	_ = fx.SetColWidth(summarySheet, "A", "A", 18)

	if err := fx.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}
