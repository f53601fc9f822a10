package service

import (
	"fmt"
	"strings"
	"time"

	"futures_bot/internal/flatten"
	"futures_bot/internal/runner"
)

func f2(v float64) string { // для красивого вывода
	return fmt.Sprintf("%.2f", v)
}

func formatStatus(symbol string, rep runner.CycleReport) string {
	if rep.At.IsZero() {
		return fmt.Sprintf("📊 %s\nЦиклов ещё не было", symbol)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n", symbol)
	fmt.Fprintf(&b, "Цикл: %s (%s", rep.At.Format(time.DateTime), rep.Action)
	if rep.Skip != "" {
		fmt.Fprintf(&b, ": %s", rep.Skip)
	}
	b.WriteString(")\n")
	fmt.Fprintf(&b, "Свечей: %d, последняя %s\n", rep.Candles, rep.LastBar.Format(time.DateTime))
	if rep.Position.IsFlat() {
		b.WriteString("Позиция: нет\n")
	} else {
		fmt.Fprintf(&b, "Позиция: %s %g @ %s\n", rep.Position.Side, rep.Position.Size, f2(rep.Position.AvgEntryPrice))
	}
	fmt.Fprintf(&b, "Equity: %s", f2(rep.Equity))
	if rep.Decision.Note != "" {
		fmt.Fprintf(&b, "\nСтратегия: %s", rep.Decision.Note)
	}
	return b.String()
}

func formatFlatten(symbol string, rep flatten.Report, err error) string {
	if err != nil {
		return fmt.Sprintf("🚨 %s: %v\nШагов: %d. Нужно ручное вмешательство.", symbol, err, len(rep.Log))
	}
	return fmt.Sprintf("✅ %s закрыт: %s (шагов: %d)", symbol, rep.Status, len(rep.Log))
}
