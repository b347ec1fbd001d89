package service

import (
	"fmt"
	"strings"
	"time"

	"deriv_bot/internal/models"
)

const helpText = "Команды:\n" +
	"/status - состояние бота\n" +
	"/kill <причина> - остановить торговлю\n" +
	"/resume - снять kill switch"

func formatKillSwitch(ks models.KillSwitchState) string {
	if !ks.Enabled {
		return "🟢 Kill switch: выкл"
	}
	s := "🔴 Kill switch: вкл"
	if ks.Reason != "" {
		s += " (" + ks.Reason + ")"
	}
	if ks.ActivatedAt != nil {
		s += "\nс " + ks.ActivatedAt.UTC().Format(time.DateTime) + " UTC"
	}
	return s
}

func formatStatus(ks models.KillSwitchState, snaps []models.MetricsSnapshot) string {
	var b strings.Builder
	b.WriteString("📊 Статус\n\n")
	b.WriteString(formatKillSwitch(ks))
	b.WriteString("\n")

	if len(snaps) == 0 {
		b.WriteString("\nНет данных по рынку")
		return b.String()
	}
	first := snaps[0]
	fmt.Fprintf(&b, "Соединение: %s\n", onOff(first.Connected))
	fmt.Fprintf(&b, "Баланс: %s (пик %s)\n", optF2(first.Balance), f2(first.PeakEquity))

	for _, s := range snaps {
		fmt.Fprintf(&b, "\n%s\n", s.Symbol)
		fmt.Fprintf(&b, "  цена: %s, свечей: %d\n", optF2(s.LastTickPrice), s.CandlesClosed)
		fmt.Fprintf(&b, "  EMA %s/%s  RSI %s  ATR %s\n", optF2(s.EMAFast), optF2(s.EMASlow), optF2(s.RSI), optF2(s.ATR))
	}
	return b.String()
}
