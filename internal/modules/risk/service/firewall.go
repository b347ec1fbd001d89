package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// Firewall допуск сделки по лимитам просадки, дневного убытка,
// числа сделок и серии убытков. Отказ это значение, не ошибка.
type Firewall struct {
	cfg config.RiskConfig
	now func() time.Time

	mu             sync.Mutex
	day            time.Time
	dayStartEquity *float64
}

func NewFirewall(cfg config.RiskConfig) *Firewall {
	return NewFirewallWithClock(cfg, time.Now)
}

func NewFirewallWithClock(cfg config.RiskConfig, now func() time.Time) *Firewall {
	return &Firewall{cfg: cfg, now: now, day: now().UTC()}
}

// DayStartEquity equity на начало текущих суток UTC (nil до первой проверки).
func (f *Firewall) DayStartEquity() *float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dayStartEquity == nil {
		return nil
	}
	v := *f.dayStartEquity
	return &v
}

func (f *Firewall) Check(s models.RiskSnapshot) models.RiskDecision {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now().UTC()
	if !helper.SameUTCDay(now, f.day) {
		f.day = now
		f.dayStartEquity = helper.Ptr(s.Equity)
	}
	if f.dayStartEquity == nil {
		f.dayStartEquity = helper.Ptr(s.Equity)
	}

	if s.PeakEquity <= 0 {
		return deny("invalid_peak_equity")
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity
	if dd >= f.cfg.MaxDrawdownTotal {
		return deny(fmt.Sprintf("max_drawdown_total_reached dd=%.4f", dd))
	}

	start := *f.dayStartEquity
	dailyLoss := (start - s.Equity) / math.Max(start, 1e-9)
	if dailyLoss >= f.cfg.MaxLossDaily {
		return deny(fmt.Sprintf("max_loss_daily_reached loss=%.4f", dailyLoss))
	}

	if s.TradesToday >= f.cfg.MaxTradesDaily {
		return deny("max_trades_daily_reached")
	}

	if s.ConsecutiveLosses >= f.cfg.MaxConsecutiveLosses {
		if s.LastCloseTime != nil {
			elapsed := now.Sub(*s.LastCloseTime).Seconds()
			remaining := max(0, int(float64(f.cfg.CooldownMinutes*60)-elapsed))
			if remaining > 0 {
				return models.RiskDecision{Reason: "cooldown_after_consecutive_losses", CooldownRemainingSec: remaining}
			}
		}
		return deny("max_consecutive_losses_reached")
	}

	return models.RiskDecision{Allowed: true, Reason: "ok"}
}

func deny(reason string) models.RiskDecision {
	return models.RiskDecision{Allowed: false, Reason: reason}
}
