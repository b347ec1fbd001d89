package config

import (
	"fmt"
	"strings"

	"deriv_bot/internal/helper"
)

// ValidationError некорректные параметры, запуск с ними запрещён.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (c *Config) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	if c.Deriv.WebsocketURL == "" {
		add("deriv.websocket_url is empty")
	}
	if c.Deriv.RequestTimeoutSec <= 0 || c.Deriv.ConnectTimeoutSec <= 0 {
		add("deriv timeouts must be > 0")
	}
	if c.Deriv.HeartbeatIntervalSec <= 0 || c.Deriv.PongTimeoutSec <= 0 {
		add("deriv heartbeat interval and pong timeout must be > 0")
	}
	if c.Deriv.BackoffInitialSec <= 0 || c.Deriv.BackoffMaxSec < c.Deriv.BackoffInitialSec {
		add("deriv backoff: need 0 < initial <= max")
	}
	if c.Deriv.BackoffJitter < 0 || c.Deriv.BackoffJitter > 1 {
		add("deriv.backoff_jitter must be in [0,1]")
	}

	t := c.Trading
	if len(c.ActiveSymbols()) == 0 || c.ActiveSymbols()[0] == "" {
		add("trading.symbol is empty")
	}
	if t.ContractType != ContractRiseFall && t.ContractType != ContractMultiplier {
		add("trading.contract_type must be %q or %q, got %q", ContractRiseFall, ContractMultiplier, t.ContractType)
	}
	if t.TimeframeSec <= 0 {
		add("trading.timeframe_sec must be > 0")
	}
	if t.QueueSize < 1 {
		add("trading.queue_size must be >= 1")
	}

	r := t.Risk
	if r.MaxDrawdownTotal <= 0 || r.MaxDrawdownTotal > 1 {
		add("risk.max_drawdown_total must be in (0,1]")
	}
	if r.MaxLossDaily <= 0 || r.MaxLossDaily > 1 {
		add("risk.max_loss_daily must be in (0,1]")
	}
	if r.MaxTradesDaily < 1 || r.MaxConsecutiveLosses < 1 || r.CooldownMinutes < 0 {
		add("risk counters must be positive")
	}
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePctHigh <= 0 || r.MaxRiskPerTradePct <= 0 {
		add("risk percentages must be > 0")
	}
	if r.MinStake <= 0 || r.MaxStake <= r.MinStake {
		add("risk: need 0 < min_stake < max_stake")
	}
	if !helper.IsCents(r.MinStake) || !helper.IsCents(r.MaxStake) {
		add("risk: min_stake and max_stake must be whole cents")
	}
	if r.ScoreMinThreshold < 0 || r.ScoreHighScoreThreshold > 1 || r.ScoreMinThreshold >= r.ScoreHighScoreThreshold {
		add("risk: need 0 <= score_min_threshold < score_high_threshold <= 1")
	}

	tp := t.Strategy.TrendPullback
	for name, v := range map[string]int{
		"ema_fast_period": tp.EMAFastPeriod,
		"ema_slow_period": tp.EMASlowPeriod,
		"atr_period":      tp.ATRPeriod,
		"rsi_period":      tp.RSIPeriod,
	} {
		if v <= 1 {
			add("trend_pullback.%s must be > 1", name)
		}
	}
	if tp.EMAFastPeriod >= tp.EMASlowPeriod {
		add("trend_pullback: ema_fast_period must be < ema_slow_period")
	}
	if tp.MinATRPct <= 0 || tp.MinEMASpreadPct <= 0 {
		add("trend_pullback: min_atr_pct and min_ema_spread_pct must be > 0")
	}
	if tp.RSILongZone[0] >= tp.RSILongZone[1] || tp.RSIShortZone[0] >= tp.RSIShortZone[1] {
		add("trend_pullback: rsi zones need lo < hi")
	}
	if tp.RSIOversold >= tp.RSIOverbought {
		add("trend_pullback: rsi_oversold must be < rsi_overbought")
	}

	if t.Strategy.HigherTFTrend.TimeframeMinutes < 1 {
		add("higher_tf_trend.timeframe_minutes must be >= 1")
	}
	sr := t.Strategy.SupportResistance
	if sr.LookbackCandles < 1 || sr.MinCandles < 1 || sr.NearPct <= 0 {
		add("support_resistance: lookback, min_candles and near_pct must be > 0")
	}
	if t.Strategy.QualityFilter.MaxATRPct < 0 {
		add("quality_filter.max_atr_pct must be >= 0")
	}

	m := t.Multiplier
	switch strings.ToLower(m.DurationUnit) {
	case "s", "m", "h":
	default:
		add("multiplier.duration_unit must be 's', 'm' or 'h'")
	}
	if m.Duration < 1 || m.Multiplier < 1 {
		add("multiplier: duration and multiplier must be >= 1")
	}
	if m.TakeProfitPercent <= 0 || m.StopLossPercent <= 0 {
		add("multiplier: take profit and stop loss percents must be > 0")
	}

	e := c.Execution
	if e.PollIntervalSec <= 0 || e.RiseFallTimeoutSec <= 0 || e.MultiplierTimeoutSec <= 0 {
		add("execution: poll interval and timeouts must be > 0")
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}
