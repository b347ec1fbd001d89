package runner

import (
	"time"

	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
	risk "deriv_bot/internal/modules/risk/service"
	strategy "deriv_bot/internal/modules/strategy/service"
)

func (e *Engine) onCandle(c models.Candle) {
	set, _, ok := e.Hub.OnCandle(c)
	if !ok {
		e.log.Warn("[RUNNER] candle for unknown symbol", zap.String("symbol", c.Symbol))
		return
	}
	e.Metrics.OnCandle(c, set)
	e.State.CandleClosed()

	e.log.Info("[RUNNER] candle closed",
		zap.String("symbol", c.Symbol),
		zap.Int64("open_time", c.OpenTime),
		zap.Float64("o", c.Open),
		zap.Float64("h", c.High),
		zap.Float64("l", c.Low),
		zap.Float64("c", c.Close),
		zap.Float64p("ema_fast", set.EMAFast),
		zap.Float64p("ema_slow", set.EMASlow),
		zap.Float64p("atr", set.ATR),
		zap.Float64p("rsi", set.RSI),
	)

	if e.multi() {
		return
	}
	e.decideSingle(c.Symbol)
}

// decideSingle одиночный режим: решение на каждой закрытой свече.
func (e *Engine) decideSingle(symbol string) {
	p, ok := e.Hub.Pipeline(symbol)
	if !ok {
		return
	}
	if !p.Ready() {
		e.log.Info("[RUNNER] strategy warmup", zap.String("symbol", symbol), zap.Int("bars", p.Bars()))
		return
	}
	if ks := e.KillSwitch.Current(); ks.Enabled {
		e.log.Warn("[RUNNER] kill switch enabled, signal skipped", zap.String("reason", ks.Reason))
		return
	}

	ev := e.Hub.Evaluate(symbol)
	if !ev.OK {
		e.logSkip(symbol, ev)
		return
	}
	e.submit(ev.Candidate)
}

// onBoundary мультирежим: из свечей прошлого бакета берётся лучший сигнал.
func (e *Engine) onBoundary(now time.Time) {
	prev := helper.FloorEpoch(now.Unix(), e.opts.TimeframeSec) - e.opts.TimeframeSec
	if prev == e.lastBucket {
		return
	}
	e.lastBucket = prev

	best, found := e.selectBest(prev)
	if !found {
		return
	}
	if ks := e.KillSwitch.Current(); ks.Enabled {
		e.log.Warn("[RUNNER] kill switch enabled, signal skipped",
			zap.String("symbol", best.Symbol), zap.String("reason", ks.Reason))
		return
	}
	e.submit(best)
}

func (e *Engine) selectBest(bucket int64) (models.Candidate, bool) {
	var (
		best  models.Candidate
		found bool
	)
	for _, sym := range e.Hub.Symbols() {
		p, ok := e.Hub.Pipeline(sym)
		if !ok {
			continue
		}
		c, _, ok := p.Last()
		if !ok || c.OpenTime != bucket {
			continue
		}
		ev := e.Hub.Evaluate(sym)
		if !ev.OK {
			e.logSkip(sym, ev)
			continue
		}
		if !found || ev.Candidate.Signal.Score > best.Signal.Score {
			best, found = ev.Candidate, true
		}
	}
	return best, found
}

func (e *Engine) untilBoundary() time.Duration {
	now := e.now()
	d := helper.NextBoundary(now, time.Duration(e.opts.TimeframeSec)*time.Second).Add(e.opts.SettleDelay).Sub(now)
	return max(d, minTimerSleep)
}

func (e *Engine) logSkip(symbol string, ev strategy.Evaluation) {
	switch ev.Skip {
	case strategy.SkipNotReady, strategy.SkipNoCandle, "":
		return
	}
	e.log.Info("[RUNNER] signal skipped",
		zap.String("symbol", symbol),
		zap.String("reason", ev.Skip),
		zap.String("side", string(ev.Candidate.Signal.Side)),
		zap.Float64("score", ev.Candidate.Signal.Score),
		zap.String("htf_trend", string(ev.Trend)),
	)
}

// submit размер ставки, TP/SL для мультипликатора и постановка в очередь.
func (e *Engine) submit(cand models.Candidate) {
	bal, _ := e.Account.Balance()
	size := e.Sizer.Compute(bal, cand.Signal.Score)
	if !size.Allowed {
		e.log.Info("[RUNNER] signal but no size",
			zap.String("symbol", cand.Symbol),
			zap.String("side", string(cand.Signal.Side)),
			zap.Float64("score", cand.Signal.Score),
			zap.String("reason", size.Reason),
		)
		return
	}

	intent := models.TradeIntent{
		Symbol:     cand.Symbol,
		Side:       cand.Signal.Side,
		Score:      cand.Signal.Score,
		Stake:      size.Stake,
		EntryPrice: cand.Candle.Close,
		Reason:     cand.Signal.Reason,
	}
	if e.opts.Multiplier {
		tpsl := risk.ComputeTpSl(size.Stake, e.opts.TakeProfitPct, e.opts.StopLossPct)
		intent.TakeProfit = helper.Ptr(tpsl.TakeProfit)
		intent.StopLoss = helper.Ptr(tpsl.StopLoss)
	}

	if !e.Queue.Enqueue(intent) {
		return
	}
	e.log.Info("[RUNNER] trade intent enqueued",
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.Float64("score", intent.Score),
		zap.Float64("stake", intent.Stake),
	)
}
