package service

import (
	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
)

// Skip-причины фильтров после скорера.
const (
	SkipNotReady   = "not_ready"
	SkipNoCandle   = "no_candle"
	SkipHTFAligned = "htf_not_aligned"
	SkipQuality    = "quality_filter_skip"
	SkipLevels     = "sr_filter_skip"
)

// Evaluation итог прогона последней свечи через скорер и фильтры.
type Evaluation struct {
	Candidate models.Candidate
	OK        bool
	Skip      string // причина отказа, если !OK
	Trend     models.Trend
}

// Pipeline состояние стратегии одного инструмента. Владелец один
// (цикл событий), поэтому без блокировок.
type Pipeline struct {
	symbol string
	cfg    config.StrategyConfig

	ind    *Indicators
	htf    *HigherTimeframeTrend
	scorer Scorer

	recent    []models.Candle
	recentCap int

	last    *models.Candle
	lastInd models.IndicatorSet
}

func NewPipeline(symbol string, cfg config.StrategyConfig) (*Pipeline, error) {
	tp := cfg.TrendPullback
	ind, err := NewIndicators(tp.EMAFastPeriod, tp.EMASlowPeriod, tp.ATRPeriod, tp.RSIPeriod)
	if err != nil {
		return nil, err
	}
	capN := max(5, cfg.SupportResistance.LookbackCandles)
	return &Pipeline{
		symbol:    symbol,
		cfg:       cfg,
		ind:       ind,
		htf:       NewHigherTimeframeTrend(cfg.HigherTFTrend.TimeframeMinutes),
		scorer:    NewScorer(tp),
		recent:    make([]models.Candle, 0, capN),
		recentCap: capN,
	}, nil
}

func (p *Pipeline) Symbol() string { return p.symbol }

// OnCandle учитывает закрытую свечу во всех компонентах.
func (p *Pipeline) OnCandle(c models.Candle) models.IndicatorSet {
	set := p.ind.Update(c)
	p.htf.Add(c)

	if len(p.recent) == p.recentCap {
		copy(p.recent, p.recent[1:])
		p.recent = p.recent[:len(p.recent)-1]
	}
	p.recent = append(p.recent, c)

	cc := c
	p.last = &cc
	p.lastInd = set
	return set
}

func (p *Pipeline) Ready() bool { return p.ind.IsReady() }

func (p *Pipeline) Bars() int { return p.ind.Bars() }

func (p *Pipeline) Trend() models.Trend { return p.htf.Trend() }

// Last последняя закрытая свеча и индикаторы на ней.
func (p *Pipeline) Last() (models.Candle, models.IndicatorSet, bool) {
	if p.last == nil {
		return models.Candle{}, models.IndicatorSet{}, false
	}
	return *p.last, p.lastInd, true
}

// Evaluate скорер, затем выравнивание со старшим ТФ, качество и уровни.
func (p *Pipeline) Evaluate() Evaluation {
	ev := Evaluation{Trend: p.htf.Trend()}
	c, ind, ok := p.Last()
	if !ok {
		ev.Skip = SkipNoCandle
		return ev
	}
	if !p.Ready() {
		ev.Skip = SkipNotReady
		return ev
	}

	sig := p.scorer.Generate(c, ind)
	ev.Candidate = models.Candidate{Symbol: p.symbol, Signal: sig, Candle: c, Indicators: ind}
	if !sig.Ok() {
		ev.Skip = sig.Reason
		return ev
	}

	htf := p.cfg.HigherTFTrend
	if htf.Enabled && !p.htf.IsAligned(sig.Side, htf.AllowNeutral) {
		ev.Skip = SkipHTFAligned
		return ev
	}
	if !PassesQuality(p.cfg.QualityFilter, sig, ind, c) {
		ev.Skip = SkipQuality
		return ev
	}
	sr := p.cfg.SupportResistance
	if sr.Enabled {
		support, resistance := ComputeLevels(p.recent, sr.MinCandles)
		if !PassesLevels(sig.Side, c.Close, support, resistance, sr.NearPct, len(p.recent) >= sr.MinCandles) {
			ev.Skip = SkipLevels
			return ev
		}
	}

	ev.OK = true
	return ev
}
