package service

import (
	"time"

	"go.uber.org/zap"

	"deriv_bot/internal/models"
	"deriv_bot/internal/modules/config"
	"deriv_bot/internal/notify"
)

// Hub набор пайплайнов по инструментам + учёт прогрева.
type Hub struct {
	n   notify.Notifier
	log *zap.Logger

	pipes   map[string]*Pipeline
	symbols []string

	ready         map[string]bool
	warmupDone    bool
	lastProgress  time.Time
	startedAt     time.Time
	progressEvery time.Duration
}

func NewHub(symbols []string, cfg config.StrategyConfig, n notify.Notifier, log *zap.Logger) (*Hub, error) {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		n:             n,
		log:           log,
		pipes:         make(map[string]*Pipeline, len(symbols)),
		symbols:       append([]string(nil), symbols...),
		ready:         make(map[string]bool, len(symbols)),
		startedAt:     time.Now(),
		progressEvery: 5 * time.Minute,
	}
	for _, s := range symbols {
		p, err := NewPipeline(s, cfg)
		if err != nil {
			return nil, err
		}
		h.pipes[s] = p
	}
	return h, nil
}

func (h *Hub) Symbols() []string { return h.symbols }

func (h *Hub) Pipeline(symbol string) (*Pipeline, bool) {
	p, ok := h.pipes[symbol]
	return p, ok
}

// OnCandle прокидывает свечу в пайплайн инструмента.
// becameReady=true ровно один раз, когда инструмент прогрелся.
func (h *Hub) OnCandle(c models.Candle) (set models.IndicatorSet, becameReady bool, ok bool) {
	p, ok := h.pipes[c.Symbol]
	if !ok {
		return models.IndicatorSet{}, false, false
	}
	set = p.OnCandle(c)

	if p.Ready() && !h.ready[c.Symbol] {
		h.ready[c.Symbol] = true
		becameReady = true
		h.log.Info("[STRAT] symbol ready", zap.String("symbol", c.Symbol), zap.Int("bars", p.Bars()))
	}
	h.maybeWarmupProgress()
	return set, becameReady, true
}

func (h *Hub) Evaluate(symbol string) Evaluation {
	p, ok := h.pipes[symbol]
	if !ok {
		return Evaluation{Skip: SkipNoCandle}
	}
	return p.Evaluate()
}

func (h *Hub) ReadyCount() int { return len(h.ready) }

func (h *Hub) AllReady() bool { return len(h.ready) == len(h.pipes) }

func (h *Hub) maybeWarmupProgress() {
	if h.warmupDone {
		return
	}
	if h.AllReady() {
		h.warmupDone = true
		h.n.Sendf("✅ Прогрев завершён: %d/%d инструментов, %s", len(h.ready), len(h.pipes),
			time.Since(h.startedAt).Round(time.Second))
		return
	}
	if time.Since(h.lastProgress) < h.progressEvery {
		return
	}
	h.lastProgress = time.Now()
	h.log.Info("[STRAT] warmup progress", zap.Int("ready", len(h.ready)), zap.Int("total", len(h.pipes)))
}
