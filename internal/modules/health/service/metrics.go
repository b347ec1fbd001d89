package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
)

// Metrics снимки по инструментам. Обновляются целиком под мьютексом.
type Metrics struct {
	mu        sync.RWMutex
	primary   string
	markets   map[string]*models.MetricsSnapshot
	connected bool
	balance   *float64
	peak      float64
	now       func() time.Time
}

func NewMetrics(symbols []string) *Metrics {
	m := &Metrics{markets: make(map[string]*models.MetricsSnapshot, len(symbols)), now: time.Now}
	for i, s := range symbols {
		if i == 0 {
			m.primary = s
		}
		m.markets[s] = &models.MetricsSnapshot{Symbol: s}
	}
	return m
}

func (m *Metrics) market(symbol string) *models.MetricsSnapshot {
	s, ok := m.markets[symbol]
	if !ok {
		s = &models.MetricsSnapshot{Symbol: symbol}
		m.markets[symbol] = s
		if m.primary == "" {
			m.primary = symbol
		}
	}
	return s
}

func (m *Metrics) SetConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *Metrics) SetBalance(balance, peak float64) {
	m.mu.Lock()
	m.balance = helper.Ptr(balance)
	m.peak = peak
	m.mu.Unlock()
}

func (m *Metrics) OnTick(t models.Tick) {
	m.mu.Lock()
	s := m.market(t.Symbol)
	s.LastTickPrice = helper.Ptr(t.Price)
	s.UpdatedAt = m.now().UTC()
	m.mu.Unlock()
}

// OnCandle закрытая свеча и индикаторы после неё.
func (m *Metrics) OnCandle(c models.Candle, ind models.IndicatorSet) {
	m.mu.Lock()
	s := m.market(c.Symbol)
	s.CandlesClosed++
	s.EMAFast, s.EMASlow, s.ATR, s.RSI = ind.EMAFast, ind.EMASlow, ind.ATR, ind.RSI
	s.UpdatedAt = m.now().UTC()
	m.mu.Unlock()
}

func (m *Metrics) fill(s models.MetricsSnapshot) models.MetricsSnapshot {
	s.Connected = m.connected
	if m.balance != nil {
		s.Balance = helper.Ptr(*m.balance)
	}
	s.PeakEquity = m.peak
	return s
}

// Snapshot копия по символу; пустой символ означает основной.
func (m *Metrics) Snapshot(symbol string) (models.MetricsSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if symbol == "" {
		symbol = m.primary
	}
	s, ok := m.markets[symbol]
	if !ok {
		return models.MetricsSnapshot{}, false
	}
	return m.fill(*s), true
}

// All снимки всех инструментов по алфавиту.
func (m *Metrics) All() []models.MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.MetricsSnapshot, 0, len(m.markets))
	for _, s := range m.markets {
		out = append(out, m.fill(*s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MetricsWriter периодически сбрасывает основной снимок в файл.
type MetricsWriter struct {
	m        *Metrics
	path     string
	interval time.Duration
	log      *zap.Logger
}

func NewMetricsWriter(m *Metrics, path string, interval time.Duration, log *zap.Logger) *MetricsWriter {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MetricsWriter{m: m, path: path, interval: interval, log: log}
}

func (w *MetricsWriter) WriteOnce() error {
	if w.path == "" {
		return nil
	}
	snap, _ := w.m.Snapshot("")
	data, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode metrics")
	}
	return errors.Wrapf(helper.WriteFileAtomic(w.path, data), "write metrics %s", w.path)
}

func (w *MetricsWriter) Run(ctx context.Context) {
	if w.path == "" {
		return
	}
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.WriteOnce(); err != nil {
				w.log.Warn("[HTTP] metrics write failed", zap.Error(err))
			}
		}
	}
}
