package service

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

var (
	commonMultipliers   = []int{1, 2, 5, 10, 20, 40, 50, 100, 200, 400, 500, 1000, 2000}
	volatilityFallback  = []int{50, 100, 200, 300, 500}
	crashBoomNoFallback = map[string]struct{}{
		"R_CRASH_500": {}, "R_BOOM_500": {}, "R_CRASH_1000": {}, "R_BOOM_1000": {},
	}
)

// MultiplierResolver узнаёт у брокера допустимые множители и выбирает
// ближайший к желаемому. Результат кэшируется по символу.
type MultiplierResolver struct {
	r         Requester
	currency  string
	preferred int
	log       *zap.Logger

	mu    sync.RWMutex
	cache map[string]int
}

func NewMultiplierResolver(r Requester, currency string, preferred int, log *zap.Logger) *MultiplierResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &MultiplierResolver{
		r:         r,
		currency:  currency,
		preferred: preferred,
		log:       log.With(zap.String("component", "multiplier")),
		cache:     make(map[string]int),
	}
}

func (m *MultiplierResolver) Cached(symbol string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cache[symbol]
	return v, ok
}

// Resolve выбранный множитель для символа (из кэша или у брокера).
func (m *MultiplierResolver) Resolve(ctx context.Context, symbol string) int {
	if v, ok := m.Cached(symbol); ok {
		return v
	}
	allowed := m.Allowed(ctx, symbol)
	chosen := m.preferred
	if len(allowed) > 0 {
		chosen = PickBest(allowed, m.preferred)
	}
	m.mu.Lock()
	m.cache[symbol] = chosen
	m.mu.Unlock()

	m.log.Info("[EXEC] multiplier resolved",
		zap.String("symbol", symbol),
		zap.Ints("allowed", allowed),
		zap.Int("preferred", m.preferred),
		zap.Int("chosen", chosen),
	)
	return chosen
}

// Warm резолвит символы заранее, чтобы не ждать contracts_for в момент сделки.
func (m *MultiplierResolver) Warm(ctx context.Context, symbols []string) map[string]int {
	out := make(map[string]int, len(symbols))
	for _, s := range symbols {
		if ctx.Err() != nil {
			break
		}
		out[s] = m.Resolve(ctx, s)
	}
	return out
}

// Allowed допустимые множители по contracts_for; пусто если брокер
// ответил ошибкой.
func (m *MultiplierResolver) Allowed(ctx context.Context, symbol string) []int {
	resp, err := m.r.Request(ctx, map[string]any{
		"contracts_for":   symbol,
		"currency":        m.currency,
		"landing_company": "svg",
		"product_type":    "basic",
	})
	if err != nil {
		m.log.Warn("[EXEC] contracts_for failed", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	if perr := resp.Err(); perr != nil {
		m.log.Warn("[EXEC] contracts_for rejected", zap.String("symbol", symbol), zap.Error(perr))
		return nil
	}

	var f struct {
		ContractsFor any `json:"contracts_for"`
	}
	if err := sonic.Unmarshal(resp.Raw, &f); err != nil {
		m.log.Warn("[EXEC] contracts_for decode failed", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	cf, ok := f.ContractsFor.(map[string]any)
	if !ok {
		return nil
	}
	return AllowedFromContractsFor(symbol, cf)
}

// AllowedFromContractsFor достаёт множители из тела contracts_for.
func AllowedFromContractsFor(symbol string, cf map[string]any) []int {
	if vals := parseMultiplierList(cf["multipliers"]); len(vals) > 0 {
		return vals
	}
	if vals := parseMultiplierRange(cf["multiplier_range"]); len(vals) > 0 {
		return vals
	}

	var found []int
	if available, ok := cf["available"].([]any); ok {
		for _, item := range available {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ct, _ := entry["contract_type"].(string)
			if ct != "MULTUP" && ct != "MULTDOWN" {
				continue
			}
			for _, key := range []string{"multipliers", "multiplier"} {
				if vals := parseMultiplierList(entry[key]); len(vals) > 0 {
					found = append(found, vals...)
					break
				}
			}
			if vals := parseMultiplierRange(entry["multiplier_range"]); len(vals) > 0 {
				found = append(found, vals...)
			}
		}
	}
	if len(found) > 0 {
		return sortedUnique(found)
	}

	if strings.HasPrefix(symbol, "R_") {
		if _, ok := crashBoomNoFallback[symbol]; !ok {
			return slices.Clone(volatilityFallback)
		}
	}
	return nil
}

// PickBest preferred если он разрешён, иначе ближайший среди разрешённых
// без верхней четверти (самые агрессивные не берём).
func PickBest(allowed []int, preferred int) int {
	if len(allowed) == 0 {
		return max(1, preferred)
	}
	if slices.Contains(allowed, preferred) {
		return preferred
	}
	pool := allowed
	if len(allowed) > 1 {
		capIdx := max(0, len(allowed)-1-max(1, len(allowed)/4))
		pool = allowed[:capIdx+1]
	}
	best := pool[0]
	for _, v := range pool[1:] {
		if abs(v-preferred) < abs(best-preferred) {
			best = v
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func parseMultiplierList(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []int
	for _, item := range list {
		if n, ok := toInt(item); ok {
			out = append(out, n)
		}
	}
	return sortedUnique(out)
}

func parseMultiplierRange(v any) []int {
	rng, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	lo, okLo := toInt(rng["min"])
	hi, okHi := toInt(rng["max"])
	if !okLo || !okHi || lo <= 0 || hi < lo {
		return nil
	}
	var out []int
	for _, c := range commonMultipliers {
		if c >= lo && c <= hi {
			out = append(out, c)
		}
	}
	if len(out) > 0 {
		return out
	}
	step := max(1, (hi-lo)/10)
	for x := lo; x <= hi; x += step {
		out = append(out, x)
	}
	return out
}

// toInt число, строка из цифр или объект с value/display_value.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), !math.IsNaN(x)
	case int64:
		return int(x), true
	case int:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	case map[string]any:
		for _, k := range []string{"value", "display_value"} {
			if n, ok := toInt(x[k]); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func sortedUnique(v []int) []int {
	if len(v) == 0 {
		return nil
	}
	out := slices.Clone(v)
	slices.Sort(out)
	return slices.Compact(out)
}
