package service

import (
	"math"
	"sync"

	"deriv_bot/internal/helper"
)

// Account текущий баланс и пик equity. Пишут воркер и обновление
// баланса, читают движок и метрики.
type Account struct {
	mu      sync.RWMutex
	balance *float64
	peak    float64
	holds   int
	gen     uint64 // растёт на каждом Hold/Release
}

func NewAccount() *Account { return &Account{} }

// SetBalance значение от брокера.
func (a *Account) SetBalance(v float64) {
	a.mu.Lock()
	a.balance = helper.Ptr(v)
	a.peak = math.Max(a.peak, v)
	a.mu.Unlock()
}

// Generation метка для SetBalanceSince, берётся до запроса баланса.
func (a *Account) Generation() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gen
}

// SetBalanceSince применяет баланс брокера, только если с момента gen
// ни одна сделка не начиналась и не рассчитывалась и сейчас нет открытой.
func (a *Account) SetBalanceSince(v float64, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holds > 0 || a.gen != gen {
		return false
	}
	a.balance = helper.Ptr(v)
	a.peak = math.Max(a.peak, v)
	return true
}

// Hold отмечает открытый контракт: брокер уже списал ставку, локальный
// баланс изменится только через ApplyProfit.
func (a *Account) Hold() {
	a.mu.Lock()
	a.holds++
	a.gen++
	a.mu.Unlock()
}

func (a *Account) Release() {
	a.mu.Lock()
	if a.holds > 0 {
		a.holds--
	}
	a.gen++
	a.mu.Unlock()
}

func (a *Account) Balance() (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.balance == nil {
		return 0, false
	}
	return *a.balance, true
}

// ApplyProfit прибавляет результат сделки и возвращает новый баланс.
func (a *Account) ApplyProfit(profit float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var b float64
	if a.balance != nil {
		b = *a.balance
	}
	b = helper.RoundMoney(b + profit)
	a.balance = &b
	a.peak = math.Max(a.peak, b)
	return b
}

// Equity баланс (0 если неизвестен) и пик после его учёта.
func (a *Account) Equity() (equity, peak float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance != nil {
		equity = *a.balance
	}
	a.peak = math.Max(a.peak, equity)
	return equity, a.peak
}

func (a *Account) Peak() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peak
}
