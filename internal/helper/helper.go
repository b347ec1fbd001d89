package helper

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FloorEpoch начало бакета таймфрейма, в который попадает epoch.
func FloorEpoch(epoch, tfSec int64) int64 {
	if tfSec <= 0 {
		return epoch
	}
	return epoch - epoch%tfSec
}

// BucketSlot то же самое для time.Time (UTC).
func BucketSlot(t time.Time, tf time.Duration) time.Time {
	sec := int64(tf / time.Second)
	return time.Unix(FloorEpoch(t.Unix(), sec), 0).UTC()
}

// NextBoundary ближайшая граница таймфрейма строго после t.
func NextBoundary(t time.Time, tf time.Duration) time.Time {
	return BucketSlot(t, tf).Add(tf)
}

// RoundMoney округление до центов (half away from zero, как у брокера).
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// CeilCents / FloorCents границы диапазона на сетке центов внутрь диапазона.
func CeilCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundCeil(2).Float64()
	return f
}

func FloorCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundFloor(2).Float64()
	return f
}

// IsCents сумма без долей цента.
func IsCents(v float64) bool {
	d := decimal.NewFromFloat(v)
	return d.Equal(d.Round(2))
}

// RoundUnits округление до целых единиц валюты.
func RoundUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Round(0).IntPart()
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func Ptr[T any](v T) *T { return &v }

// DurationSeconds переводит duration/unit (s|m|h) в секунды.
func DurationSeconds(duration int, unit string) int {
	switch strings.ToLower(unit) {
	case "m":
		return duration * 60
	case "h":
		return duration * 3600
	default:
		return duration
	}
}

// SameUTCDay true если оба момента в одних сутках UTC.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
