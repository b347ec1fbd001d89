package service

import (
	"sync/atomic"
	"time"
)

// State флаги живости процесса для /readyz и /healthz.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	everUp       atomic.Bool
	reconnects   atomic.Int64
	lastTickUnix atomic.Int64 // unix seconds
	candles      atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetWSConnected считает переподключения: каждое Connected после первого.
func (s *State) SetWSConnected(v bool) {
	was := s.wsConnected.Swap(v)
	if v && !was && s.everUp.Swap(true) {
		s.reconnects.Add(1)
	}
}
func (s *State) WSConnected() bool { return s.wsConnected.Load() }
func (s *State) Reconnects() int64 { return s.reconnects.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) CandleClosed()        { s.candles.Add(1) }
func (s *State) CandlesClosed() int64 { return s.candles.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
