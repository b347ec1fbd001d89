package notify

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Notifier сообщения оператору (Telegram или stdout).
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Stdout пишет уведомления в лог, когда Telegram не настроен.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stdout{log: log.Named("notify")}
}

func (s *Stdout) Send(msg string) {
	s.log.Info("[NOTIFY] " + strings.TrimSpace(msg))
}

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

// Nop глушит уведомления (тесты, dry-run утилиты).
type Nop struct{}

func (Nop) Send(string)          {}
func (Nop) Sendf(string, ...any) {}

// Recorder запоминает сообщения; нужен тестам соседних пакетов.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Send(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *Recorder) Sendf(format string, args ...any) { r.Send(fmt.Sprintf(format, args...)) }

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
