package service

import (
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/helper"
	"deriv_bot/internal/models"
)

// KillSwitch ручной стоп торговли, переживает рестарт (JSON-файл).
// Файл перечитывается при каждом Current, так что его можно править руками.
type KillSwitch struct {
	path string
	log  *zap.Logger
	now  func() time.Time

	mu    sync.Mutex
	state models.KillSwitchState
}

func NewKillSwitch(path string, log *zap.Logger) (*KillSwitch, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ks := &KillSwitch{path: path, log: log, now: time.Now}
	if err := ks.Load(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Load читает состояние с диска; отсутствующий файл означает "выключен".
func (k *KillSwitch) Load() error {
	raw, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read kill switch")
	}
	var st models.KillSwitchState
	if err := sonic.Unmarshal(raw, &st); err != nil {
		return errors.Wrapf(err, "parse kill switch %s", k.path)
	}
	k.mu.Lock()
	k.state = st
	k.mu.Unlock()
	return nil
}

// Current свежее состояние; при ошибке чтения остаётся последнее известное.
func (k *KillSwitch) Current() models.KillSwitchState {
	if err := k.Load(); err != nil {
		k.log.Warn("[RISK] kill switch reload failed", zap.Error(err))
	}
	return k.State()
}

func (k *KillSwitch) State() models.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Activate включает стоп; если он уже включён, причина не меняется.
func (k *KillSwitch) Activate(reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state.Enabled {
		return nil
	}
	if reason == "" {
		reason = "manual_enable"
	}
	at := k.now().UTC()
	k.state = models.KillSwitchState{Enabled: true, Reason: reason, ActivatedAt: &at}
	k.log.Warn("[RISK] kill switch enabled", zap.String("reason", reason))
	return k.save()
}

func (k *KillSwitch) Deactivate(reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if reason == "" {
		reason = "manual_reset"
	}
	k.state = models.KillSwitchState{Enabled: false, Reason: reason}
	k.log.Info("[RISK] kill switch disabled", zap.String("reason", reason))
	return k.save()
}

func (k *KillSwitch) save() error {
	data, err := sonic.Marshal(k.state)
	if err != nil {
		return errors.Wrap(err, "encode kill switch")
	}
	return helper.WriteFileAtomic(k.path, data)
}
