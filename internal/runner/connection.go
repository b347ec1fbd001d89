package runner

import (
	"context"

	"go.uber.org/zap"

	"deriv_bot/internal/models"
	derivws "deriv_bot/internal/modules/deriv_ws/service"
)

// onConnEvent фиксирует только смену состояния соединения.
func (e *Engine) onConnEvent(ctx context.Context, ev derivws.ConnEvent) {
	if ev.Connected == e.connected {
		return
	}
	e.connected = ev.Connected
	e.State.SetWSConnected(ev.Connected)
	e.Metrics.SetConnected(ev.Connected)

	if !ev.Connected {
		data := map[string]any{}
		if ev.Err != nil {
			data["error"] = ev.Err.Error()
		}
		e.log.Warn("[RUNNER] deriv connection lost", zap.Error(ev.Err))
		e.event(ctx, models.LevelWarn, "ws_disconnected", "Connection to Deriv lost, reconnecting", data)
		e.Notifier.Send("⚠️ Связь с Deriv потеряна, переподключение…")
		return
	}

	e.log.Info("[RUNNER] deriv reconnected")
	e.event(ctx, models.LevelInfo, "ws_reconnected", "Reconnected to Deriv", map[string]any{})
	e.Notifier.Send("🔌 Связь с Deriv восстановлена")
}
