package service

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != t.chatID {
			return
		}
		t.handleCallback(cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if chatID != t.chatID {
		t.log.Warn("[TG] message from foreign chat ignored", zap.Int64("chat_id", chatID))
		return
	}

	if msg.IsCommand() {
		t.clearAwait(chatID)
		switch msg.Command() {
		case "start", "help":
			_, _ = t.reply(chatID, helpText)
		case "status":
			_, _ = t.reply(chatID, formatStatus(t.ks.Current(), t.metrics.All()))
		case "kill":
			reason := strings.TrimSpace(msg.CommandArguments())
			if reason == "" {
				t.setAwait(chatID, awaitKillReason)
				_, _ = t.reply(chatID, "Причина остановки?")
				return
			}
			t.kill(chatID, reason)
		case "resume":
			// ждёт кнопку, цикл апдейтов блокировать нельзя
			go t.resume(ctx, chatID)
		default:
			_, _ = t.reply(chatID, helpText)
		}
		return
	}

	if key, ok := t.popAwait(chatID); ok && key == awaitKillReason {
		t.kill(chatID, strings.TrimSpace(msg.Text))
	}
}

func (t *Telegram) kill(chatID int64, reason string) {
	if reason == "" {
		reason = "telegram"
	}
	if t.ks.Current().Enabled {
		_, _ = t.reply(chatID, "Kill switch уже включён\n\n"+formatKillSwitch(t.ks.Current()))
		return
	}
	if err := t.ks.Activate(reason); err != nil {
		t.log.Error("[TG] kill switch enable failed", zap.Error(err))
		_, _ = t.reply(chatID, "⚠️ Не удалось включить kill switch: "+err.Error())
		return
	}
	t.log.Warn("[TG] kill switch enabled by operator", zap.String("reason", reason))
	_, _ = t.reply(chatID, "⛔️ Торговля остановлена\n\n"+formatKillSwitch(t.ks.Current()))
}

func (t *Telegram) resume(ctx context.Context, chatID int64) {
	if !t.ks.Current().Enabled {
		_, _ = t.reply(chatID, "Kill switch уже выключен")
		return
	}
	if !t.Confirm(ctx, chatID, "Снять kill switch и возобновить торговлю?", t.confirmTimeout) {
		return
	}
	if err := t.ks.Deactivate("telegram_resume"); err != nil {
		t.log.Error("[TG] kill switch disable failed", zap.Error(err))
		_, _ = t.reply(chatID, "⚠️ Не удалось снять kill switch: "+err.Error())
		return
	}
	t.log.Info("[TG] kill switch disabled by operator")
	_, _ = t.reply(chatID, "▶️ Торговля возобновлена")
}

func (t *Telegram) handleCallback(cb *tgbot.CallbackQuery) {
	p, ok, found := t.resolvePending(cb.Data)
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))
	if !found {
		return
	}

	mark := "❌ Отклонено"
	if ok {
		mark = "✅ Подтверждено"
	}
	_ = t.editReplyMarkupRemove(cb.Message.Chat.ID, cb.Message.MessageID)
	_ = t.editText(cb.Message.Chat.ID, cb.Message.MessageID, p.prompt+"\n\n"+mark)

	select {
	case p.ch <- ok:
	default:
	}
}
