package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"deriv_bot/internal/models"
)

const (
	outboxSize            = 64
	defaultConfirmTimeout = 60 * time.Second
)

type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

type KillSwitchControl interface {
	Current() models.KillSwitchState
	Activate(reason string) error
	Deactivate(reason string) error
}

type MetricsReader interface {
	All() []models.MetricsSnapshot
}

type pending struct {
	ch     chan bool
	prompt string
}

// Telegram уведомления оператору и команды управления из одного чата.
type Telegram struct {
	bot     botAPI
	chatID  int64
	ks      KillSwitchControl
	metrics MetricsReader
	log     *zap.Logger

	outbox         chan string
	confirmTimeout time.Duration

	mu       sync.Mutex
	pendings map[string]*pending
	await    *awaitStore

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(token string, chatID int64, ks KillSwitchControl, metrics MetricsReader, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot api")
	}
	return newTelegram(b, chatID, ks, metrics, log), nil
}

func newTelegram(bot botAPI, chatID int64, ks KillSwitchControl, metrics MetricsReader, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		bot:            bot,
		chatID:         chatID,
		ks:             ks,
		metrics:        metrics,
		log:            log.With(zap.String("component", "telegram")),
		outbox:         make(chan string, outboxSize),
		confirmTimeout: defaultConfirmTimeout,
		pendings:       make(map[string]*pending),
		await:          newAwaitStore(),
	}
}

// Send ставит сообщение в очередь отправки; торговый цикл не ждёт Telegram.
func (t *Telegram) Send(msg string) {
	select {
	case t.outbox <- msg:
	default:
		t.log.Warn("[TG] outbox full, message dropped", zap.String("text", msg))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) reply(chatID int64, text string) (tgbot.Message, error) {
	m, err := t.bot.Send(tgbot.NewMessage(chatID, text))
	if err != nil {
		t.log.Warn("[TG] send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return m, err
}

func (t *Telegram) editReplyMarkupRemove(chatID int64, msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	edit := tgbot.NewEditMessageReplyMarkup(chatID, msgID, rm)
	_, err := t.bot.Request(edit)
	return err
}

func (t *Telegram) editText(chatID int64, msgID int, text string) error {
	edit := tgbot.NewEditMessageText(chatID, msgID, text)
	_, err := t.bot.Request(edit)
	return err
}

// Confirm сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, prompt string, timeout time.Duration) bool {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Да", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Нет", "REJ::"+token)
	msg := tgbot.NewMessage(chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
	}()

	sent, err := t.bot.Send(msg)
	if err != nil {
		t.log.Warn("[TG] confirm send failed", zap.Error(err))
		return false
	}

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		_ = t.editReplyMarkupRemove(chatID, sent.MessageID)
		_ = t.editText(chatID, sent.MessageID, prompt+"\n\n⏳ Таймаут")
		return false
	case <-ctx.Done():
		_ = t.editReplyMarkupRemove(chatID, sent.MessageID)
		_ = t.editText(chatID, sent.MessageID, prompt+"\n\n⛔️ Отменено")
		return false
	}
}

func (t *Telegram) resolvePending(data string) (*pending, bool, bool) {
	var ok bool
	var token string
	switch {
	case strings.HasPrefix(data, "CONF::"):
		ok, token = true, strings.TrimPrefix(data, "CONF::")
	case strings.HasPrefix(data, "REJ::"):
		token = strings.TrimPrefix(data, "REJ::")
	default:
		return nil, false, false
	}
	t.mu.Lock()
	p, found := t.pendings[token]
	t.mu.Unlock()
	return p, ok, found
}

// Start запускает отправку сообщений и чтение апдейтов.
func (t *Telegram) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.sendLoop(ctx)
	}()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
	t.log.Info("[TG] bot started", zap.Int64("chat_id", t.chatID))
}

func (t *Telegram) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.flush()
			return
		case msg := <-t.outbox:
			_, _ = t.reply(t.chatID, msg)
		}
	}
}

// flush досылает то, что успели поставить в очередь до остановки.
func (t *Telegram) flush() {
	for {
		select {
		case msg := <-t.outbox:
			_, _ = t.reply(t.chatID, msg)
		default:
			return
		}
	}
}

func (t *Telegram) Stop() {
	if t.cancel == nil {
		return
	}
	t.bot.StopReceivingUpdates()
	t.cancel()
	t.wg.Wait()
}
