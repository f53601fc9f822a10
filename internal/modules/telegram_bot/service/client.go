package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"futures_bot/internal/flatten"
	"futures_bot/internal/runner"
)

// Controller: то, чем управляют команды из чата.
type Controller interface {
	LastReport() runner.CycleReport
	Flatten(ctx context.Context, reason string) (flatten.Report, error)
}

// botAPI: часть *tgbot.BotAPI, которой мы пользуемся.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

type Config struct {
	Token          string
	ChatID         int64
	Symbol         string
	ConfirmTimeout time.Duration
}

// Telegram шлёт алерты в один чат и принимает оттуда /status и /panic.
// Без токена или chat id работает как заглушка.
type Telegram struct {
	bot      botAPI
	cfg      Config
	log      *zap.Logger
	mu       sync.Mutex
	ctrl     Controller
	pendings map[string]*pending
}

func NewTelegram(cfg Config, log *zap.Logger) (*Telegram, error) {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	t := &Telegram{cfg: cfg, log: log, pendings: make(map[string]*pending)}
	if cfg.Token == "" {
		log.Info("telegram disabled: no token")
		return t, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	t.bot = b
	return t, nil
}

func (t *Telegram) Enabled() bool { return t.bot != nil && t.cfg.ChatID != 0 }

// Notify отправляет текст в рабочий чат; ошибки только логируются.
func (t *Telegram) Notify(_ context.Context, text string) {
	if !t.Enabled() {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.cfg.ChatID, text)); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) Send(_ context.Context, chatID int64, msg string) (tgbot.Message, error) {
	return t.bot.Send(tgbot.NewMessage(chatID, msg))
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

// Confirm: сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, chatID int64, prompt string, timeout time.Duration) bool {
	token := uuid.NewString()
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
	}()

	btnYes := tgbot.NewInlineKeyboardButtonData("🧯 Закрыть", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Отмена", "REJ::"+token)
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	msg := tgbot.NewMessage(chatID, prompt)
	msg.ReplyMarkup = kb

	sent, err := t.bot.Send(msg)
	if err != nil {
		t.log.Warn("telegram confirm send failed", zap.Error(err))
		return false
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		_ = t.editReplyMarkupRemove(chatID, sent.MessageID)
		_ = t.editText(chatID, sent.MessageID, fmt.Sprintf("%s\n\n⏳ Таймаут", prompt))
		return false
	case <-ctx.Done():
		_ = t.editReplyMarkupRemove(chatID, sent.MessageID)
		_ = t.editText(chatID, sent.MessageID, fmt.Sprintf("%s\n\n⛔️ Отменено", prompt))
		return false
	}
}

// Start читает апдейты, пока не закончится ctx.
func (t *Telegram) Start(ctx context.Context, ctrl Controller) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	t.ctrl = ctrl
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
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
}

func (t *Telegram) Stop() {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}

func (t *Telegram) controller() Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctrl
}
