package service

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Команды
	if msg := update.Message; msg != nil {
		if msg.Chat == nil || msg.Chat.ID != t.cfg.ChatID {
			// чужие чаты молча игнорируем
			return
		}
		if !msg.IsCommand() {
			return
		}
		chatID := msg.Chat.ID
		switch msg.Command() {
		case "start", "help":
			_, _ = t.Send(ctx, chatID, helpText)
		case "status":
			t.handleStatus(ctx, chatID)
		case "panic":
			go t.handlePanic(ctx, chatID)
		default:
			_, _ = t.Send(ctx, chatID, "Неизвестная команда. "+helpText)
		}
		return
	}

	// 2) Inline-кнопки (CallbackQuery)
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != t.cfg.ChatID {
			return
		}
		t.handleCallback(cb)
	}
}

const helpText = "/status — последний цикл и позиция\n/panic — закрыть позицию и снять ордера"

func (t *Telegram) handleStatus(ctx context.Context, chatID int64) {
	ctrl := t.controller()
	if ctrl == nil {
		_, _ = t.Send(ctx, chatID, "Раннер ещё не запущен")
		return
	}
	if _, err := t.Send(ctx, chatID, formatStatus(t.cfg.Symbol, ctrl.LastReport())); err != nil {
		t.log.Warn("telegram status failed", zap.Error(err))
	}
}

func (t *Telegram) handlePanic(ctx context.Context, chatID int64) {
	ctrl := t.controller()
	if ctrl == nil {
		return
	}
	if !t.Confirm(ctx, chatID, "🚨 Закрыть "+t.cfg.Symbol+" и снять все ордера?", t.cfg.ConfirmTimeout) {
		return
	}
	t.log.Warn("panic requested from telegram", zap.Int64("chat_id", chatID))
	rep, err := ctrl.Flatten(ctx, "panic")
	_, _ = t.Send(ctx, chatID, formatFlatten(t.cfg.Symbol, rep, err))
}

func (t *Telegram) handleCallback(cb *tgbotapi.CallbackQuery) {
	// CONF::token / REJ::token
	kind, token, ok := strings.Cut(cb.Data, "::")
	if !ok {
		return
	}
	t.mu.Lock()
	p := t.pendings[token]
	msgID := 0
	if p != nil {
		msgID = p.msgID
	}
	t.mu.Unlock()

	chatID := cb.Message.Chat.ID
	if p == nil {
		_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, "Устарело"))
		return
	}
	confirmed := kind == "CONF"
	select {
	case p.ch <- confirmed:
	default:
	}
	_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	_ = t.editReplyMarkupRemove(chatID, msgID)
	suffix := "\n\n❌ Отменено"
	if confirmed {
		suffix = "\n\n✅ Принято"
	}
	_ = t.editText(chatID, msgID, p.prompt+suffix)
}
