package handlers

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"promptmaster-nano/internal/model"
)

const targetCallbackPrefix = "tm"

func (h *Handler) handleTarget(chatID, userID int64, arg string) error {
	if arg != "" {
		target, ok := model.ParseTarget(arg)
		if !ok {
			return h.bot.SendText(chatID, "❌ 未知目标，可选：auto、nano、sora-2")
		}
		p := h.prefs.Update(chatID, userID, func(p *Preferences) { p.Target = target })
		if p.MenuMessageID != 0 {
			if err := h.editTargetMenu(chatID, userID, p); err != nil {
				h.logger.Debug("stale target menu not refreshed", "chat_id", chatID, "err", err)
			}
		}
		return h.bot.SendText(chatID, "✅ 目标模型："+targetLabel(target))
	}

	p := h.prefs.Get(chatID, userID)
	if p.MenuMessageID != 0 {
		err := h.editTargetMenu(chatID, userID, p)
		if err == nil {
			return nil
		}
		h.logger.Debug("target menu edit failed, sending a new one", "chat_id", chatID, "err", err)
	}

	msgID, err := h.bot.SendTextWithKeyboard(chatID, targetMenuText(p.Target), targetKeyboard(userID, p.Target))
	if err != nil {
		return err
	}
	h.prefs.Update(chatID, userID, func(p *Preferences) { p.MenuMessageID = msgID })
	return nil
}

func (h *Handler) editTargetMenu(chatID, userID int64, p Preferences) error {
	return h.bot.EditTextWithKeyboard(chatID, p.MenuMessageID, targetMenuText(p.Target), targetKeyboard(userID, p.Target))
}

func (h *Handler) handleCallback(q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, targetCallbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		return h.bot.AnswerCallback(q.ID, "这个菜单不属于你。", true)
	}

	target, ok := model.ParseTarget(parts[2])
	if !ok {
		return h.bot.AnswerCallback(q.ID, "未知目标", false)
	}

	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	h.prefs.Update(chatID, ownerID, func(p *Preferences) {
		p.Target = target
		p.MenuMessageID = msgID
	})

	_ = h.bot.AnswerCallback(q.ID, targetLabel(target), false)
	if err := h.bot.EditTextWithKeyboard(chatID, msgID, targetMenuText(target), targetKeyboard(ownerID, target)); err != nil {
		h.logger.Warn("target menu edit failed", "chat_id", chatID, "err", err)
	}
	return nil
}

func targetMenuText(current model.TargetModel) string {
	return "🎯 选择目标模型\n\n" +
		"当前：" + targetLabel(current) + "\n\n" +
		"自动：有视频时用 Sora 2，否则用 Nano Banana。"
}

func targetKeyboard(ownerID int64, current model.TargetModel) tgbotapi.InlineKeyboardMarkup {
	btn := func(t model.TargetModel) tgbotapi.InlineKeyboardButton {
		label := targetLabel(t)
		if t == current {
			label = "✅ " + label
		}
		return tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, string(t)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(btn(model.TargetAuto)),
		tgbotapi.NewInlineKeyboardRow(btn(model.TargetNano), btn(model.TargetSora2)),
	)
}

func targetLabel(t model.TargetModel) string {
	switch t {
	case model.TargetNano:
		return "Nano Banana"
	case model.TargetSora2:
		return "Sora 2"
	default:
		return "自动"
	}
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", targetCallbackPrefix, ownerID, strings.Join(parts, ":"))
}
