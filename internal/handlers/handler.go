package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/mediagroup"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/store"
	"promptmaster-nano/internal/telegram"
	"promptmaster-nano/internal/workshop"
)

const historyPageSize = 10

type Bot interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendTyping(chatID int64)
	DownloadFile(ctx context.Context, fileID, name, declaredMime string) (media.Item, error)
}

type Users interface {
	Guest(ctx context.Context, id, name string) (*model.User, error)
}

type Workshop interface {
	Generate(ctx context.Context, userID string, req analyzer.Request) (model.PromptRecord, error)
	History(ctx context.Context, userID string, limit int) ([]model.PromptRecord, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

type Options struct {
	Bot      Bot
	Users    Users
	Workshop Workshop
	Logger   *slog.Logger
}

type Handler struct {
	bot        Bot
	users      Users
	workshop   Workshop
	prefs      *prefStore
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		bot:      opts.Bot,
		users:    opts.Users,
		workshop: opts.Workshop,
		prefs:    newPrefStore(),
		logger:   logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	from := msg.From

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, from, msg)
	}

	if file, ok := attachment(msg); ok {
		return h.handleMedia(ctx, chatID, from, msg, file)
	}

	if msg.Document != nil {
		return h.bot.SendText(chatID, "❌ 仅支持图片或视频文件。")
	}
	if strings.TrimSpace(msg.Text) != "" {
		return h.bot.SendText(chatID, "请发送图片或视频，可在说明文字中附上融合要求。/help 查看帮助。")
	}
	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.process(ctx, group.ChatID, group.UserID, group.Username, group.Caption, group.Files); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, from *tgbotapi.User, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.bot.SendText(chatID,
			"🍌 PromptMaster Nano\n\n"+
				"发送图片或视频，我会反推出可直接用于 Nano Banana / Sora 2 的提示词。\n"+
				"一次发送多张（相册）会融合成一组提示词，说明文字会作为融合要求。\n\n"+
				helpCommands,
		)
	case "help":
		return h.bot.SendText(chatID, "🍌 帮助\n\n"+helpCommands)
	case "history":
		return h.handleHistory(ctx, chatID, from)
	case "delete":
		return h.handleDelete(ctx, chatID, from, strings.TrimSpace(msg.CommandArguments()))
	case "clear":
		user, err := h.users.Guest(ctx, telegramUserID(from.ID), displayName(from))
		if err != nil {
			return err
		}
		n, err := h.workshop.Clear(ctx, user.ID)
		if err != nil {
			return err
		}
		return h.bot.SendText(chatID, fmt.Sprintf("✅ 已清空 %d 条历史记录。", n))
	case "target":
		return h.handleTarget(chatID, from.ID, strings.TrimSpace(msg.CommandArguments()))
	default:
		return h.bot.SendText(chatID, "❌ 未知命令，请使用 /help。")
	}
}

const helpCommands = "命令：\n" +
	"/history - 查看最近的提示词记录\n" +
	"/delete <id> - 删除一条记录\n" +
	"/clear - 清空全部记录\n" +
	"/target [auto|nano|sora-2] - 设置目标模型（说明文字里的 #nano / #sora 仅对本次生效）\n" +
	"/help - 帮助"

func (h *Handler) handleHistory(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	user, err := h.users.Guest(ctx, telegramUserID(from.ID), displayName(from))
	if err != nil {
		return err
	}
	records, err := h.workshop.History(ctx, user.ID, historyPageSize)
	if err != nil {
		return err
	}
	return h.bot.SendText(chatID, formatHistory(records))
}

func (h *Handler) handleDelete(ctx context.Context, chatID int64, from *tgbotapi.User, id string) error {
	if id == "" {
		return h.bot.SendText(chatID, "用法：/delete <记录ID>")
	}
	user, err := h.users.Guest(ctx, telegramUserID(from.ID), displayName(from))
	if err != nil {
		return err
	}
	if err := h.workshop.Delete(ctx, user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return h.bot.SendText(chatID, "❌ 未找到该记录。")
		}
		return err
	}
	return h.bot.SendText(chatID, "✅ 已删除。")
}

func (h *Handler) handleMedia(ctx context.Context, chatID int64, from *tgbotapi.User, msg *tgbotapi.Message, file mediagroup.File) error {
	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       from.ID,
			Username:     displayName(from),
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			File:         file,
		})
		return nil
	}

	return h.process(ctx, chatID, from.ID, displayName(from), msg.Caption, []mediagroup.File{file})
}

func (h *Handler) process(ctx context.Context, chatID, tgUserID int64, username, caption string, files []mediagroup.File) error {
	h.bot.SendTyping(chatID)

	user, err := h.users.Guest(ctx, telegramUserID(tgUserID), username)
	if err != nil {
		return err
	}

	items := make([]media.Item, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, f := range files {
		eg.Go(func() error {
			item, err := h.bot.DownloadFile(egCtx, f.ID, f.Name, f.MimeType)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("media download failed", "chat_id", chatID, "err", err)
		if errors.Is(err, media.ErrTooLarge) {
			return h.bot.SendText(chatID, "❌ 文件过大，请压缩后重试。")
		}
		return h.bot.SendText(chatID, "❌ 下载文件失败，请重试。")
	}

	instructions, target := captionTarget(caption)
	if target == model.TargetAuto {
		target = h.prefs.Get(chatID, tgUserID).Target
	}

	rec, err := h.workshop.Generate(ctx, user.ID, analyzer.Request{
		Media:        items,
		Instructions: instructions,
		Target:       target,
	})
	if err != nil {
		return h.bot.SendText(chatID, "❌ "+userMessage(err))
	}

	return h.bot.SendText(chatID, formatRecord(rec))
}

func userMessage(err error) string {
	var failed *workshop.FailedError
	switch {
	case errors.As(err, &failed):
		return workshop.FailureMessage
	case errors.Is(err, media.ErrTooMany):
		return "素材数量超过上限，请减少后重试。"
	case errors.Is(err, media.ErrTooLarge):
		return "文件过大，请压缩后重试。"
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrNoMedia):
		return "仅支持图片或视频文件。"
	}
	return workshop.FailureMessage
}

// attachment picks the analysable file of a message: the largest photo size,
// a video, or an image/video document.
func attachment(msg *tgbotapi.Message) (mediagroup.File, bool) {
	switch {
	case len(msg.Photo) > 0:
		p := msg.Photo[len(msg.Photo)-1]
		return mediagroup.File{ID: p.FileID, Name: "photo.jpg", MimeType: "image/jpeg"}, true
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		return mediagroup.File{ID: msg.Video.FileID, Name: name, MimeType: msg.Video.MimeType}, true
	case msg.Document != nil:
		mt := msg.Document.MimeType
		if strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "video/") {
			return mediagroup.File{ID: msg.Document.FileID, Name: msg.Document.FileName, MimeType: mt}, true
		}
	}
	return mediagroup.File{}, false
}

func telegramUserID(id int64) string {
	return fmt.Sprintf("tg-%d", id)
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.UserName
	}
	return name
}
