package handlers

import (
	"fmt"
	"strings"
	"time"

	"promptmaster-nano/internal/model"
)

func formatRecord(rec model.PromptRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✨ 提示词已生成 · %s\n", targetLabel(rec.TargetModel))

	section(&b, "📝 画面描述", rec.DescriptionZh, rec.Description)
	section(&b, "✅ 正向提示词", rec.PositivePromptZh, rec.PositivePrompt)
	section(&b, "🚫 负向提示词", rec.NegativePromptZh, rec.NegativePrompt)

	fmt.Fprintf(&b, "\n🆔 %s", rec.ID)
	return b.String()
}

func section(b *strings.Builder, title string, values ...string) {
	var lines []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, v)
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n" + title + "\n")
	b.WriteString(strings.Join(lines, "\n\n"))
	b.WriteString("\n")
}

func formatHistory(records []model.PromptRecord) string {
	if len(records) == 0 {
		return "暂无历史记录。"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🕘 最近 %d 条记录\n", len(records))
	for i, rec := range records {
		ts := time.UnixMilli(rec.Timestamp).UTC().Format("2006-01-02 15:04")
		summary := rec.DescriptionZh
		if summary == "" {
			summary = rec.PositivePrompt
		}
		fmt.Fprintf(&b, "\n%d. %s · %s · %s\n   %s\n   🆔 %s\n",
			i+1, ts, targetLabel(rec.TargetModel), mediaLabel(rec.MediaType), truncateLine(summary, 60), rec.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func mediaLabel(mediaType string) string {
	switch {
	case mediaType == model.MediaTypeFusion:
		return "融合"
	case strings.HasPrefix(mediaType, "video/"):
		return "视频"
	default:
		return "图片"
	}
}

func truncateLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
