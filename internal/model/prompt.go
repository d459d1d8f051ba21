package model

import "strings"

// MediaTypeFusion marks a record produced from more than one media item.
const MediaTypeFusion = "mixed/fusion"

type TargetModel string

const (
	TargetAuto  TargetModel = "auto"
	TargetNano  TargetModel = "nano"
	TargetSora2 TargetModel = "sora-2"
)

// ParseTarget accepts the names used by the web form, the bot and the CLI.
func ParseTarget(value string) (TargetModel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return TargetAuto, true
	case "nano", "nano-banana", "image":
		return TargetNano, true
	case "sora", "sora-2", "sora2", "video":
		return TargetSora2, true
	}
	return "", false
}

// Resolve turns TargetAuto into a concrete target.
func (t TargetModel) Resolve(hasVideo bool) TargetModel {
	if t == TargetNano || t == TargetSora2 {
		return t
	}
	if hasVideo {
		return TargetSora2
	}
	return TargetNano
}

type PromptResult struct {
	PositivePrompt   string `json:"positivePrompt" gorm:"type:text"`
	PositivePromptZh string `json:"positivePromptZh" gorm:"type:text"`
	NegativePrompt   string `json:"negativePrompt" gorm:"type:text"`
	NegativePromptZh string `json:"negativePromptZh" gorm:"type:text"`
	Description      string `json:"description" gorm:"type:text"`
	DescriptionZh    string `json:"descriptionZh" gorm:"type:text"`
}

// PromptRecord is one history entry. Records are never updated in place.
type PromptRecord struct {
	PromptResult `gorm:"embedded"`

	ID          string      `json:"id" gorm:"primaryKey;size:36"`
	UserID      string      `json:"userId" gorm:"size:64;index:idx_prompt_records_user_ts,priority:1"`
	Timestamp   int64       `json:"timestamp" gorm:"index:idx_prompt_records_user_ts,priority:2"`
	MediaType   string      `json:"mediaType" gorm:"size:128"`
	TargetModel TargetModel `json:"targetModel" gorm:"size:16"`
}

func (PromptRecord) TableName() string {
	return "prompt_records"
}
