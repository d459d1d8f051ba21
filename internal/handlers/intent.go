package handlers

import (
	"strings"

	"promptmaster-nano/internal/model"
)

// captionTags are the hashtags that pick a target. Generic tags such as #video
// stay part of the instructions.
var captionTags = map[string]model.TargetModel{
	"nano":        model.TargetNano,
	"nano-banana": model.TargetNano,
	"sora":        model.TargetSora2,
	"sora-2":      model.TargetSora2,
	"sora2":       model.TargetSora2,
}

// captionTarget looks for a "#nano" / "#sora" style tag in a caption. It
// returns the caption without the tag and the requested target, or
// TargetAuto when no tag is present.
func captionTarget(caption string) (string, model.TargetModel) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return strings.TrimSpace(caption), model.TargetAuto
	}

	target := model.TargetAuto
	kept := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "#") {
			if t, ok := captionTags[strings.ToLower(strings.TrimPrefix(f, "#"))]; ok {
				target = t
				continue
			}
		}
		kept = append(kept, f)
	}
	if target == model.TargetAuto {
		return strings.TrimSpace(caption), target
	}
	return strings.Join(kept, " "), target
}
