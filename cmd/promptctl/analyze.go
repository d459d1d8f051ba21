package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/app"
	"promptmaster-nano/internal/config"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		instructions string
		target       string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Generate a prompt from one image/video, or fuse several",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := model.ParseTarget(target)
			if !ok {
				return fmt.Errorf("unknown target %q (auto|nano|sora-2)", target)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg = root.apply(cfg)

			items, err := loadFiles(args, app.Limits(cfg))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, root.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Sessions.Guest(ctx, root.user, root.user)
			if err != nil {
				return err
			}

			rec, err := a.Workshop.Generate(ctx, user.ID, analyzer.Request{
				Media:        items,
				Instructions: strings.TrimSpace(instructions),
				Target:       t,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "fusion instructions")
	cmd.Flags().StringVarP(&target, "target", "t", "auto", "target model: auto|nano|sora-2")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func loadFiles(paths []string, limits media.Limits) ([]media.Item, error) {
	items := make([]media.Item, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		items = append(items, media.Item{
			Name:     name,
			MimeType: media.ResolveMimeType("", name, data),
			Data:     data,
		})
	}
	if err := limits.Check(items); err != nil {
		return nil, err
	}
	return items, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printRecord(w io.Writer, rec model.PromptRecord) {
	fmt.Fprintf(w, "id:      %s\ntarget:  %s\nmedia:   %s\n", rec.ID, rec.TargetModel, rec.MediaType)
	for _, f := range []struct{ label, value string }{
		{"description (zh)", rec.DescriptionZh},
		{"description", rec.Description},
		{"positive (zh)", rec.PositivePromptZh},
		{"positive", rec.PositivePrompt},
		{"negative (zh)", rec.NegativePromptZh},
		{"negative", rec.NegativePrompt},
	} {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n%s\n", f.label, f.value)
	}
}
