package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"promptmaster-nano/internal/gemini"
	"promptmaster-nano/internal/model"
)

//go:embed templates.yaml
var defaultTemplates []byte

// ResultFields are the JSON keys the model must return, in schema order.
var ResultFields = []string{
	"positivePrompt",
	"positivePromptZh",
	"negativePrompt",
	"negativePromptZh",
	"description",
	"descriptionZh",
}

type Input struct {
	Count        int
	Instructions string
	Target       model.TargetModel
}

type Library struct {
	single  *template.Template
	fusion  *template.Template
	targets map[model.TargetModel]string
}

type templateFile struct {
	Single  string            `yaml:"single"`
	Fusion  string            `yaml:"fusion"`
	Targets map[string]string `yaml:"targets"`
}

// Load parses a template file in the layout of templates.yaml.
func Load(data []byte) (*Library, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if strings.TrimSpace(file.Single) == "" || strings.TrimSpace(file.Fusion) == "" {
		return nil, errors.New("templates: single and fusion are required")
	}

	single, err := template.New("single").Option("missingkey=error").Parse(file.Single)
	if err != nil {
		return nil, fmt.Errorf("parse single template: %w", err)
	}
	fusion, err := template.New("fusion").Option("missingkey=error").Parse(file.Fusion)
	if err != nil {
		return nil, fmt.Errorf("parse fusion template: %w", err)
	}

	targets := make(map[model.TargetModel]string, len(file.Targets))
	for key, text := range file.Targets {
		target, ok := model.ParseTarget(key)
		if !ok || target == model.TargetAuto {
			return nil, fmt.Errorf("templates: unknown target %q", key)
		}
		targets[target] = strings.TrimSpace(text)
	}

	return &Library{single: single, fusion: fusion, targets: targets}, nil
}

func Default() *Library {
	lib, err := Load(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return lib
}

// Build renders the instruction text. More than one item selects the fusion
// template.
func (l *Library) Build(in Input) (string, error) {
	if in.Count < 1 {
		return "", errors.New("prompt: at least one media item is required")
	}

	tmpl := l.single
	if in.Count > 1 {
		tmpl = l.fusion
	}

	target := in.Target.Resolve(false)
	data := struct {
		Count        int
		Instructions string
		Guidance     string
	}{
		Count:        in.Count,
		Instructions: strings.TrimSpace(in.Instructions),
		Guidance:     l.targets[target],
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// ResultSchema is the response schema for PromptResult.
func ResultSchema() *gemini.Schema {
	props := make(map[string]*gemini.Schema, len(ResultFields))
	for _, f := range ResultFields {
		props[f] = &gemini.Schema{Type: gemini.TypeString}
	}
	return &gemini.Schema{
		Type:       gemini.TypeObject,
		Properties: props,
		Required:   append([]string(nil), ResultFields...),
	}
}
