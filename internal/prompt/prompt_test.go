package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptmaster-nano/internal/gemini"
	"promptmaster-nano/internal/model"
)

func TestBuildSingle(t *testing.T) {
	lib := Default()

	text, err := lib.Build(Input{Count: 1, Target: model.TargetNano})
	require.NoError(t, err)

	assert.Contains(t, text, "分析这个媒体文件")
	assert.Contains(t, text, "Nano")
	assert.Contains(t, text, "JSON")
	assert.NotContains(t, text, "用户特别要求")
}

func TestBuildFusionWithInstructions(t *testing.T) {
	lib := Default()

	text, err := lib.Build(Input{Count: 3, Instructions: "  保留角色特征  ", Target: model.TargetSora2})
	require.NoError(t, err)

	assert.Contains(t, text, "这 3 个素材")
	assert.Contains(t, text, `"保留角色特征"`)
	assert.Contains(t, text, "及用户要求")
	assert.Contains(t, text, "Sora 2")
}

func TestBuildAutoTargetFallsBackToNano(t *testing.T) {
	text, err := Default().Build(Input{Count: 1, Target: model.TargetAuto})
	require.NoError(t, err)
	assert.Contains(t, text, "Nano")
}

func TestBuildRequiresMedia(t *testing.T) {
	_, err := Default().Build(Input{Count: 0})
	assert.Error(t, err)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	_, err := Load([]byte("single: ''\nfusion: x"))
	assert.Error(t, err)

	_, err = Load([]byte("single: a\nfusion: b\ntargets:\n  dalle: c\n"))
	assert.Error(t, err)

	_, err = Load([]byte("single: '{{.Nope'\nfusion: b\n"))
	assert.Error(t, err)
}

func TestResultSchema(t *testing.T) {
	s := ResultSchema()

	assert.Equal(t, gemini.TypeObject, s.Type)
	assert.Len(t, s.Properties, 6)
	assert.ElementsMatch(t, ResultFields, s.Required)
	for _, f := range ResultFields {
		require.Contains(t, s.Properties, f)
		assert.Equal(t, gemini.TypeString, s.Properties[f].Type)
	}
}
