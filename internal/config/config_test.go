package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/types"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	m, err := NewConfigManager(path)
	require.NoError(t, err)

	require.NoError(t, m.Load())
	cfg := m.GetConfig()

	assert.Equal(t, DefaultModel, cfg.OpenAIModel)
	assert.Equal(t, DefaultBaseURL, cfg.OpenAIBaseURL)
	assert.Equal(t, DefaultTargetLanguage, cfg.TargetLanguage)
	assert.Equal(t, DefaultWorkerBudget, cfg.WorkerBudget)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(&types.Config{TargetLanguage: "ja", WorkerBudget: 2})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	m, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Load())

	cfg := m.GetConfig()
	assert.Equal(t, "ja", cfg.TargetLanguage)
	assert.Equal(t, 2, cfg.WorkerBudget)
	assert.Equal(t, DefaultModel, cfg.OpenAIModel)
}

func TestLoadInvalidJSONFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	m, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Load())

	assert.Equal(t, DefaultModel, m.GetConfig().OpenAIModel)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	m, err := NewConfigManager(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	cfg.TargetLanguage = "ko"
	cfg.LatinFontPath = "/fonts/latin.ttf"
	require.NoError(t, m.Save())

	m2, err := NewConfigManager(path)
	require.NoError(t, err)
	require.NoError(t, m2.Load())
	assert.Equal(t, "ko", m2.GetConfig().TargetLanguage)
	assert.Equal(t, "/fonts/latin.ttf", m2.GetConfig().LatinFontPath)
}

func TestGetAPIKeyPrefersConfigOverEnv(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "env-key")

	m, err := NewConfigManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", m.GetAPIKey())

	m.GetConfig().OpenAIAPIKey = "file-key"
	assert.Equal(t, "file-key", m.GetAPIKey())
}

func TestLineHeightFor(t *testing.T) {
	tests := []struct {
		name      string
		lang      string
		overrides map[string]float64
		want      float64
	}{
		{"builtin zh", "zh", nil, 1.4},
		{"builtin ru", "ru", nil, 0.8},
		{"unknown language", "xx", nil, FallbackLineHeight},
		{"override wins", "zh", map[string]float64{"zh": 1.6}, 1.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LineHeightFor(tt.lang, tt.overrides))
		})
	}
}
