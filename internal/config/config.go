// Package config provides configuration management for the PDF translator.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-translator-config.json"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default model to use for translation
	DefaultModel = "gpt-4o-mini"
	// DefaultTargetLanguage is the default translation target
	DefaultTargetLanguage = "zh"
	// DefaultSourceLanguage is the default translation source
	DefaultSourceLanguage = "en"
	// DefaultWorkerBudget is the global concurrency budget shared between
	// page workers and per-page paragraph translation workers
	DefaultWorkerBudget = 8
	// DefaultMaxRetries bounds per-paragraph translation attempts
	DefaultMaxRetries = 3
	// DefaultLayoutModelFile is the DocLayout-YOLO ONNX model file name
	DefaultLayoutModelFile = "doclayout_yolo_docstructbench_imgsz1024.onnx"
)

// defaultLineHeights maps target language codes to interline line-height
// factors. The values are empirical and may be overridden per config file.
var defaultLineHeights = map[string]float64{
	"zh":    1.4,
	"zh-cn": 1.4,
	"zh-tw": 1.4,
	"ja":    1.1,
	"ko":    1.2,
	"en":    1.2,
	"ar":    1.0,
	"ru":    0.8,
}

// FallbackLineHeight is used for target languages absent from the table.
const FallbackLineHeight = 1.1

// LineHeightFor returns the default line-height factor for a target
// language code, consulting overrides before the built-in table.
func LineHeightFor(lang string, overrides map[string]float64) float64 {
	if v, ok := overrides[lang]; ok {
		return v
	}
	if v, ok := defaultLineHeights[lang]; ok {
		return v
	}
	return FallbackLineHeight
}

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in the user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-translator", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		OpenAIBaseURL:   DefaultBaseURL,
		OpenAIModel:     DefaultModel,
		SourceLanguage:  DefaultSourceLanguage,
		TargetLanguage:  DefaultTargetLanguage,
		LayoutModelPath: DefaultLayoutModelFile,
		WorkerBudget:    DefaultWorkerBudget,
		MaxRetries:      DefaultMaxRetries,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, defaults are used. Environment variables take
// precedence for the API key and base URL when the file values are empty.
func (m *ConfigManager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", err,
				logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			m.config = config
		}
	}

	// Apply defaults for empty fields
	if m.config.OpenAIModel == "" {
		m.config.OpenAIModel = DefaultModel
	}
	if m.config.OpenAIBaseURL == "" {
		m.config.OpenAIBaseURL = DefaultBaseURL
	}
	if m.config.SourceLanguage == "" {
		m.config.SourceLanguage = DefaultSourceLanguage
	}
	if m.config.TargetLanguage == "" {
		m.config.TargetLanguage = DefaultTargetLanguage
	}
	if m.config.LayoutModelPath == "" {
		m.config.LayoutModelPath = DefaultLayoutModelFile
	}
	if m.config.WorkerBudget <= 0 {
		m.config.WorkerBudget = DefaultWorkerBudget
	}
	if m.config.MaxRetries <= 0 {
		m.config.MaxRetries = DefaultMaxRetries
	}

	return nil
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the OpenAI API key, falling back to the environment.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the API base URL, falling back to the environment.
func (m *ConfigManager) GetBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" && m.config.OpenAIBaseURL != DefaultBaseURL {
		return m.config.OpenAIBaseURL
	}
	if env := os.Getenv(EnvOpenAIBaseURL); env != "" {
		return env
	}
	return DefaultBaseURL
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig replaces the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}
