package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Reasoning.Provider)
	assert.Equal(t, 90, cfg.Reasoning.TimeoutSecs)
	assert.InDelta(t, 0.1, cfg.Reasoning.Temperature, 0.001)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, "vision", cfg.Extractor.Strategy)
	assert.Equal(t, "tesseract", cfg.OCR.Provider)
	assert.Equal(t, int64(10*1024*1024), cfg.Image.MaxBytes)
	assert.Equal(t, 5, cfg.Lookups.TimeoutSecs)
	assert.Equal(t, "https://en.wikipedia.org", cfg.Lookups.WikipediaURL)
	assert.Equal(t, "https://world.openfoodfacts.org", cfg.Lookups.OpenFoodFactsURL)
	assert.Equal(t, 1000, cfg.Category.LookupTimeoutMs)
	assert.Equal(t, 4, cfg.Research.MaxConcurrency)
	assert.False(t, cfg.Pipeline.ProfileFallback)
	assert.False(t, cfg.Pipeline.RiskFallback)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 168, cfg.Store.TTLHours)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
reasoning:
  provider: anthropic
extractor:
  strategy: ocr
store:
  driver: none
log:
  level: debug
  format: console
pipeline:
  risk_fallback: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Reasoning.Provider)
	assert.Equal(t, "ocr", cfg.Extractor.Strategy)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Pipeline.RiskFallback)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Research.MaxConcurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("COPILOT_STORE_DRIVER", "postgres")
	t.Setenv("COPILOT_LOG_LEVEL", "warn")
	t.Setenv("COPILOT_GEMINI_KEY", "g-key")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "g-key", cfg.Gemini.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Reasoning.Provider = "gemini"
	cfg.Gemini.Key = "g-key"
	cfg.Extractor.Strategy = "vision"
	cfg.OCR.Provider = "tesseract"
	cfg.Image.MaxBytes = 10 << 20
	cfg.Image.Root = "/srv/labels"
	cfg.Research.MaxConcurrency = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "label-copilot.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateScan_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("scan"))
}

func TestValidateScan_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Gemini.Key = ""

	err := cfg.Validate("scan")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.key is required")
}

func TestValidateScan_AnthropicKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Reasoning.Provider = "anthropic"

	err := cfg.Validate("scan")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("scan"))
}

func TestValidateScan_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Reasoning.Provider = "mistral"
	cfg.Extractor.Strategy = "magic"

	err := cfg.Validate("scan")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `reasoning.provider "mistral"`)
	assert.Contains(t, err.Error(), `extractor.strategy "magic"`)
}

func TestValidateScan_OCRProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Extractor.Strategy = "ocr"
	cfg.OCR.Provider = "rekognition"
	assert.NoError(t, cfg.Validate("scan"))

	cfg.OCR.Provider = "cloud-vision"
	assert.Error(t, cfg.Validate("scan"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("scan"))
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_RequiresImageRoot(t *testing.T) {
	cfg := validDefaults()
	cfg.Image.Root = " "

	assert.NoError(t, cfg.Validate("scan"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image.root is required for serve")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Research.MaxConcurrency = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 32")

	cfg.Research.MaxConcurrency = 33
	assert.Error(t, cfg.Validate("serve"))

	cfg.Research.MaxConcurrency = 32
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateCache(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("cache")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "none"
	assert.NoError(t, cfg.Validate("cache"))

	cfg.Store.Driver = "mongo"
	assert.Error(t, cfg.Validate("cache"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
