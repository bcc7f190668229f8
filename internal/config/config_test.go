package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiergate/internal/models"
	"tiergate/internal/providers"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "COUNTER_BACKEND", "AUTO_PREMIUM_KEYWORDS", "AUTO_PREMIUM_IF_CHARS_OVER",
		"FALLBACK_TO_CHEAP_ON_PREMIUM_ERROR", "SOFT_WARN_PCT", "SOFT_CRIT_PCT", "PERIOD_TIMEZONE",
		"GEMINI_MODEL_CHEAP", "GEMINI_MODEL_PREMIUM", "SELF_HOSTED_URL", "TIERS_FILE",
	} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.CounterBackend)
	assert.Equal(t, 500, cfg.AutoPremiumCharsOver)
	assert.Contains(t, cfg.AutoPremiumKeywords, "analyze")
	assert.Len(t, cfg.AutoPremiumKeywords, 8)
	assert.True(t, cfg.FallbackToCheap)
	assert.Equal(t, models.Thresholds{WarningPct: 80, CriticalPct: 95}, cfg.Thresholds())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	tiers, err := cfg.Tiers()
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, models.TierCheap, tiers[0].Tier)
	assert.Equal(t, "gemini-1.5-flash", tiers[0].Model)
	assert.Equal(t, providers.KindGemini, tiers[1].Kind)
	assert.Equal(t, "gemini-1.5-pro", tiers[1].Model)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOFT_WARN_PCT", "70")
	t.Setenv("AUTO_PREMIUM_IF_CHARS_OVER", "1200")
	t.Setenv("AUTO_PREMIUM_KEYWORDS", "deep, Audit")
	t.Setenv("FALLBACK_TO_CHEAP_ON_PREMIUM_ERROR", "false")
	t.Setenv("PROVIDER_TIMEOUT", "1500")
	t.Setenv("SELF_HOSTED_URL", "http://qwen.local/v1")
	t.Setenv("SELF_HOSTED_ADAPTER", "predict")
	t.Setenv("ALERT_WEBHOOK_URLS", "http://a, http://b")
	t.Setenv("TIERS_FILE", "")
	cfg := Load()

	assert.Equal(t, 70.0, cfg.SoftWarnPct)
	assert.Equal(t, 1200, cfg.Auto().PremiumCharsOver)
	assert.Equal(t, []string{"deep", "Audit"}, cfg.Auto().Keywords)
	assert.False(t, cfg.FallbackToCheap)
	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.AlertWebhookURLs)

	tiers, err := cfg.Tiers()
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, models.TierQwen, tiers[2].Tier)
	assert.Equal(t, providers.KindPredict, tiers[2].Kind)
	assert.Equal(t, 1500*time.Millisecond, tiers[2].Timeout)
	assert.Equal(t, "qwen-2.5-7b", ModelNames(tiers)[models.TierQwen])
}

func TestTiers_FileOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - tier: premium
    adapter: openai
    base_url: http://llm.internal/v1
    api_key: ${TEST_PREMIUM_KEY}
    model: big-model
    timeout: 20s
  - tier: self-hosted
    adapter: predict
    base_url: http://predict.internal
    model: qwen-custom
`), 0o600))
	t.Setenv("TEST_PREMIUM_KEY", "sk-test")
	t.Setenv("TIERS_FILE", path)
	t.Setenv("SELF_HOSTED_URL", "")
	t.Setenv("PROVIDER_TIMEOUT", "5s")

	tiers, err := Load().Tiers()
	require.NoError(t, err)
	names := ModelNames(tiers)
	assert.Equal(t, "gemini-1.5-flash", names[models.TierCheap])
	assert.Equal(t, "big-model", names[models.TierPremium])
	assert.Equal(t, "qwen-custom", names[models.TierQwen])

	for _, c := range tiers {
		switch c.Tier {
		case models.TierPremium:
			assert.Equal(t, "sk-test", c.APIKey)
			assert.Equal(t, 20*time.Second, c.Timeout)
		case models.TierQwen:
			assert.Equal(t, 5*time.Second, c.Timeout)
		}
	}
}

func TestTiers_UnknownTierInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers:\n  - tier: gold\n    model: x\n"), 0o600))
	t.Setenv("TIERS_FILE", path)

	_, err := Load().Tiers()
	assert.ErrorContains(t, err, "gold")
}

func TestLocation_Invalid(t *testing.T) {
	_, err := Config{PeriodTimezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
