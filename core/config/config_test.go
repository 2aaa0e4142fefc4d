package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", RunMode: "polling"}}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, float64(DefaultFontSize), cfg.Compositor.FontSize)
	assert.Equal(t, runtime.NumCPU(), cfg.Compositor.Workers)
	assert.Equal(t, DefaultMaxPixels, cfg.Compositor.MaxPixels)
	assert.Equal(t, DefaultMaxLabelRunes, cfg.Compositor.MaxLabelRunes)
	assert.Equal(t, DefaultRateBurst, cfg.RateLimit.Burst)
	assert.False(t, cfg.Database.Enabled())
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]*Config{
		"missing token": {},
		"bad run mode":  {Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
		"webhook without url": {
			Telegram: TelegramConfig{Token: "t", RunMode: RunModeWebhook},
			Webhook:  WebhookConfig{Listen: "0.0.0.0", Port: 8443},
		},
		"bad exclude": {
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"poll"}},
		},
		"negative burst": {
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{Burst: -1},
		},
		"negative workers": {
			Telegram:   TelegramConfig{Token: "t"},
			Compositor: CompositorConfig{Workers: -1},
		},
		"db without name": {
			Telegram: TelegramConfig{Token: "t"},
			Database: DatabaseConfig{Host: "localhost"},
		},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Telegram:   TelegramConfig{RunMode: RunModeWebhook},
		Compositor: CompositorConfig{FontSize: -1},
	}
	err := Normalize(cfg)
	require.Error(t, err)
	for _, want := range []string{"token is required", "webhook.url", "webhook.listen", "webhook.port", "compositor settings"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Database: DatabaseConfig{Host: "db", Name: "mergebot"},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 4, cfg.Database.MaxConnections)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := []byte("telegram:\n  token: from-file\n  run_mode: longpoll\ncompositor:\n  font_size: 32\nshare:\n  chat_id: \" @gallery \"\n")
	require.NoError(t, os.WriteFile(path, yml, 0o600))

	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("COMPOSITOR_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, float64(32), cfg.Compositor.FontSize)
	assert.Equal(t, 3, cfg.Compositor.Workers)
	assert.Equal(t, "@gallery", cfg.Share.ChatID)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Telegram.Token)
}

func TestLoadDatabaseNeedsNoToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: db\n  name: mergebot\n"), 0o600))

	db, err := LoadDatabase(path)
	require.NoError(t, err)
	assert.Equal(t, "db", db.Host)
	assert.Equal(t, "5432", db.Port)

	_, err = LoadDatabase(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
