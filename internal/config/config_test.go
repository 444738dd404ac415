package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDBPath(t *testing.T) {
	t.Run("with XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/custom/cache")
		assert.Equal(t, "/custom/cache/linkbatch/linkbatch.db", DefaultDBPath())
	})

	t.Run("without XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "")
		path := DefaultDBPath()
		assert.True(t, strings.HasSuffix(path, filepath.Join(".cache", "linkbatch", "linkbatch.db")), path)
	})
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/linkbatch/config.toml", DefaultConfigPath())
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "dl"), ExpandPath("~/dl"))
	assert.Equal(t, "/abs/dl", ExpandPath("/abs/dl"))
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.KeyExchange.Attempts)
	assert.Equal(t, 15*time.Second, cfg.KeyExchange.Timeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.KeyExchange.Delay.Duration)
	assert.Equal(t, 3, cfg.Scrape.BatchAttempts)
	assert.Equal(t, 15, cfg.Scrape.SingleAttempts)
	assert.Equal(t, 4*time.Second, cfg.Scrape.Backoff.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Scrape.Timeout.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Scrape.DriveTimeout.Duration)
	assert.Equal(t, "yt-dlp", cfg.Tools.Downloader)
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
credit = "Team"
downloads_dir = "/srv/dl"

[key_exchange]
endpoint = "https://keys.example.com/api"
timeout = "5s"
attempts = 3

[wizard]
drm_timeout = "45s"

[[rules]]
name = "mirror"
pattern = "^https://old\\.example\\.com/"
replace = "https://new.example.com/"

[[remaps]]
name = "cdn"
legacy = "old-cdn.example.com"
current = "cdn.example.com"
separator = "*"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Team", cfg.Credit)
	assert.Equal(t, "/srv/dl", cfg.DownloadsDir)
	assert.Equal(t, "https://keys.example.com/api", cfg.KeyExchange.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.KeyExchange.Timeout.Duration)
	assert.Equal(t, 3, cfg.KeyExchange.Attempts)
	assert.Equal(t, 45*time.Second, cfg.Wizard.DRMTimeout.Duration)
	assert.Equal(t, 60*time.Second, cfg.Wizard.UploadTimeout.Duration, "unset keys keep defaults")
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "mirror", cfg.Rules[0].Name)
	require.Len(t, cfg.Remaps, 1)
	assert.Equal(t, "*", cfg.Remaps[0].Separator)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("OWNER_ID", "42")
	t.Setenv("CREDIT", "Env Credit")
	t.Setenv("KEY_EXCHANGE_URL", "https://env.example.com")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.OwnerID)
	assert.Equal(t, "Env Credit", cfg.Credit)
	assert.Equal(t, "https://env.example.com", cfg.KeyExchange.Endpoint)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", "[key_exchange]\ntimeout = \"soon\"\n"},
		{"zero attempts", "[key_exchange]\nattempts = 0\n"},
		{"zero scrape timeout", "[scrape]\ntimeout = \"0s\"\n"},
		{"rule without pattern", "[[rules]]\nname = \"x\"\n"},
		{"remap without target", "[[remaps]]\nlegacy = \"a\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LINKBATCH_CONFIG", filepath.Join(dir, "absent.toml"))

	t.Run("missing file is fine", func(t *testing.T) {
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("malformed file is reported", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BOT_TOKEN='unterminated\n"), 0o644))
		_, err := Load()
		assert.ErrorContains(t, err, "load .env")
	})
}
