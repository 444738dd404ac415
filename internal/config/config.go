package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds application configuration. It is not modified after Load.
type Config struct {
	Telegram       TelegramConfig    `toml:"telegram"`
	DBPath         string            `toml:"db_path"`
	DownloadsDir   string            `toml:"downloads_dir"`
	CookiesFile    string            `toml:"cookies_file"`
	Credit         string            `toml:"credit"`
	FilenamePrefix string            `toml:"filename_prefix"`
	HTTPAddr       string            `toml:"http_addr"`
	KeyExchange    KeyExchangeConfig `toml:"key_exchange"`
	Tools          ToolsConfig       `toml:"tools"`
	Scrape         ScrapeConfig      `toml:"scrape"`
	Wizard         WizardConfig      `toml:"wizard"`
	Log            LogConfig         `toml:"log"`
	Rules          []RuleConfig      `toml:"rules"`
	Remaps         []RemapConfig     `toml:"remaps"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token       string   `toml:"token"`
	APIBase     string   `toml:"api_base"`
	PollTimeout Duration `toml:"poll_timeout"`
	OwnerID     int64    `toml:"owner_id"`
	// SendRate is the sustained outbound messages per second.
	SendRate float64 `toml:"send_rate"`
}

// KeyExchangeConfig configures the DRM key-exchange API client.
type KeyExchangeConfig struct {
	Endpoint string   `toml:"endpoint"`
	Timeout  Duration `toml:"timeout"`
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

// ToolsConfig names the external binaries. AppxDecrypt is an argv template
// with {file} and {key} placeholders.
type ToolsConfig struct {
	Downloader  string   `toml:"downloader"`
	FFmpeg      string   `toml:"ffmpeg"`
	MP4Decrypt  string   `toml:"mp4decrypt"`
	AppxDecrypt []string `toml:"appx_decrypt"`
	Timeout     Duration `toml:"timeout"`
}

// ScrapeConfig configures the browser-mimicking PDF fetch.
type ScrapeConfig struct {
	Hosts          []string `toml:"hosts"`
	BatchAttempts  int      `toml:"batch_attempts"`
	SingleAttempts int      `toml:"single_attempts"`
	Backoff        Duration `toml:"backoff"`
	UserAgent      string   `toml:"user_agent"`
	Timeout        Duration `toml:"timeout"`       // one scrape attempt
	DriveTimeout   Duration `toml:"drive_timeout"` // one Drive download
}

// WizardConfig holds the per-step wait of each conversational flow.
type WizardConfig struct {
	UploadTimeout Duration `toml:"upload_timeout"`
	DRMTimeout    Duration `toml:"drm_timeout"`
	FileTimeout   Duration `toml:"file_timeout"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// RuleConfig is a user-defined pattern rule.
type RuleConfig struct {
	Name        string `toml:"name"`
	Pattern     string `toml:"pattern"`
	Strategy    string `toml:"strategy"`
	Replace     string `toml:"replace"`
	KeyExchange bool   `toml:"key_exchange"`
}

// RemapConfig is a user-defined CDN host move.
type RemapConfig struct {
	Name      string `toml:"name"`
	Legacy    string `toml:"legacy"`
	Current   string `toml:"current"`
	Separator string `toml:"separator"`
}

// Duration is a time.Duration decoded from strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "linkbatch", "linkbatch.db")
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "linkbatch", "config.toml")
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIBase:     "https://api.telegram.org",
			PollTimeout: Duration{30 * time.Second},
			SendRate:    1,
		},
		DBPath:       DefaultDBPath(),
		DownloadsDir: "downloads",
		CookiesFile:  "youtube_cookies.txt",
		Credit:       "UG",
		HTTPAddr:     ":8080",
		KeyExchange: KeyExchangeConfig{
			Timeout:  Duration{15 * time.Second},
			Attempts: 2,
			Delay:    Duration{2 * time.Second},
		},
		Tools: ToolsConfig{
			Downloader: "yt-dlp",
			FFmpeg:     "ffmpeg",
			MP4Decrypt: "mp4decrypt",
			Timeout:    Duration{30 * time.Minute},
		},
		Scrape: ScrapeConfig{
			Hosts:          []string{"cwmediabkt99"},
			BatchAttempts:  3,
			SingleAttempts: 15,
			Backoff:        Duration{4 * time.Second},
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Timeout:        Duration{2 * time.Minute},
			DriveTimeout:   Duration{30 * time.Minute},
		},
		Wizard: WizardConfig{
			UploadTimeout: Duration{60 * time.Second},
			DRMTimeout:    Duration{20 * time.Second},
			FileTimeout:   Duration{180 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "text", File: "bot.log"},
	}
}

// Load reads .env, the TOML config file and environment overrides.
// The file path comes from LINKBATCH_CONFIG or DefaultConfigPath.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("LINKBATCH_CONFIG")
	if path == "" {
		path = DefaultConfigPath()
	}
	return LoadFile(ExpandPath(path))
}

// LoadFile builds Config from defaults, the given TOML file (if present) and
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DBPath = ExpandPath(cfg.DBPath)
	cfg.DownloadsDir = ExpandPath(cfg.DownloadsDir)
	cfg.CookiesFile = ExpandPath(cfg.CookiesFile)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Telegram.Token, "BOT_TOKEN")
	setString(&cfg.Telegram.APIBase, "TELEGRAM_API_BASE")
	setString(&cfg.Credit, "CREDIT")
	setString(&cfg.DownloadsDir, "DOWNLOADS_DIR")
	setString(&cfg.CookiesFile, "COOKIES_FILE")
	setString(&cfg.DBPath, "LINKBATCH_DB")
	setString(&cfg.HTTPAddr, "LINKBATCH_HTTP_ADDR")
	setString(&cfg.KeyExchange.Endpoint, "KEY_EXCHANGE_URL")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")

	if owner := os.Getenv("OWNER_ID"); owner != "" {
		if id, err := strconv.ParseInt(owner, 10, 64); err == nil {
			cfg.Telegram.OwnerID = id
		}
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.KeyExchange.Attempts < 1 {
		return fmt.Errorf("key_exchange.attempts must be >= 1, got %d", c.KeyExchange.Attempts)
	}
	if c.Scrape.BatchAttempts < 1 || c.Scrape.SingleAttempts < 1 {
		return fmt.Errorf("scrape attempts must be >= 1")
	}
	if c.Scrape.Timeout.Duration <= 0 || c.Scrape.DriveTimeout.Duration <= 0 {
		return fmt.Errorf("scrape timeouts must be positive")
	}
	if c.Wizard.UploadTimeout.Duration <= 0 || c.Wizard.DRMTimeout.Duration <= 0 || c.Wizard.FileTimeout.Duration <= 0 {
		return fmt.Errorf("wizard timeouts must be positive")
	}
	for i, r := range c.Rules {
		if r.Name == "" || r.Pattern == "" {
			return fmt.Errorf("rules[%d]: name and pattern are required", i)
		}
	}
	for i, r := range c.Remaps {
		if r.Legacy == "" || r.Current == "" {
			return fmt.Errorf("remaps[%d]: legacy and current are required", i)
		}
	}
	return nil
}
