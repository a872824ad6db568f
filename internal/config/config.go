package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultRefreshMinutes  = 30
	defaultFetchConcurrent = 5
	defaultHTTPTimeoutSec  = 15
	defaultMaxResponse     = 10 << 20
	defaultDisplayCount    = 20
)

const (
	defaultUserAgent  = "feedtray/1.0"
	configFolderName  = "feedtray"
	configFileName    = "config.toml"
	configPathEnvName = "XDG_CONFIG_HOME"
)

type Config struct {
	DBPath              string
	RefreshInterval     time.Duration
	FetchConcurrency    int
	HTTPTimeout         time.Duration
	MaxResponseBytes    int64
	DisplayCount        int
	EnableNotifications bool
	UnreadFirst         bool
	UserAgent           string
}

// RefreshIntervalMinutes is the global interval fed to backoff calculations.
func (c Config) RefreshIntervalMinutes() int {
	return int(c.RefreshInterval / time.Minute)
}

func LoadConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	defaultDB := filepath.Join(home, ".local", "share", "feedtray", "feedtray.db")

	cfg := Config{
		DBPath:           defaultDB,
		RefreshInterval:  defaultRefreshMinutes * time.Minute,
		FetchConcurrency: defaultFetchConcurrent,
		HTTPTimeout:      defaultHTTPTimeoutSec * time.Second,
		MaxResponseBytes: defaultMaxResponse,
		DisplayCount:     defaultDisplayCount,
		UserAgent:        defaultUserAgent,
	}

	configPath, hasConfig, err := findConfigPath(home)
	if err != nil {
		return Config{}, err
	}
	if hasConfig {
		fileCfg, err := loadFileConfig(configPath)
		if err != nil {
			return Config{}, err
		}
		applyFileConfig(&cfg, fileCfg)
	}

	applyEnvOverrides(&cfg)

	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = defaultFetchConcurrent
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshMinutes * time.Minute
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeoutSec * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponse
	}
	if cfg.DisplayCount <= 0 {
		cfg.DisplayCount = defaultDisplayCount
	}
	return cfg, nil
}

type fileConfig struct {
	DBPath                 *string `toml:"db_path"`
	RefreshIntervalMinutes *int    `toml:"refresh_interval_minutes"`
	FetchConcurrency       *int    `toml:"fetch_concurrency"`
	HTTPTimeoutSeconds     *int    `toml:"http_timeout_seconds"`
	MaxResponseBytes       *int64  `toml:"max_response_bytes"`
	DisplayCount           *int    `toml:"display_count"`
	EnableNotifications    *bool   `toml:"enable_notifications"`
	UnreadFirst            *bool   `toml:"unread_first"`
}

func findConfigPath(home string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if xdgConfigHome := strings.TrimSpace(os.Getenv(configPathEnvName)); xdgConfigHome != "" {
		candidates = append(candidates, filepath.Join(xdgConfigHome, configFolderName, configFileName))
	}
	candidates = append(candidates, filepath.Join(home, ".config", configFolderName, configFileName))

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %q is a directory; expected a file", candidate)
			}
			return candidate, true, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return "", false, fmt.Errorf("failed to read config path %q: %w", candidate, err)
	}
	return "", false, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		unknown := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			unknown = append(unknown, key.String())
		}
		sort.Strings(unknown)
		return fileConfig{}, fmt.Errorf("invalid config file %q: unknown key(s): %s", path, strings.Join(unknown, ", "))
	}
	if err := validateFileConfig(path, cfg); err != nil {
		return fileConfig{}, err
	}
	return cfg, nil
}

func validateFileConfig(path string, cfg fileConfig) error {
	if cfg.DBPath != nil && strings.TrimSpace(*cfg.DBPath) == "" {
		return fmt.Errorf("invalid config file %q: db_path must be non-empty when provided", path)
	}
	if cfg.RefreshIntervalMinutes != nil && *cfg.RefreshIntervalMinutes <= 0 {
		return fmt.Errorf("invalid config file %q: refresh_interval_minutes must be > 0", path)
	}
	if cfg.FetchConcurrency != nil && *cfg.FetchConcurrency < 1 {
		return fmt.Errorf("invalid config file %q: fetch_concurrency must be >= 1", path)
	}
	if cfg.HTTPTimeoutSeconds != nil && *cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid config file %q: http_timeout_seconds must be > 0", path)
	}
	if cfg.MaxResponseBytes != nil && *cfg.MaxResponseBytes <= 0 {
		return fmt.Errorf("invalid config file %q: max_response_bytes must be > 0", path)
	}
	if cfg.DisplayCount != nil && *cfg.DisplayCount <= 0 {
		return fmt.Errorf("invalid config file %q: display_count must be > 0", path)
	}
	return nil
}

func applyFileConfig(cfg *Config, fileCfg fileConfig) {
	if fileCfg.DBPath != nil {
		cfg.DBPath = *fileCfg.DBPath
	}
	if fileCfg.RefreshIntervalMinutes != nil {
		cfg.RefreshInterval = time.Duration(*fileCfg.RefreshIntervalMinutes) * time.Minute
	}
	if fileCfg.FetchConcurrency != nil {
		cfg.FetchConcurrency = *fileCfg.FetchConcurrency
	}
	if fileCfg.HTTPTimeoutSeconds != nil {
		cfg.HTTPTimeout = time.Duration(*fileCfg.HTTPTimeoutSeconds) * time.Second
	}
	if fileCfg.MaxResponseBytes != nil {
		cfg.MaxResponseBytes = *fileCfg.MaxResponseBytes
	}
	if fileCfg.DisplayCount != nil {
		cfg.DisplayCount = *fileCfg.DisplayCount
	}
	if fileCfg.EnableNotifications != nil {
		cfg.EnableNotifications = *fileCfg.EnableNotifications
	}
	if fileCfg.UnreadFirst != nil {
		cfg.UnreadFirst = *fileCfg.UnreadFirst
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("FEEDTRAY_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("FEEDTRAY_REFRESH_MINUTES"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RefreshInterval = time.Duration(n) * time.Minute
		}
	}
	if v, ok := os.LookupEnv("FEEDTRAY_FETCH_CONCURRENCY"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.FetchConcurrency = n
		}
	}
	if v, ok := os.LookupEnv("FEEDTRAY_HTTP_TIMEOUT_SECONDS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("FEEDTRAY_MAX_RESPONSE_BYTES"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxResponseBytes = n
		}
	}
	if v, ok := os.LookupEnv("FEEDTRAY_NOTIFICATIONS"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableNotifications = b
		}
	}
	if v, ok := os.LookupEnv("FEEDTRAY_USER_AGENT"); ok && v != "" {
		cfg.UserAgent = v
	}
}
