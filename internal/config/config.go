package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/clonekit/internal/lookup"
	"github.com/ggonzalez94/clonekit/internal/registry"
	"github.com/ggonzalez94/clonekit/internal/throttle"
)

const envPrefix = "CLONEKIT_"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	AnchorToml     string
	CachePath      string
	RPCURL         string
	LogLevel       string
	MetricsFile    string
	NoLedger       bool
}

type Settings struct {
	OutputMode        string        `json:"output"`
	SelectFields      []string      `json:"select,omitempty"`
	ResultsOnly       bool          `json:"results_only"`
	EnableCommands    []string      `json:"enable_commands,omitempty"`
	Timeout           time.Duration `json:"timeout"`
	Retries           int           `json:"retries"`
	AnchorTomlPath    string        `json:"anchor_toml"`
	ValidatorURL      string        `json:"validator_url"`
	SwapCachePath     string        `json:"swap_cache_path"`
	LedgerEnabled     bool          `json:"ledger_enabled"`
	LedgerPath        string        `json:"ledger_path"`
	LedgerLockPath    string        `json:"ledger_lock_path"`
	LedgerRetention   time.Duration `json:"ledger_retention"`
	RPCURL            string        `json:"rpc_url"`
	JupiterBaseURL    string        `json:"jupiter_base_url,omitempty"`
	JupiterAPIKey     string        `json:"-"`
	VerifyBatchSize   int           `json:"verify_batch_size"`
	VerifyDelay       time.Duration `json:"verify_delay"`
	LookupConcurrency int           `json:"lookup_concurrency"`
	LogLevel          string        `json:"log_level"`
	MetricsFile       string        `json:"metrics_file,omitempty"`
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Anchor  struct {
		Toml         string `yaml:"toml"`
		ValidatorURL string `yaml:"validator_url"`
	} `yaml:"anchor"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Ledger struct {
		Enabled   *bool  `yaml:"enabled"`
		Path      string `yaml:"path"`
		LockPath  string `yaml:"lock_path"`
		Retention string `yaml:"retention"`
	} `yaml:"ledger"`
	RPC struct {
		URL string `yaml:"url"`
	} `yaml:"rpc"`
	Verify struct {
		BatchSize *int   `yaml:"batch_size"`
		Delay     string `yaml:"delay"`
	} `yaml:"verify"`
	Lookup struct {
		Concurrency *int `yaml:"concurrency"`
	} `yaml:"lookup"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Metrics struct {
		File string `yaml:"file"`
	} `yaml:"metrics"`
	Providers struct {
		Jupiter struct {
			BaseURL   string `yaml:"base_url"`
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"jupiter"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.VerifyBatchSize <= 0 {
		settings.VerifyBatchSize = throttle.DefaultSize
	}
	if settings.VerifyDelay < 0 {
		settings.VerifyDelay = throttle.DefaultDelay
	}
	if settings.LookupConcurrency <= 0 {
		settings.LookupConcurrency = lookup.DefaultConcurrency
	}
	if settings.JupiterBaseURL != "" && !registry.IsAllowedEndpoint(settings.JupiterBaseURL) {
		return Settings{}, fmt.Errorf("jupiter base url %q must be https or a loopback url", settings.JupiterBaseURL)
	}
	rpcURL, err := registry.ResolveRPCURL(settings.RPCURL)
	if err != nil {
		return Settings{}, err
	}
	settings.RPCURL = rpcURL

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           10 * time.Second,
		Retries:           2,
		AnchorTomlPath:    "Anchor.toml",
		ValidatorURL:      registry.DefaultValidatorURL,
		SwapCachePath:     filepath.Join(".clonekit", "swap-cache.json"),
		LedgerEnabled:     true,
		LedgerPath:        filepath.Join(dataDir, "runs.db"),
		LedgerLockPath:    filepath.Join(dataDir, "runs.lock"),
		LedgerRetention:   30 * 24 * time.Hour,
		RPCURL:            registry.DefaultCluster,
		VerifyBatchSize:   throttle.DefaultSize,
		VerifyDelay:       throttle.DefaultDelay,
		LookupConcurrency: lookup.DefaultConcurrency,
		LogLevel:          "info",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "clonekit", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "clonekit"), nil
}

// loadEnvFile reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default .env is fine;
// a missing explicit one is not.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Anchor.Toml != "" {
		settings.AnchorTomlPath = cfg.Anchor.Toml
	}
	if cfg.Anchor.ValidatorURL != "" {
		settings.ValidatorURL = cfg.Anchor.ValidatorURL
	}
	if cfg.Cache.Path != "" {
		settings.SwapCachePath = cfg.Cache.Path
	}
	if cfg.Ledger.Enabled != nil {
		settings.LedgerEnabled = *cfg.Ledger.Enabled
	}
	if cfg.Ledger.Path != "" {
		settings.LedgerPath = cfg.Ledger.Path
	}
	if cfg.Ledger.LockPath != "" {
		settings.LedgerLockPath = cfg.Ledger.LockPath
	}
	if cfg.Ledger.Retention != "" {
		d, err := time.ParseDuration(cfg.Ledger.Retention)
		if err != nil {
			return fmt.Errorf("config ledger.retention: %w", err)
		}
		settings.LedgerRetention = d
	}
	if cfg.RPC.URL != "" {
		settings.RPCURL = cfg.RPC.URL
	}
	if cfg.Verify.BatchSize != nil {
		settings.VerifyBatchSize = *cfg.Verify.BatchSize
	}
	if cfg.Verify.Delay != "" {
		d, err := time.ParseDuration(cfg.Verify.Delay)
		if err != nil {
			return fmt.Errorf("config verify.delay: %w", err)
		}
		settings.VerifyDelay = d
	}
	if cfg.Lookup.Concurrency != nil {
		settings.LookupConcurrency = *cfg.Lookup.Concurrency
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Metrics.File != "" {
		settings.MetricsFile = cfg.Metrics.File
	}
	if cfg.Providers.Jupiter.BaseURL != "" {
		settings.JupiterBaseURL = cfg.Providers.Jupiter.BaseURL
	}
	if cfg.Providers.Jupiter.APIKey != "" {
		settings.JupiterAPIKey = cfg.Providers.Jupiter.APIKey
	}
	if cfg.Providers.Jupiter.APIKeyEnv != "" {
		settings.JupiterAPIKey = os.Getenv(cfg.Providers.Jupiter.APIKeyEnv)
	}

	return nil
}

func env(name string) string {
	return os.Getenv(envPrefix + name)
}

func applyEnv(settings *Settings) {
	if v := env("OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := env("TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := env("RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := env("ANCHOR_TOML"); v != "" {
		settings.AnchorTomlPath = v
	}
	if v := env("VALIDATOR_URL"); v != "" {
		settings.ValidatorURL = v
	}
	if v := env("CACHE_PATH"); v != "" {
		settings.SwapCachePath = v
	}
	if v := env("NO_LEDGER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.LedgerEnabled = !b
		}
	}
	if v := env("LEDGER_PATH"); v != "" {
		settings.LedgerPath = v
	}
	if v := env("LEDGER_LOCK_PATH"); v != "" {
		settings.LedgerLockPath = v
	}
	if v := env("RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := env("VERIFY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.VerifyBatchSize = n
		}
	}
	if v := env("VERIFY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.VerifyDelay = d
		}
	}
	if v := env("LOOKUP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.LookupConcurrency = n
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := env("METRICS_FILE"); v != "" {
		settings.MetricsFile = v
	}
	if v := env("JUPITER_BASE_URL"); v != "" {
		settings.JupiterBaseURL = v
	}
	if v := env(registry.JupiterAPIKeyEnv); v != "" {
		settings.JupiterAPIKey = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.AnchorToml != "" {
		settings.AnchorTomlPath = flags.AnchorToml
	}
	if flags.CachePath != "" {
		settings.SwapCachePath = flags.CachePath
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.MetricsFile != "" {
		settings.MetricsFile = flags.MetricsFile
	}
	if flags.NoLedger {
		settings.LedgerEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
