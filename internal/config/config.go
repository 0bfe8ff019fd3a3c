package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/voice-dataset/internal/audio"
)

// EnvPrefix is the namespace prefix for all voice-dataset environment variables.
const EnvPrefix = "VOICE_DATASET_"

const (
	VerifyDeepgram = "deepgram"
	VerifyOpenAI   = "openai"
)

const defaultVerifyThreshold = 0.6

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	OutputRoot            string  `yaml:"output_root"`
	PromptsPath           string  `yaml:"prompts_path"`
	Speaker               string  `yaml:"speaker"`
	DeviceIndex           int     `yaml:"device_index"`
	ShuffleSeed           uint64  `yaml:"shuffle_seed"`
	DBPath                string  `yaml:"db_path"`
	ListenAddr            string  `yaml:"listen_addr"`
	LogLevel              string  `yaml:"log_level"`
	LogFile               string  `yaml:"log_file"`
	VerifyProvider        string  `yaml:"verify_provider"`
	VerifyModel           string  `yaml:"verify_model"`
	VerifyThreshold       float64 `yaml:"verify_threshold"`
	VerifyTimeout         string  `yaml:"verify_timeout"`
	GDriveFolderID        string  `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string  `yaml:"google_credentials_file"`

	// Secrets, env vars only.
	DeepgramAPIKey string `yaml:"-"`
	OpenAIAPIKey   string `yaml:"-"`
}

func defaults() Config {
	return Config{
		DeviceIndex:           audio.DefaultDevice,
		DBPath:                "data/voice-dataset.db",
		ListenAddr:            ":8080",
		LogLevel:              "info",
		VerifyThreshold:       defaultVerifyThreshold,
		VerifyTimeout:         "30s",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedVerifyTimeout returns VerifyTimeout as a time.Duration, falling back
// to 30s if the value is invalid.
func (c *Config) ParsedVerifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.VerifyTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// VerifyAPIKey returns the secret for the configured verification provider.
func (c *Config) VerifyAPIKey() string {
	switch c.VerifyProvider {
	case VerifyDeepgram:
		return c.DeepgramAPIKey
	case VerifyOpenAI:
		return c.OpenAIAPIKey
	}
	return ""
}

// VerificationEnabled reports whether takes should be checked after saving.
func (c *Config) VerificationEnabled() bool {
	return c.VerifyAPIKey() != ""
}

func (c *Config) MirrorEnabled() bool {
	return c.GDriveFolderID != "" && c.GoogleCredentialsFile != ""
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"OUTPUT_ROOT":             &cfg.OutputRoot,
		"PROMPTS_PATH":            &cfg.PromptsPath,
		"SPEAKER":                 &cfg.Speaker,
		"DB_PATH":                 &cfg.DBPath,
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"LOG_LEVEL":               &cfg.LogLevel,
		"LOG_FILE":                &cfg.LogFile,
		"VERIFY_PROVIDER":         &cfg.VerifyProvider,
		"VERIFY_MODEL":            &cfg.VerifyModel,
		"VERIFY_TIMEOUT":          &cfg.VerifyTimeout,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "DEVICE_INDEX"); v != "" {
		if idx, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DeviceIndex = idx
		}
	}
	if v := os.Getenv(EnvPrefix + "SHUFFLE_SEED"); v != "" {
		if seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.ShuffleSeed = seed
		}
	}
	if v := os.Getenv(EnvPrefix + "VERIFY_THRESHOLD"); v != "" {
		if th, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.VerifyThreshold = th
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	cfg.VerifyProvider = strings.ToLower(strings.TrimSpace(cfg.VerifyProvider))
	switch cfg.VerifyProvider {
	case "":
	case VerifyDeepgram, VerifyOpenAI:
		if cfg.VerifyAPIKey() == "" {
			warnings = append(warnings, fmt.Sprintf("%s API key not configured, take verification is disabled. Set %s%s_API_KEY.",
				cfg.VerifyProvider, EnvPrefix, strings.ToUpper(cfg.VerifyProvider)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown verify_provider %q, take verification is disabled.", cfg.VerifyProvider))
		cfg.VerifyProvider = ""
	}

	if cfg.VerifyThreshold < 0 || cfg.VerifyThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("Invalid verify_threshold %v, using default %v.", cfg.VerifyThreshold, defaultVerifyThreshold))
		cfg.VerifyThreshold = defaultVerifyThreshold
	}
	if _, err := time.ParseDuration(cfg.VerifyTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid verify_timeout %q, using default 30s.", cfg.VerifyTimeout))
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("Invalid log_level %q, using info.", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.GDriveFolderID != "" {
		if _, err := os.Stat(cfg.GoogleCredentialsFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("Google credentials file %q not readable, Drive mirror is disabled.", cfg.GoogleCredentialsFile))
			cfg.GDriveFolderID = ""
		}
	}

	return warnings
}
