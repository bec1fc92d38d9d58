package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"vargento/internal/classifier"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	DatasetPath        string   `yaml:"dataset_path"`
	DescriptionColumns []string `yaml:"description_columns"`
	DecisionColumn     string   `yaml:"decision_column"`
	Algorithm          string   `yaml:"algorithm"`
	TestRatio          float64  `yaml:"test_ratio"`
	SplitSeed          int      `yaml:"split_seed"`
	WatchDataset       bool     `yaml:"watch_dataset"`

	ListenAddr      string `yaml:"listen_addr"`
	PublicURL       string `yaml:"public_url"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	LabelsPath      string `yaml:"labels_path"`
	BrandName       string `yaml:"brand_name"`
	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`
	ReportArchive   bool   `yaml:"report_archive"`

	SlackBotToken        string `yaml:"slack_bot_token"`
	SlackChannelID       string `yaml:"slack_channel_id"`
	DigestSchedule       string `yaml:"digest_schedule"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`

	LLMProvider         string `yaml:"llm_provider"`
	LLMModel            string `yaml:"llm_model"`
	LLMRationaleEnabled bool   `yaml:"llm_rationale_enabled"`
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`
	OpenAIAPIKey        string `yaml:"openai_api_key"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	Timezone                   string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads configuration from path (or CONFIG_PATH, or ./config.yaml),
// applies .env and environment overrides, fills defaults and validates.
// A missing config file is not an error.
func Load(path string) (Config, error) {
	var cfg Config

	dotenvPath := ".env"
	if p := os.Getenv("DOTENV_PATH"); p != "" {
		dotenvPath = p
	}
	if _, err := os.Stat(dotenvPath); err == nil {
		if err := godotenv.Load(dotenvPath); err != nil {
			return cfg, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if path != "" {
		configPath = path
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case path != "" || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", configPath, err)
	}

	var errs []error
	envOverride(&cfg.DatasetPath, "DATASET_PATH")
	envOverrideList(&cfg.DescriptionColumns, "DESCRIPTION_COLUMNS")
	envOverride(&cfg.DecisionColumn, "DECISION_COLUMN")
	envOverride(&cfg.Algorithm, "ALGORITHM")
	errs = append(errs, envOverrideFloat(&cfg.TestRatio, "TEST_RATIO"))
	errs = append(errs, envOverrideInt(&cfg.SplitSeed, "SPLIT_SEED"))
	envOverrideBool(&cfg.WatchDataset, "WATCH_DATASET")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.PublicURL, "PUBLIC_URL")
	errs = append(errs, envOverrideInt(&cfg.MaxUploadMB, "MAX_UPLOAD_MB"))
	envOverride(&cfg.LabelsPath, "LABELS_PATH")
	envOverride(&cfg.BrandName, "BRAND_NAME")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideBool(&cfg.ReportArchive, "REPORT_ARCHIVE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	errs = append(errs, envOverrideInt(&cfg.HistoryRetentionDays, "HISTORY_RETENTION_DAYS"))
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideBool(&cfg.LLMRationaleEnabled, "LLM_RATIONALE_ENABLED")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.Timezone, "TIMEZONE")
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}

	if cfg.DatasetPath == "" {
		cfg.DatasetPath = "./data/jugadas.csv"
	}
	if cfg.DecisionColumn == "" {
		cfg.DecisionColumn = "decision"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = string(classifier.NaiveBayes)
	}
	if cfg.TestRatio == 0 {
		cfg.TestRatio = classifier.DefaultTestRatio
	}
	if cfg.SplitSeed == 0 {
		cfg.SplitSeed = classifier.DefaultSeed
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8501"
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 32
	}
	if cfg.BrandName == "" {
		cfg.BrandName = "VARGENTO"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./vargento.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.DigestSchedule == "" {
		cfg.DigestSchedule = "0 9 * * MON"
	}
	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = 90
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	algo, err := classifier.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return fmt.Errorf("invalid algorithm: %w", err)
	}
	c.Algorithm = string(algo)

	if c.TestRatio <= 0 || c.TestRatio > 0.5 {
		return fmt.Errorf("invalid test_ratio '%g': must be in (0, 0.5]", c.TestRatio)
	}
	if c.SplitSeed < 0 {
		return fmt.Errorf("invalid split_seed '%d': must be >= 0", c.SplitSeed)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("invalid max_upload_mb '%d': must be >= 1", c.MaxUploadMB)
	}
	if c.HistoryRetentionDays < 0 {
		return fmt.Errorf("invalid history_retention_days '%d': must be >= 0", c.HistoryRetentionDays)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if _, err := cron.ParseStandard(c.DigestSchedule); err != nil {
		return fmt.Errorf("invalid digest_schedule '%s': %w", c.DigestSchedule, err)
	}

	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	if c.LLMRationaleEnabled && c.LLMAPIKey() == "" {
		return fmt.Errorf("%s_api_key is required when llm_rationale_enabled=true", c.LLMProvider)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if c.LabelsPath != "" {
		if err := validateLabelsPath(c.LabelsPath); err != nil {
			return fmt.Errorf("invalid labels_path '%s': %w", c.LabelsPath, err)
		}
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			*field = append(*field, item)
		}
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

func (c Config) RationaleConfigured() bool {
	return c.LLMRationaleEnabled && c.LLMAPIKey() != ""
}

func (c Config) ClassifierOptions() classifier.Options {
	return classifier.Options{
		Algorithm: classifier.Algorithm(c.Algorithm),
		TestRatio: c.TestRatio,
		Seed:      uint64(c.SplitSeed),
	}
}

func validateLabelsPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read labels: %w", err)
	}
	var l struct {
		Labels []struct{} `yaml:"labels"`
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("parse labels yaml: %w", err)
	}
	return nil
}
