package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"schedcore/internal/conflict"
	"schedcore/internal/model"
	"schedcore/internal/nlp"
	"schedcore/internal/syncer"
)

// CalendarConfig is one calendar whose events count as "existing" when
// analyzing new requests. Ref is an http(s) feed URL or a local .ics path.
type CalendarConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Ref  string `yaml:"ref" json:"ref"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// File, when set, sends logs to a size-rotated file instead of stderr.
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// InputConfig bounds the length of analyzed text, in characters.
type InputConfig struct {
	MinLength int `yaml:"min_length" json:"min_length"`
	MaxLength int `yaml:"max_length" json:"max_length"`
}

type ConflictConfig struct {
	TravelBufferMinutes int `yaml:"travel_buffer_minutes" json:"travel_buffer_minutes"`
	BreakBufferMinutes  int `yaml:"break_buffer_minutes" json:"break_buffer_minutes"`
	EnergyWindowMinutes int `yaml:"energy_window_minutes" json:"energy_window_minutes"`
}

// ParserConfig selects the text parsing strategy.
//
//   - strategy "heuristic" parses locally and never calls out.
//   - strategy "model" asks an OpenAI-compatible endpoint and, depending on
//     fallback, drops back to the heuristic parser.
type ParserConfig struct {
	Strategy       string  `yaml:"strategy" json:"strategy"`
	Fallback       string  `yaml:"fallback" json:"fallback"`
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	APIKey         string  `yaml:"api_key,omitempty" json:"-"`
	APIKeyEnv      string  `yaml:"api_key_env" json:"api_key_env"`
	Model          string  `yaml:"model" json:"model"`
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SyncConfig drives `schedcore sync`. Local and Remote are .ics paths.
type SyncConfig struct {
	Schedule string `yaml:"schedule" json:"schedule"`
	Strategy string `yaml:"strategy" json:"strategy"`
	Local    string `yaml:"local" json:"local"`
	Remote   string `yaml:"remote" json:"remote"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Timezone is the IANA zone used to read and print wall-clock times.
	Timezone string `yaml:"timezone" json:"timezone"`

	Log       LogConfig      `yaml:"log" json:"log"`
	Input     InputConfig    `yaml:"input" json:"input"`
	Conflicts ConflictConfig `yaml:"conflicts" json:"conflicts"`
	Parser    ParserConfig   `yaml:"parser" json:"parser"`
	Sync      SyncConfig     `yaml:"sync" json:"sync"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	// HorizonDays is how far ahead calendar series are expanded.
	HorizonDays int    `yaml:"horizon_days" json:"horizon_days"`
	CacheDir    string `yaml:"cache_dir" json:"cache_dir"`

	// CacheSize is the number of analyses the API memoizes.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	UserPattern *model.UserPattern `yaml:"user_pattern,omitempty" json:"user_pattern,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Input: InputConfig{
			MinLength: nlp.DefaultMinLength,
			MaxLength: nlp.DefaultMaxLength,
		},
		Conflicts: ConflictConfig{
			TravelBufferMinutes: int(conflict.DefaultTravelTimeBuffer / time.Minute),
			BreakBufferMinutes:  int(conflict.DefaultBreakTimeBuffer / time.Minute),
			EnergyWindowMinutes: int(conflict.DefaultEnergyWindow / time.Minute),
		},
		Parser: ParserConfig{
			Strategy:       "heuristic",
			Fallback:       string(nlp.FallbackOnError),
			BaseURL:        "https://api.openai.com/v1",
			APIKeyEnv:      "OPENAI_API_KEY",
			Model:          "gpt-4o-mini",
			Temperature:    0.1,
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			Schedule: "*/15 * * * *",
			Strategy: string(syncer.Merge),
		},
		Calendars:   []CalendarConfig{},
		HorizonDays: 14,
		CacheDir:    "./var/ics-cache",
		CacheSize:   256,
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Input.MinLength <= 0 {
		c.Input.MinLength = d.Input.MinLength
	}
	if c.Input.MaxLength <= 0 {
		c.Input.MaxLength = d.Input.MaxLength
	}
	if c.Conflicts.TravelBufferMinutes <= 0 {
		c.Conflicts.TravelBufferMinutes = d.Conflicts.TravelBufferMinutes
	}
	if c.Conflicts.BreakBufferMinutes <= 0 {
		c.Conflicts.BreakBufferMinutes = d.Conflicts.BreakBufferMinutes
	}
	if c.Conflicts.EnergyWindowMinutes <= 0 {
		c.Conflicts.EnergyWindowMinutes = d.Conflicts.EnergyWindowMinutes
	}
	if c.Parser.Strategy == "" {
		c.Parser.Strategy = d.Parser.Strategy
	}
	if c.Parser.Fallback == "" {
		c.Parser.Fallback = d.Parser.Fallback
	}
	if c.Parser.BaseURL == "" {
		c.Parser.BaseURL = d.Parser.BaseURL
	}
	if c.Parser.APIKeyEnv == "" {
		c.Parser.APIKeyEnv = d.Parser.APIKeyEnv
	}
	if c.Parser.Model == "" {
		c.Parser.Model = d.Parser.Model
	}
	if c.Parser.TimeoutSeconds <= 0 {
		c.Parser.TimeoutSeconds = d.Parser.TimeoutSeconds
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = d.Sync.Schedule
	}
	if c.Sync.Strategy == "" {
		c.Sync.Strategy = d.Sync.Strategy
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		if c.Calendars[i].ID == "" {
			c.Calendars[i].ID = c.Calendars[i].Name
		}
		if c.Calendars[i].ID == "" {
			c.Calendars[i].ID = c.Calendars[i].Ref
		}
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.Input.MinLength > c.Input.MaxLength {
		errs = append(errs, fmt.Errorf("input: min_length %d exceeds max_length %d", c.Input.MinLength, c.Input.MaxLength))
	}
	switch c.Parser.Strategy {
	case "heuristic", "model":
	default:
		errs = append(errs, fmt.Errorf("parser.strategy: unknown value %q", c.Parser.Strategy))
	}
	if _, err := nlp.ParseFallbackPolicy(c.Parser.Fallback); err != nil {
		errs = append(errs, fmt.Errorf("parser.fallback: %w", err))
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("sync.schedule: %w", err))
	}
	if _, err := syncer.ParseStrategy(c.Sync.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("sync.strategy: %w", err))
	}
	if p := c.UserPattern; p != nil {
		for _, t := range p.PreferredTimes {
			if _, err := model.ParseClock(t); err != nil {
				errs = append(errs, fmt.Errorf("user_pattern.preferred_times: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured zone, or UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ConflictOptions() conflict.Options {
	return conflict.Options{
		TravelTimeBuffer: time.Duration(c.Conflicts.TravelBufferMinutes) * time.Minute,
		BreakTimeBuffer:  time.Duration(c.Conflicts.BreakBufferMinutes) * time.Minute,
		EnergyWindow:     time.Duration(c.Conflicts.EnergyWindowMinutes) * time.Minute,
	}
}

// WorkingHours returns the user's working hours, or the default window.
func (c *Config) WorkingHours() model.WorkingHours {
	if c.UserPattern != nil && c.UserPattern.WorkingHours.Start != "" && c.UserPattern.WorkingHours.End != "" {
		return c.UserPattern.WorkingHours
	}
	return model.DefaultWorkingHours
}

// ResolveAPIKey prefers the key in the file and falls back to APIKeyEnv.
func (p ParserConfig) ResolveAPIKey() string {
	if k := strings.TrimSpace(p.APIKey); k != "" {
		return k
	}
	if p.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
}

func (p ParserConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is decoded, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedcore-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
