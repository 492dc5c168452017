package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env          string             `yaml:"env" env:"VOICELOG_ENV" env-default:"local"`
	StoragePath  string             `yaml:"storage_path" env:"VOICELOG_STORAGE_PATH" env-default:"./data/voicelog.db"`
	Log          LogConfig          `yaml:"log"`
	User         UserConfig         `yaml:"user"`
	Device       DeviceConfig       `yaml:"device"`
	Backend      BackendConfig      `yaml:"backend"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Capture      CaptureConfig      `yaml:"capture"`
	Calendar     CalendarConfig     `yaml:"calendar"`
	Server       ServerConfig       `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"VOICELOG_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"VOICELOG_LOG_FORMAT" env-default:"auto"`
}

type UserConfig struct {
	ID string `yaml:"id" env:"VOICELOG_USER_ID"`
}

type DeviceConfig struct {
	ID string `yaml:"id" env:"VOICELOG_DEVICE_ID"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"VOICELOG_BACKEND_URL"`
	APIKey  string        `yaml:"api_key" env:"VOICELOG_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"VOICELOG_BACKEND_TIMEOUT" env-default:"15s"`
}

type SyncConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"VOICELOG_SYNC_SWEEP_INTERVAL" env-default:"30s"`
	BaseBackoff   time.Duration `yaml:"base_backoff" env:"VOICELOG_SYNC_BASE_BACKOFF" env-default:"2s"`
	MaxBackoff    time.Duration `yaml:"max_backoff" env:"VOICELOG_SYNC_MAX_BACKOFF" env-default:"5m"`
	StuckTimeout  time.Duration `yaml:"stuck_timeout" env:"VOICELOG_SYNC_STUCK_TIMEOUT" env-default:"2m"`
	Concurrency   int           `yaml:"concurrency" env:"VOICELOG_SYNC_CONCURRENCY" env-default:"4"`
	BatchSize     int           `yaml:"batch_size" env:"VOICELOG_SYNC_BATCH_SIZE" env-default:"100"`
}

type ConnectivityConfig struct {
	Debounce      time.Duration `yaml:"debounce" env:"VOICELOG_CONNECTIVITY_DEBOUNCE" env-default:"1500ms"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"VOICELOG_CONNECTIVITY_PROBE_INTERVAL" env-default:"30s"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"VOICELOG_CONNECTIVITY_PROBE_TIMEOUT" env-default:"5s"`
}

type CaptureConfig struct {
	DefaultDurationMinutes int `yaml:"default_duration_minutes" env:"VOICELOG_CAPTURE_DEFAULT_DURATION" env-default:"15"`
}

type CalendarConfig struct {
	// Location is an IANA zone name; empty means the system local zone.
	Location string   `yaml:"location" env:"VOICELOG_CALENDAR_LOCATION"`
	Weekend  []string `yaml:"weekend" env:"VOICELOG_CALENDAR_WEEKEND" env-separator:"," env-default:"saturday,sunday"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"VOICELOG_SERVER_ENABLED"`
	Host    string `yaml:"host" env:"VOICELOG_SERVER_HOST" env-default:"localhost"`
	Port    int    `yaml:"port" env:"VOICELOG_SERVER_PORT" env-default:"8765"`
}

// LoadConfig reads the YAML file at path, then applies environment overrides.
// A .env file in the working directory is loaded first when present. A
// missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.User.ID) == "" {
		errs = append(errs, errors.New("user.id is required"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("storage_path is required"))
	}
	if c.Capture.DefaultDurationMinutes <= 0 {
		errs = append(errs, errors.New("capture.default_duration_minutes must be positive"))
	}
	if c.Sync.Concurrency <= 0 {
		errs = append(errs, errors.New("sync.concurrency must be positive"))
	}
	if c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		errs = append(errs, errors.New("sync.max_backoff must not be less than sync.base_backoff"))
	}
	if c.Connectivity.Debounce < 0 {
		errs = append(errs, errors.New("connectivity.debounce must not be negative"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := c.CalendarLocation(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.WeekendDays(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CalendarLocation resolves calendar.location.
func (c *Config) CalendarLocation() (*time.Location, error) {
	if c.Calendar.Location == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Calendar.Location)
	if err != nil {
		return nil, fmt.Errorf("calendar.location: %w", err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeekendDays resolves calendar.weekend to weekdays.
func (c *Config) WeekendDays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(c.Calendar.Weekend))
	for _, name := range c.Calendar.Weekend {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("calendar.weekend: unknown day %q", name)
		}
		days = append(days, d)
	}
	return days, nil
}

// LockPath is the single-instance lock file next to the database.
func (c *Config) LockPath() string {
	return c.StoragePath + ".lock"
}

// DataDir is the directory holding the database.
func (c *Config) DataDir() string {
	return filepath.Dir(c.StoragePath)
}

// ServerAddr is the listen address of the local API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
