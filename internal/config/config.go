package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigFailed covers any problem reading or parsing config.yaml.
var ErrConfigFailed = errors.New("config: failed to load")

// Defaults applied when the corresponding key is absent.
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultSimulationStep = time.Second
)

// Fallback starting position for the pickup leg when none is configured
// (central Luanda, matching the station network).
const (
	DefaultStartLatitude  = -8.836668
	DefaultStartLongitude = 13.234455
)

// Config holds the user settings of the application plus derived paths.
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	DataFile       string        `yaml:"data_file"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SimulationStep time.Duration `yaml:"simulation_step"`
	StartLatitude  float64       `yaml:"start_latitude"`
	StartLongitude float64       `yaml:"start_longitude"`

	AppDir string `yaml:"-"`
}

// Error carries extra context for a failed configuration load.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ErrConfigFailed.Error()
	}
	return fmt.Sprintf("%v: %s: %v", ErrConfigFailed, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is marks every load failure as ErrConfigFailed for errors.Is callers.
func (e *Error) Is(target error) bool {
	return target == ErrConfigFailed
}

// DetectAppDir returns the directory holding the executable.
func DetectAppDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("detect executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exePath)
	if err == nil {
		exePath = resolved
	}
	return filepath.Dir(exePath), nil
}

// DefaultPath returns the config.yaml path relative to the app directory.
func DefaultPath(appDir string) string {
	return filepath.Join(appDir, "config.yaml")
}

// Load reads and validates the YAML configuration, resolving relative paths
// against appDir.
func Load(path string, appDir string) (*Config, error) {
	if path == "" {
		return nil, &Error{Path: path, Err: errors.New("config path is empty")}
	}
	if appDir == "" {
		return nil, &Error{Path: path, Err: errors.New("app directory is empty")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.AppDir = appDir
	cfg.LogLevel = normalizeLogLevel(cfg.LogLevel)
	cfg.applyDefaults()
	cfg.applyAppDir()
	if err := cfg.validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if err := cfg.ensureDirectories(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.SimulationStep <= 0 {
		c.SimulationStep = DefaultSimulationStep
	}
	if c.StartLatitude == 0 && c.StartLongitude == 0 {
		c.StartLatitude = DefaultStartLatitude
		c.StartLongitude = DefaultStartLongitude
	}
	if c.DataFile == "" {
		c.DataFile = "ciclogo.db"
	}
}

func (c *Config) applyAppDir() {
	if c.AppDir == "" {
		return
	}
	c.AppDir = filepath.Clean(c.AppDir)
	c.LogFile = makeAbsolute(c.LogFile, c.AppDir)
	c.DataFile = makeAbsolute(c.DataFile, c.AppDir)
}

func (c *Config) validate() error {
	switch {
	case c.APIBaseURL == "":
		return errors.New("api_base_url is required")
	case c.LogFile == "":
		return errors.New("log_file is required")
	case c.AppDir == "":
		return errors.New("app directory is unknown")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, ok := allowedLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) ensureDirectories() error {
	paths := []string{filepath.Dir(c.LogFile), filepath.Dir(c.DataFile)}
	for _, dir := range paths {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func makeAbsolute(path string, base string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func normalizeLogLevel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "info"
	}
	return value
}

var allowedLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}
