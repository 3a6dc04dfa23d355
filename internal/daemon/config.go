// Package daemon manages the painter configuration and the lifecycle of
// the backend and form servers.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/painter/internal/domain"
	"github.com/tutu-network/painter/internal/infra/catalog"
	"github.com/tutu-network/painter/internal/infra/engine"
)

// Config holds all painter configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Form      FormConfig      `toml:"form"`
	Models    ModelsConfig    `toml:"models"`
	Inference InferenceConfig `toml:"inference"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig controls the backend HTTP API server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// FormConfig controls the browser form server.
type FormConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	BackendHost string `toml:"backend_host"`
}

// ModelsConfig controls weight storage.
type ModelsConfig struct {
	Dir     string   `toml:"dir"`
	BaseURL string   `toml:"base_url"`
	Styles  []string `toml:"styles"` // empty = all known styles
}

// InferenceConfig controls the inference engine.
type InferenceConfig struct {
	Backend     string  `toml:"backend"` // auto, onnx or mock
	Device      string  `toml:"device"`  // cpu or cuda
	Threads     int     `toml:"threads"` // 0 = runtime default
	ScaleFactor float64 `toml:"scale_factor"`
	JPEGQuality int     `toml:"jpeg_quality"`
	RuntimeLib  string  `toml:"runtime_lib"` // path to libonnxruntime
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
	File   string `toml:"file"`   // empty = stderr only
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home := Home()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Form: FormConfig{
			Host:        "0.0.0.0",
			Port:        7860,
			BackendHost: "localhost",
		},
		Models: ModelsConfig{
			Dir:     filepath.Join(home, "models"),
			BaseURL: catalog.DefaultBaseURL,
		},
		Inference: InferenceConfig{
			Backend:     "auto",
			Device:      string(engine.DeviceCPU),
			ScaleFactor: 0.5,
			JPEGQuality: 75,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads $PAINTER_HOME/config.toml over the defaults, then
// applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(Home(), "config.toml"))
}

// LoadConfigFile is LoadConfig for an explicit path. A missing file is not
// an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("MODEL_SERVER_HOST"); v != "" {
		c.Form.BackendHost = v
	}
	if v := getenv("MODEL_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODEL_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	for _, key := range []string{"GRADIO_APP_PORT", "FORM_PORT"} {
		if v := getenv(key); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			c.Form.Port = port
		}
	}
	if v := getenv("SERVER_DEVICE"); v != "" {
		c.Inference.Device = v
	}
	if v := getenv("PAINTER_MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := getenv("ONNXRUNTIME_LIB"); v != "" {
		c.Inference.RuntimeLib = v
	}
	if v := getenv("PAINTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for values the servers cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Form.Port < 0 || c.Form.Port > 65535 {
		errs = append(errs, fmt.Errorf("form.port %d out of range", c.Form.Port))
	}
	if c.Models.Dir == "" {
		errs = append(errs, errors.New("models.dir is empty"))
	}
	for _, s := range c.Models.Styles {
		if _, err := domain.ParseStyle(s); err != nil {
			errs = append(errs, fmt.Errorf("models.styles: %w", err))
		}
	}
	if _, err := engine.ParseDevice(c.Inference.Device); err != nil {
		errs = append(errs, fmt.Errorf("inference.device: %w", err))
	}
	switch strings.ToLower(c.Inference.Backend) {
	case "", "auto", "onnx", "mock":
	default:
		errs = append(errs, fmt.Errorf("inference.backend %q (want auto, onnx or mock)", c.Inference.Backend))
	}
	if c.Inference.ScaleFactor < 0 {
		errs = append(errs, fmt.Errorf("inference.scale_factor %v is negative", c.Inference.ScaleFactor))
	}
	if c.Inference.JPEGQuality < 0 || c.Inference.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("inference.jpeg_quality %d out of range", c.Inference.JPEGQuality))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q (want console or json)", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// ServerAddr is the backend listen address.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// FormAddr is the form listen address.
func (c Config) FormAddr() string {
	return fmt.Sprintf("%s:%d", c.Form.Host, c.Form.Port)
}

// BackendURL is where the form reaches the backend.
func (c Config) BackendURL() string {
	return fmt.Sprintf("http://%s:%d", c.Form.BackendHost, c.Server.Port)
}

// SaveConfig writes the config to $PAINTER_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(Home(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Home returns the painter data directory.
func Home() string {
	if env := os.Getenv("PAINTER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".painter")
}
