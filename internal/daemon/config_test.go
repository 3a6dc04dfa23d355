package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Form.Port != 7860 {
		t.Errorf("Form.Port = %d, want %d", cfg.Form.Port, 7860)
	}
	if cfg.Inference.ScaleFactor != 0.5 {
		t.Errorf("Inference.ScaleFactor = %v, want 0.5", cfg.Inference.ScaleFactor)
	}
	if cfg.Inference.Device != "cpu" {
		t.Errorf("Inference.Device = %q, want cpu", cfg.Inference.Device)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestHome_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PAINTER_HOME", dir)

	if Home() != dir {
		t.Errorf("Home() = %q, want %q", Home(), dir)
	}
	if got := DefaultConfig().Models.Dir; got != filepath.Join(dir, "models") {
		t.Errorf("Models.Dir = %q, want under PAINTER_HOME", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MODEL_SERVER_HOST":  "backend",
		"MODEL_SERVER_PORT":  "9000",
		"FORM_PORT":          "9501",
		"SERVER_DEVICE":      "cuda",
		"PAINTER_MODELS_DIR": "/srv/models",
		"ONNXRUNTIME_LIB":    "/usr/lib/libonnxruntime.so",
		"PAINTER_LOG_LEVEL":  "debug",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.BackendURL() != "http://backend:9000" {
		t.Errorf("BackendURL() = %q, want http://backend:9000", cfg.BackendURL())
	}
	if cfg.Form.Port != 9501 {
		t.Errorf("Form.Port = %d, want 9501", cfg.Form.Port)
	}
	if cfg.Inference.Device != "cuda" {
		t.Errorf("Inference.Device = %q, want cuda", cfg.Inference.Device)
	}
	if cfg.Models.Dir != "/srv/models" {
		t.Errorf("Models.Dir = %q", cfg.Models.Dir)
	}
	if cfg.Inference.RuntimeLib != "/usr/lib/libonnxruntime.so" {
		t.Errorf("Inference.RuntimeLib = %q", cfg.Inference.RuntimeLib)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "MODEL_SERVER_PORT" {
			return "eighty"
		}
		return ""
	})
	if err == nil {
		t.Fatal("ApplyEnv() should reject a non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad style", func(c *Config) { c.Models.Styles = []string{"mosaic", "starry-night"} }, "models.styles"},
		{"bad device", func(c *Config) { c.Inference.Device = "tpu" }, "inference.device"},
		{"bad backend", func(c *Config) { c.Inference.Backend = "torch" }, "inference.backend"},
		{"bad quality", func(c *Config) { c.Inference.JPEGQuality = 101 }, "jpeg_quality"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no models dir", func(c *Config) { c.Models.Dir = "" }, "models.dir"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("PAINTER_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = 8100

[models]
styles = ["mosaic", "candy"]

[inference]
backend = "mock"
jpeg_quality = 90

[telemetry]
prometheus = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Server.Port != 8100 {
		t.Errorf("Server.Port = %d, want 8100", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default kept", cfg.Server.Host)
	}
	if strings.Join(cfg.Models.Styles, ",") != "mosaic,candy" {
		t.Errorf("Models.Styles = %v", cfg.Models.Styles)
	}
	if cfg.Inference.JPEGQuality != 90 || !cfg.Telemetry.Prometheus {
		t.Errorf("inference/telemetry not decoded: %+v %+v", cfg.Inference, cfg.Telemetry)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	t.Setenv("PAINTER_HOME", t.TempDir())

	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[server\nport = "), 0o600)

	if _, err := LoadConfigFile(path); err == nil {
		t.Error("LoadConfigFile() should fail on malformed TOML")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("PAINTER_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Server.Port = 8123
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Server.Port != 8123 {
		t.Errorf("Server.Port = %d, want 8123", got.Server.Port)
	}
}

// ─── Logger ─────────────────────────────────────────────────────────────────

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "painter.log")

	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", File: logFile})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	logger.Info("hello", zap.String("k", "v"))
	logger.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q, want JSON entry", data)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Error("NewLogger() should reject unknown level")
	}
}
