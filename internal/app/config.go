package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fireknight/sim/logging"
)

// FileConfig is the optional YAML runtime configuration. Everything in it
// has a working default; a missing file is not an error for callers that
// treat the path as optional.
type FileConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Serve   ServeConfig   `yaml:"serve"`
}

type LoggingConfig struct {
	Sinks        []string `yaml:"sinks"`
	BufferSize   int      `yaml:"buffer_size"`
	MinSeverity  string   `yaml:"min_severity"`
	JSONFile     string   `yaml:"json_file"`
	ConsoleColor bool     `yaml:"console_color"`
}

type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultFileConfig returns the configuration used when no file is given:
// warnings and errors to the console, replay server on :8080.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Logging: LoggingConfig{
			Sinks:       []string{"console"},
			MinSeverity: "warn",
		},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// LoadFileConfig reads and validates a YAML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if _, err := parseSeverity(cfg.Logging.MinSeverity); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	for _, sink := range cfg.Logging.Sinks {
		switch sink {
		case "console", "json", "memory":
		default:
			return cfg, fmt.Errorf("invalid config %s: unknown sink %q", path, sink)
		}
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = ":8080"
	}
	return cfg, nil
}

func parseSeverity(s string) (logging.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return logging.SeverityInfo, nil
	case "debug":
		return logging.SeverityDebug, nil
	case "warn", "warning":
		return logging.SeverityWarn, nil
	case "error":
		return logging.SeverityError, nil
	}
	return logging.SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// RouterConfig converts the file form to the logging router's config.
func (c FileConfig) RouterConfig() logging.Config {
	out := logging.DefaultConfig()
	if len(c.Logging.Sinks) > 0 {
		out.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	}
	if c.Logging.BufferSize > 0 {
		out.BufferSize = c.Logging.BufferSize
	}
	if sev, err := parseSeverity(c.Logging.MinSeverity); err == nil {
		out.MinimumSeverity = sev
	}
	out.JSON.FilePath = c.Logging.JSONFile
	out.Console.UseColor = c.Logging.ConsoleColor
	return out
}
