package framework

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL        = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel         = "deepseek-reasoner"
	DefaultMaxIterations = 10
)

// Config is the process configuration, usually read from reactchat.yaml and
// then overridden from the environment.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Server  ServerConfig  `yaml:"server"`
	Tools   ToolsConfig   `yaml:"tools"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig points at the streaming chat completions endpoint.
type LLMConfig struct {
	APIKey         string        `yaml:"api_key"`
	APIURL         string        `yaml:"api_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CORSOrigins    []string `yaml:"cors_origins"`
	TranscriptFile string   `yaml:"transcript_file"`
}

// Addr joins host and port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	WorkingDirectory  string        `yaml:"working_directory"`
	PythonBinary      string        `yaml:"python_binary"`
	NodeBinary        string        `yaml:"node_binary"`
	PythonTimeout     time.Duration `yaml:"python_timeout"`
	JavaScriptTimeout time.Duration `yaml:"javascript_timeout"`
}

// AgentConfig bounds the reason/act loop.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	MaxTokens     int `yaml:"max_tokens"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			APIURL:         DefaultAPIURL,
			Model:          DefaultModel,
			RequestTimeout: 120 * time.Second,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Tools: ToolsConfig{
			WorkingDirectory:  ".",
			PythonBinary:      "python3",
			NodeBinary:        "node",
			PythonTimeout:     30 * time.Second,
			JavaScriptTimeout: 5 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations: DefaultMaxIterations,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads the config or returns defaults when the file is missing.
// Fields absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config to disk.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DEEPSEEK_API_KEY", &c.LLM.APIKey)
	str("DEEPSEEK_API_URL", &c.LLM.APIURL)
	str("DEEPSEEK_MODEL", &c.LLM.Model)
	str("TOOL_WORKING_DIRECTORY", &c.Tools.WorkingDirectory)
	str("HOST", &c.Server.Host)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("MAX_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_ITERATIONS: %w", err)
		}
		c.Agent.MaxIterations = n
	}
	if v, ok := lookup("BACKEND_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.CORSOrigins = parseOrigins(v)
	}
	return nil
}

// parseOrigins accepts either a JSON list or a comma separated list.
func parseOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings required to serve chat requests.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key (DEEPSEEK_API_KEY) is required")
	}
	if c.LLM.APIURL == "" {
		return errors.New("llm.api_url is required")
	}
	if c.Tools.PythonTimeout <= 0 || c.Tools.JavaScriptTimeout <= 0 {
		return errors.New("tool timeouts must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}
