package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk shape of chatd's configuration file. Fields are
// grouped the way the server consumes them: top-level daemon settings,
// then the LLM provider block.
type Config struct {
	DataDir            string `json:"data_dir"`
	ListenAddr         string `json:"listen_addr"`
	LogLevel           string `json:"log_level"`
	IdleTimeoutMinutes int    `json:"idle_timeout_minutes"`
	MaxSteps           int    `json:"max_steps"`
	LLM                struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
}

func defaultConfig() *Config {
	cfg := &Config{
		DataDir:            filepath.Join(os.Getenv("HOME"), ".chatd"),
		ListenAddr:         ":8080",
		LogLevel:           "info",
		IdleTimeoutMinutes: 30,
		MaxSteps:           10,
	}
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4"
	cfg.LLM.MaxTokens = 4096
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	return cfg
}

// Load reads the config file at path, writing defaults to it first if it
// doesn't exist yet. Environment variables take precedence over whatever
// was on disk.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if dataDir := os.Getenv("CHATD_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen := os.Getenv("CHATD_LISTEN"); listen != "" {
		cfg.ListenAddr = listen
	}

	return cfg, nil
}

// Save atomically writes cfg to path, creating the parent directory if
// needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return atomicWriteJSON(path, data)
}

func atomicWriteJSON(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap round-trips cfg through JSON into a generic map, so callers get
// the same nesting the file on disk has.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues flattens cfg to dotted keys, optionally masking secret
// values for display.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// rawFile reads path as a generic JSON map, creating it with defaults via
// Load first if it doesn't exist yet. Unlike Load, it preserves any keys
// that aren't fields on Config (e.g. ones added by SetValue).
func rawFile(path string) (map[string]any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue reads a single dotted key from the config at path, creating
// the file with defaults first if it's missing.
func GetValue(path, key string) (any, error) {
	raw, err := rawFile(path)
	if err != nil {
		return nil, err
	}
	flat := Flatten(raw)
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue writes a single dotted key into the config file at path,
// requiring the file to already exist. value is parsed as JSON when
// possible (so "16", "true", "0.3" become numbers/booleans) and kept as
// a raw string otherwise. Keys not already present in the file are
// created, which lets callers stash arbitrary settings alongside the
// known Config fields.
func SetValue(path, key, value string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	flat := Flatten(raw)
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	nested := Unflatten(flat)
	out, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return atomicWriteJSON(path, out)
}
