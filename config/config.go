// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "voiceagent"
	configFileName = "config.json"
)

// Defaults applied when the config file is absent or fields are zero.
const (
	DefaultModel             = "gpt-4o-realtime-preview"
	DefaultVoice             = "alloy"
	DefaultInputAudioFormat  = "pcm16"
	DefaultOutputAudioFormat = "pcm16"
	DefaultTemperature       = 0.8
	DefaultLogCapacity       = 100
)

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// ClientSecret is a cached ephemeral credential.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// Config represents the application configuration.
type Config struct {
	Model             string        `json:"model"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions,omitempty"`
	Temperature       float64       `json:"temperature"`
	Modalities        []string      `json:"modalities"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	TurnDetection     TurnDetection `json:"turn_detection"`
	LogCapacity       int           `json:"log_capacity"`

	// CachedSecret is the last minted ephemeral credential, reused until
	// it nears expiry.
	CachedSecret *ClientSecret `json:"cached_secret,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Model:             DefaultModel,
		Voice:             DefaultVoice,
		Temperature:       DefaultTemperature,
		Modalities:        []string{"text", "audio"},
		InputAudioFormat:  DefaultInputAudioFormat,
		OutputAudioFormat: DefaultOutputAudioFormat,
		TurnDetection: TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
		LogCapacity: DefaultLogCapacity,
	}
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveTo(path)
}

// SaveTo persists the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SessionPayload builds the session.update payload from the configuration.
// The payload is passed through to the API opaquely.
func (c *Config) SessionPayload() map[string]any {
	session := map[string]any{
		"voice":               c.Voice,
		"modalities":          c.Modalities,
		"input_audio_format":  c.InputAudioFormat,
		"output_audio_format": c.OutputAudioFormat,
		"temperature":         c.Temperature,
		"turn_detection": map[string]any{
			"type":                c.TurnDetection.Type,
			"threshold":           c.TurnDetection.Threshold,
			"prefix_padding_ms":   c.TurnDetection.PrefixPaddingMs,
			"silence_duration_ms": c.TurnDetection.SilenceDurationMs,
		},
	}
	if c.Instructions != "" {
		session["instructions"] = c.Instructions
	}
	return session
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if len(c.Modalities) == 0 {
		c.Modalities = []string{"text", "audio"}
	}
	if c.InputAudioFormat == "" {
		c.InputAudioFormat = DefaultInputAudioFormat
	}
	if c.OutputAudioFormat == "" {
		c.OutputAudioFormat = DefaultOutputAudioFormat
	}
	if c.TurnDetection.Type == "" {
		c.TurnDetection = Default().TurnDetection
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = DefaultLogCapacity
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}
