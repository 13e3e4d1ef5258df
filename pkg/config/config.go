// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the versioned agent configuration file. Secrets
// never live in the file; they come from environment variables, and env
// values override file values.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/vigil/pkg/llm"
	"github.com/teradata-labs/vigil/pkg/state"
)

// SchemaVersion is the config schema this build writes and fully
// understands. Files with a newer version load with a warning.
const SchemaVersion = 1

// Config is the full agent configuration.
type Config struct {
	SchemaVersion int `yaml:"schemaVersion"`

	Identity     state.Identity `yaml:"identity"`
	InitialState InitialState   `yaml:"initialState"`
	Tick         TickConfig     `yaml:"tick"`
	Contact      ContactConfig  `yaml:"contact"`
	LLM          LLMConfig      `yaml:"llm"`
	Channel      ChannelConfig  `yaml:"channel"`
	Plugins      PluginConfig   `yaml:"plugins"`

	// Timezone is the agent's home zone for recurrence math,
	// IANA name. Empty means UTC.
	Timezone string `yaml:"timezone"`

	LogLevel string `yaml:"logLevel"`
	DataPath string `yaml:"dataPath"`
}

// InitialState seeds the mutable state fields at boot.
type InitialState struct {
	Energy       float64 `yaml:"energy"`
	SocialDebt   float64 `yaml:"socialDebt"`
	TaskPressure float64 `yaml:"taskPressure"`
	Curiosity    float64 `yaml:"curiosity"`
}

// TickConfig bounds the heartbeat.
type TickConfig struct {
	BaseSeconds int `yaml:"baseSeconds"`
	MinSeconds  int `yaml:"minSeconds"`
	MaxSeconds  int `yaml:"maxSeconds"`
}

// ContactConfig tunes the proactive-contact decider.
type ContactConfig struct {
	BaseThreshold float64 `yaml:"baseThreshold"`
}

// LLMConfig names the models behind the two reasoning tiers.
type LLMConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	FastModel   string  `yaml:"fastModel"`
	SmartModel  string  `yaml:"smartModel"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
	// APIKey is env-only (OPENROUTER_API_KEY); never read from the file.
	APIKey string `yaml:"-"`

	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	TokensPerMinute   int     `yaml:"tokensPerMinute"`
}

// ChannelConfig addresses the primary user.
type ChannelConfig struct {
	Default       string `yaml:"default"`
	PrimaryTarget string `yaml:"primaryTarget"`
	// BotToken is env-only (TELEGRAM_BOT_TOKEN); never read from the file.
	BotToken string `yaml:"-"`
}

// PluginConfig enables and configures plugins by id.
type PluginConfig struct {
	Enabled  []string                     `yaml:"enabled"`
	Disabled []string                     `yaml:"disabled"`
	Configs  map[string]map[string]string `yaml:"configs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Identity:      state.Identity{Name: "vigil"},
		InitialState:  InitialState{Energy: 0.8, Curiosity: 0.3},
		Tick:          TickConfig{BaseSeconds: 10, MinSeconds: 1, MaxSeconds: 60},
		Contact:       ContactConfig{BaseThreshold: 0.6},
		LLM: LLMConfig{
			MaxTokens:         2048,
			Temperature:       0.7,
			RequestsPerSecond: 2.0,
			TokensPerMinute:   40000,
		},
		LogLevel: "info",
	}
}

// Load reads the config file, fills defaults, applies environment
// overrides and validates. A missing file is not an error: the defaults
// plus environment carry a minimal setup.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info("config_file_missing_using_defaults", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		expanded := os.Expand(string(raw), os.Getenv)
		if uerr := yaml.Unmarshal([]byte(expanded), &cfg); uerr != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, uerr)
		}
		if cfg.SchemaVersion > SchemaVersion {
			logger.Warn("config_schema_newer_than_build",
				zap.Int("file_version", cfg.SchemaVersion),
				zap.Int("build_version", SchemaVersion))
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv layers the recognized environment variables over the file.
func (c *Config) applyEnv() {
	c.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	c.Channel.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("PRIMARY_USER_CHAT_ID"); v != "" {
		c.Channel.PrimaryTarget = v
	}
	if v := os.Getenv("LLM_FAST_MODEL"); v != "" {
		c.LLM.FastModel = v
	}
	if v := os.Getenv("LLM_SMART_MODEL"); v != "" {
		c.LLM.SmartModel = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.DataPath = expandPath(v)
	}
	if c.DataPath == "" {
		c.DataPath = DataDir()
	}
}

func (c *Config) validate() error {
	if c.Identity.Name == "" {
		return fmt.Errorf("config: identity.name is required")
	}
	if c.Tick.MinSeconds <= 0 || c.Tick.MaxSeconds < c.Tick.MinSeconds {
		return fmt.Errorf("config: tick bounds invalid (min %d, max %d)", c.Tick.MinSeconds, c.Tick.MaxSeconds)
	}
	if c.Tick.BaseSeconds < c.Tick.MinSeconds || c.Tick.BaseSeconds > c.Tick.MaxSeconds {
		return fmt.Errorf("config: tick base %d outside [min, max]", c.Tick.BaseSeconds)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// Location resolves the configured timezone, UTC when empty.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MachineConfig maps the tick section onto the state machine's knobs.
func (c *Config) MachineConfig() state.MachineConfig {
	mc := state.DefaultMachineConfig()
	mc.TickBase = time.Duration(c.Tick.BaseSeconds) * time.Second
	mc.TickMin = time.Duration(c.Tick.MinSeconds) * time.Second
	mc.TickMax = time.Duration(c.Tick.MaxSeconds) * time.Second
	return mc
}

// OpenRouterConfig maps the llm section onto the provider's knobs.
func (c *Config) OpenRouterConfig() llm.OpenRouterConfig {
	return llm.OpenRouterConfig{
		APIKey:      c.LLM.APIKey,
		FastModel:   c.LLM.FastModel,
		SmartModel:  c.LLM.SmartModel,
		Endpoint:    c.LLM.Endpoint,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
	}
}

// RateLimiterConfig maps the llm rate-limit knobs.
func (c *Config) RateLimiterConfig() llm.RateLimiterConfig {
	return llm.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		TokensPerMinute:   int64(c.LLM.TokensPerMinute),
	}
}

// PluginEnabled reports whether a plugin id should be activated. An empty
// enabled list means everything not explicitly disabled.
func (c *Config) PluginEnabled(id string) bool {
	for _, d := range c.Plugins.Disabled {
		if d == id {
			return false
		}
	}
	if len(c.Plugins.Enabled) == 0 {
		return true
	}
	for _, e := range c.Plugins.Enabled {
		if e == id {
			return true
		}
	}
	return false
}
