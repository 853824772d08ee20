// Package config resolves intentgov settings from flags, environment, and an
// optional .intentgov.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/judge"
	"github.com/ppiankov/intentgov/internal/llm"
	"github.com/ppiankov/intentgov/internal/model"
)

// Viper keys.
const (
	KeyConstitution    = "constitution"
	KeyCriteria        = "criteria"
	KeyProvider        = "provider"
	KeyAPIURL          = "api_url"
	KeyAPIKey          = "api_key"
	KeyModel           = "model"
	KeyJudgeBackend    = "judge.backend"
	KeyJudgeModel      = "judge.model"
	KeyJudgeThreshold  = "judge.threshold"
	KeyJudgeTimeout    = "judge.timeout"
	KeyAgentMaxSteps   = "agent.max_steps"
	KeyAgentBaseIntent = "agent.base_intent"
	KeyConfirmTimeout  = "confirm.timeout"
	KeyConfirmQueueDir = "confirm.queue_dir"
	KeySession         = "session"
	KeyAlerts          = "alerts"
	KeySensitiveKeys   = "sensitive_keys"
	KeyWatch           = "watch"

	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"
)

// EnvPrefix prefixes every environment override, e.g. INTENTGOV_JUDGE_BACKEND.
const EnvPrefix = "INTENTGOV"

// Judge backends.
const (
	JudgeChat   = "chat"
	JudgeClaude = "claude"
)

// Config is the resolved configuration.
type Config struct {
	Constitution  string              `mapstructure:"constitution"`
	Criteria      string              `mapstructure:"criteria"`
	Provider      string              `mapstructure:"provider"`
	APIURL        string              `mapstructure:"api_url"`
	APIKey        string              `mapstructure:"api_key"`
	Model         string              `mapstructure:"model"`
	Judge         JudgeConfig         `mapstructure:"judge"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Confirm       ConfirmConfig       `mapstructure:"confirm"`
	Session       map[string]any      `mapstructure:"session"`
	Alerts        []alert.AlertConfig `mapstructure:"alerts"`
	SensitiveKeys []string            `mapstructure:"sensitive_keys"`
	Watch         bool                `mapstructure:"watch"`
}

type JudgeConfig struct {
	Backend   string        `mapstructure:"backend"`
	Model     string        `mapstructure:"model"`
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	MaxSteps   int               `mapstructure:"max_steps"`
	BaseIntent string            `mapstructure:"base_intent"`
	Strategies map[string]string `mapstructure:"strategies"`
}

type ConfirmConfig struct {
	// Timeout of zero waits for the operator indefinitely.
	Timeout  time.Duration `mapstructure:"timeout"`
	QueueDir string        `mapstructure:"queue_dir"`
}

// SetDefaults registers defaults and environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyConstitution, "constitutions/default.yaml")
	v.SetDefault(KeyCriteria, "criteria")
	v.SetDefault(KeyProvider, "perplexity")
	v.SetDefault(KeyJudgeBackend, JudgeChat)
	v.SetDefault(KeyJudgeThreshold, judge.DefaultThreshold)
	v.SetDefault(KeyJudgeTimeout, 60*time.Second)
	v.SetDefault(KeyAgentMaxSteps, 8)
	v.SetDefault(KeyAgentBaseIntent, "You are a support agent for Acme Corp.")
	v.SetDefault(KeyConfirmTimeout, time.Duration(0))
	v.SetDefault(KeySession+".customer_tier", "standard")
	v.SetDefault(KeySession+".customer_tenure_days", 800)
	v.SetDefault(KeySession+".org_goal", "retention")
	v.SetDefault(KeyWatch, false)
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadFile reads path, or searches ., $HOME and the user config dir for
// .intentgov.yaml. A missing searched file is not an error.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/intentgov")
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".intentgov")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", &model.ConfigError{Source: path, Err: fmt.Errorf("read config: %w", err)}
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates v. Failures are *model.ConfigError.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &model.ConfigError{Source: "config", Err: err}
	}
	c.Session = normalizeSession(c.Session)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail mid-run.
func (c *Config) Validate() error {
	if c.Constitution == "" {
		return model.NewConfigError("config", "%s is required", KeyConstitution)
	}
	if c.Criteria == "" {
		return model.NewConfigError("config", "%s is required", KeyCriteria)
	}
	if _, err := llm.LookupProvider(c.Provider); err != nil && c.APIURL == "" {
		return &model.ConfigError{Source: "config", Err: err}
	}
	switch c.Judge.Backend {
	case JudgeChat, JudgeClaude:
	default:
		return model.NewConfigError("config", "%s must be %q or %q, got %q", KeyJudgeBackend, JudgeChat, JudgeClaude, c.Judge.Backend)
	}
	if c.Judge.Threshold < 1 || c.Judge.Threshold > 10 {
		return model.NewConfigError("config", "%s must be between 1 and 10, got %d", KeyJudgeThreshold, c.Judge.Threshold)
	}
	if c.Judge.Timeout < 0 || c.Confirm.Timeout < 0 {
		return model.NewConfigError("config", "timeouts must not be negative")
	}
	if c.Agent.MaxSteps < 1 {
		return model.NewConfigError("config", "%s must be at least 1", KeyAgentMaxSteps)
	}
	for _, a := range c.Alerts {
		if err := a.Validate(); err != nil {
			return &model.ConfigError{Source: "config", Err: err}
		}
	}
	return nil
}

// Credential returns the model-backend key: api_key, else the provider's
// environment variable. Placeholder values count as missing. Providers that
// need no key return "".
func (c *Config) Credential() (string, error) {
	if c.APIKey != "" && !llm.IsPlaceholderKey(c.APIKey) {
		return c.APIKey, nil
	}
	p, err := llm.LookupProvider(c.Provider)
	if err != nil {
		return "", model.NewConfigError("credential", "no api_key configured for custom endpoint %s", c.APIURL)
	}
	if p.EnvKey == "" {
		return "", nil
	}
	key := os.Getenv(p.EnvKey)
	if llm.IsPlaceholderKey(key) {
		return "", model.NewConfigError("credential",
			"%s is not set; export it or set %s_API_KEY", p.EnvKey, EnvPrefix)
	}
	return key, nil
}

// Chat resolves the agent's model endpoint, including the credential.
func (c *Config) Chat() (llm.Config, error) {
	key, err := c.Credential()
	if err != nil {
		return llm.Config{}, err
	}
	cfg := llm.Config{APIURL: c.APIURL, APIKey: key, Model: c.Model}
	if p, err := llm.LookupProvider(c.Provider); err == nil {
		if cfg.APIURL == "" {
			cfg.APIURL = p.APIURL
		}
		if cfg.Model == "" {
			cfg.Model = p.DefaultModel
		}
	}
	return cfg, nil
}

// normalizeSession turns numeric strings from the environment into numbers
// so rule guards compare them numerically.
func normalizeSession(s map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		if str, ok := v.(string); ok {
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				out[k] = int(n)
				continue
			}
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}
