// Package config loads hitlbot configuration from defaults, a YAML file,
// HITLBOT_* environment variables and caller overrides, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hitlbot/internal/approval"
	"hitlbot/internal/observability"
	"hitlbot/internal/server"
)

// Agent providers.
const (
	ProviderRemote = "remote"
	ProviderDemo   = "demo"
)

// Config is the effective runtime configuration.
type Config struct {
	Slack         SlackConfig          `mapstructure:"slack" yaml:"slack"`
	Agent         AgentConfig          `mapstructure:"agent" yaml:"agent"`
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
	Delivery      DeliveryConfig       `mapstructure:"delivery" yaml:"delivery"`
	Approval      ApprovalConfig       `mapstructure:"approval" yaml:"approval"`
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	AppToken string `mapstructure:"app_token" yaml:"app_token"`
	APIURL   string `mapstructure:"api_url" yaml:"api_url"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
}

// AgentConfig selects the agent runtime.
type AgentConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // remote, demo
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	AgentID  string        `mapstructure:"agent_id" yaml:"agent_id"`
	Name     string        `mapstructure:"name" yaml:"name"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig embeds the HTTP listener settings plus an on/off switch.
type ServerConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	server.Config `mapstructure:",squash" yaml:",inline"`
}

// DeliveryConfig tunes streaming and event handling.
type DeliveryConfig struct {
	Streaming      bool          `mapstructure:"streaming" yaml:"streaming"`
	DedupCacheSize int           `mapstructure:"dedup_cache_size" yaml:"dedup_cache_size"`
	DedupTTL       time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
}

// ApprovalConfig tunes approval handling.
type ApprovalConfig struct {
	// LegacyAgentName accepts old three-part button ids for this agent.
	// Empty rejects them.
	LegacyAgentName string `mapstructure:"legacy_agent_name" yaml:"legacy_agent_name"`
	// ConsoleTimeout bounds the terminal prompt in simulate. Zero waits forever.
	ConsoleTimeout time.Duration `mapstructure:"console_timeout" yaml:"console_timeout"`
}

// Validate reports every setting that prevents serve from starting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Slack.BotToken) == "" {
		errs = append(errs, errors.New("slack.bot_token is required"))
	}
	switch {
	case strings.TrimSpace(c.Slack.AppToken) == "":
		errs = append(errs, errors.New("slack.app_token is required"))
	case !strings.HasPrefix(c.Slack.AppToken, "xapp-"):
		errs = append(errs, errors.New("slack.app_token must be an app-level token (xapp-...)"))
	}
	switch c.Agent.Provider {
	case ProviderRemote:
		if strings.TrimSpace(c.Agent.BaseURL) == "" {
			errs = append(errs, errors.New("agent.base_url is required for the remote provider"))
		}
	case ProviderDemo:
	default:
		errs = append(errs, fmt.Errorf("agent.provider %q is not one of remote, demo", c.Agent.Provider))
	}
	switch {
	case strings.TrimSpace(c.Agent.Name) == "":
		errs = append(errs, errors.New("agent.name is required"))
	case strings.Contains(c.Agent.Name, approval.Delimiter):
		errs = append(errs, fmt.Errorf("agent.name must not contain %q", approval.Delimiter))
	}
	if strings.Contains(c.Approval.LegacyAgentName, approval.Delimiter) {
		errs = append(errs, fmt.Errorf("approval.legacy_agent_name must not contain %q", approval.Delimiter))
	}
	if c.Delivery.DedupCacheSize <= 0 {
		errs = append(errs, errors.New("delivery.dedup_cache_size must be positive"))
	}
	return errors.Join(errs...)
}
