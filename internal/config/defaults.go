package config

import (
	"time"

	"github.com/spf13/viper"

	"hitlbot/internal/observability"
	"hitlbot/internal/server"
)

const (
	DefaultSlackAPIURL    = "https://slack.com/api/"
	DefaultAgentName      = "assistant"
	DefaultAgentBaseURL   = "http://localhost:4111"
	DefaultAgentTimeout   = 5 * time.Minute
	DefaultDedupCacheSize = 2048
	DefaultDedupTTL       = 10 * time.Minute
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Slack: SlackConfig{APIURL: DefaultSlackAPIURL},
		Agent: AgentConfig{
			Provider: ProviderRemote,
			BaseURL:  DefaultAgentBaseURL,
			AgentID:  DefaultAgentName,
			Name:     DefaultAgentName,
			Timeout:  DefaultAgentTimeout,
		},
		Server:        ServerConfig{Enabled: true, Config: server.DefaultConfig()},
		Observability: observability.DefaultConfig(),
		Delivery: DeliveryConfig{
			Streaming:      true,
			DedupCacheSize: DefaultDedupCacheSize,
			DedupTTL:       DefaultDedupTTL,
		},
	}
}

// setDefaults registers every key with viper so env overrides and Unmarshal
// see the full key set.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("slack.bot_token", d.Slack.BotToken)
	v.SetDefault("slack.app_token", d.Slack.AppToken)
	v.SetDefault("slack.api_url", d.Slack.APIURL)
	v.SetDefault("slack.debug", d.Slack.Debug)

	v.SetDefault("agent.provider", d.Agent.Provider)
	v.SetDefault("agent.base_url", d.Agent.BaseURL)
	v.SetDefault("agent.agent_id", d.Agent.AgentID)
	v.SetDefault("agent.name", d.Agent.Name)
	v.SetDefault("agent.timeout", d.Agent.Timeout)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("observability.logging.level", d.Observability.Logging.Level)
	v.SetDefault("observability.logging.format", d.Observability.Logging.Format)
	v.SetDefault("observability.metrics.enabled", d.Observability.Metrics.Enabled)
	v.SetDefault("observability.tracing.enabled", d.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", d.Observability.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", d.Observability.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.zipkin_endpoint", d.Observability.Tracing.ZipkinEndpoint)
	v.SetDefault("observability.tracing.sample_rate", d.Observability.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", d.Observability.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", d.Observability.Tracing.ServiceVersion)

	v.SetDefault("delivery.streaming", d.Delivery.Streaming)
	v.SetDefault("delivery.dedup_cache_size", d.Delivery.DedupCacheSize)
	v.SetDefault("delivery.dedup_ttl", d.Delivery.DedupTTL)

	v.SetDefault("approval.legacy_agent_name", d.Approval.LegacyAgentName)
	v.SetDefault("approval.console_timeout", d.Approval.ConsoleTimeout)
}
