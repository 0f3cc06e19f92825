package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"hitlbot/internal/observability"
)

// Dump renders the configuration as YAML with secrets masked.
func Dump(cfg Config) ([]byte, error) {
	doc := map[string]any{
		"slack": map[string]any{
			"bot_token": mask(cfg.Slack.BotToken),
			"app_token": mask(cfg.Slack.AppToken),
			"api_url":   cfg.Slack.APIURL,
			"debug":     cfg.Slack.Debug,
		},
		"agent": map[string]any{
			"provider": cfg.Agent.Provider,
			"base_url": cfg.Agent.BaseURL,
			"agent_id": cfg.Agent.AgentID,
			"name":     cfg.Agent.Name,
			"timeout":  duration(cfg.Agent.Timeout),
		},
		"server": map[string]any{
			"enabled":       cfg.Server.Enabled,
			"addr":          cfg.Server.Addr,
			"enable_cors":   cfg.Server.EnableCORS,
			"debug":         cfg.Server.Debug,
			"read_timeout":  duration(cfg.Server.ReadTimeout),
			"write_timeout": duration(cfg.Server.WriteTimeout),
		},
		"observability": cfg.Observability,
		"delivery": map[string]any{
			"streaming":        cfg.Delivery.Streaming,
			"dedup_cache_size": cfg.Delivery.DedupCacheSize,
			"dedup_ttl":        duration(cfg.Delivery.DedupTTL),
		},
		"approval": map[string]any{
			"legacy_agent_name": cfg.Approval.LegacyAgentName,
			"console_timeout":   duration(cfg.Approval.ConsoleTimeout),
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func mask(token string) string {
	if token == "" {
		return ""
	}
	return observability.SanitizeToken(token)
}

func duration(d time.Duration) string {
	return d.String()
}
