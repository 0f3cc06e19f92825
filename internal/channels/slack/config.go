package slack

import "time"

// Config captures Slack gateway behavior.
type Config struct {
	BotToken string
	AppToken string
	// APIURL overrides the Web API base URL, mainly for tests. Must end with "/".
	APIURL string
	Debug  bool
	// DefaultAgent receives mentions.
	DefaultAgent string
	// LegacyAgentName, when set, accepts three-part identities and routes them to this agent.
	LegacyAgentName string
	// Streaming uses chat.startStream and friends. When false, output is
	// buffered and posted as a single message.
	Streaming      bool
	DedupCacheSize int
	DedupTTL       time.Duration
}

const (
	defaultAPIURL         = "https://slack.com/api/"
	defaultAgentName      = "assistant"
	defaultDedupCacheSize = 2048
	defaultDedupTTL       = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.DefaultAgent == "" {
		c.DefaultAgent = defaultAgentName
	}
	if c.DedupCacheSize <= 0 {
		c.DedupCacheSize = defaultDedupCacheSize
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = defaultDedupTTL
	}
	return c
}
