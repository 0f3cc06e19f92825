package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HITLBOT_SLACK_BOT_TOKEN.
const EnvPrefix = "HITLBOT"

// ConfigPathEnv names a config file to load when no path is given.
const ConfigPathEnv = EnvPrefix + "_CONFIG"

// ValueSource identifies where a configuration value originated.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "env"
	SourceOverride ValueSource = "override"
)

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	path     string
	loadedAt time.Time
}

// Source returns the origin for the given dotted key, e.g. "slack.bot_token".
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// Path is the config file that was read, if any.
func (m Metadata) Path() string {
	return m.path
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Overrides are dotted keys set by the caller, usually from changed CLI flags.
// They win over every other source.
type Overrides map[string]any

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// EnvName returns the environment variable for a dotted key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the configuration. A missing default config file is not an
// error; a missing explicit one is.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	path, explicit := resolveConfigPath(options)
	if path != "" {
		data, err := options.readFile(path)
		switch {
		case err == nil:
			if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
				return Config{}, Metadata{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
			meta.path = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, Metadata{}, fmt.Errorf("read config file: %w", err)
		}
	}

	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		if meta.path != "" && v.InConfig(key) {
			meta.sources[key] = SourceFile
		}
		if value, ok := options.envLookup(EnvName(key)); ok {
			v.Set(key, value)
			meta.sources[key] = SourceEnv
		}
	}
	for key, value := range options.overrides {
		v.Set(key, value)
		meta.sources[key] = SourceOverride
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	return cfg, meta, nil
}

// resolveConfigPath returns the file to read and whether the caller asked
// for it explicitly.
func resolveConfigPath(opts loadOptions) (string, bool) {
	if path := strings.TrimSpace(opts.configPath); path != "" {
		return path, true
	}
	if path, ok := opts.envLookup(ConfigPathEnv); ok && strings.TrimSpace(path) != "" {
		return strings.TrimSpace(path), true
	}
	if opts.homeDir == nil {
		return "", false
	}
	home, err := opts.homeDir()
	if err != nil || home == "" {
		return "", false
	}
	return filepath.Join(home, ".hitlbot", "config.yaml"), false
}

func normalize(cfg *Config) {
	cfg.Slack.BotToken = strings.TrimSpace(cfg.Slack.BotToken)
	cfg.Slack.AppToken = strings.TrimSpace(cfg.Slack.AppToken)
	cfg.Slack.APIURL = strings.TrimSpace(cfg.Slack.APIURL)
	cfg.Agent.Provider = strings.ToLower(strings.TrimSpace(cfg.Agent.Provider))
	cfg.Agent.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Agent.BaseURL), "/")
	cfg.Agent.AgentID = strings.TrimSpace(cfg.Agent.AgentID)
	cfg.Agent.Name = strings.TrimSpace(cfg.Agent.Name)
	if cfg.Agent.AgentID == "" {
		cfg.Agent.AgentID = cfg.Agent.Name
	}
	cfg.Approval.LegacyAgentName = strings.TrimSpace(cfg.Approval.LegacyAgentName)
}
