package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources     Sources     `yaml:"sources"`
	Filters     Filters     `yaml:"filters"`
	Categories  Categories  `yaml:"categories"`
	Limits      Limits      `yaml:"limits"`
	Windows     Windows     `yaml:"windows"`
	SourceTypes SourceTypes `yaml:"source_types"`
	Oracle      Oracle      `yaml:"oracle"`
	Output      Output      `yaml:"output"`
	Discovery   Discovery   `yaml:"discovery"`
}

type Sources struct {
	OPML  string `yaml:"opml"`
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Priority bool   `yaml:"priority"`
}

type Filters struct {
	BlockedSources  []string `yaml:"blocked_sources"`
	BlockedKeywords []string `yaml:"blocked_keywords"`
}

// Categories holds the ordered keyword rules. Rule order matters: the first
// matching rule wins, so ambiguous overlaps resolve to the earliest rule.
type Categories struct {
	Fallback string         `yaml:"fallback"`
	Local    string         `yaml:"local"`
	Rules    []CategoryRule `yaml:"rules"`
}

type CategoryRule struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Limits struct {
	MaxFeedSize          int `yaml:"max_feed_size"`
	MaxPerSource         int `yaml:"max_per_source"`
	MaxPerPrioritySource int `yaml:"max_per_priority_source"`
	MinScore             int `yaml:"min_score"`
	OracleBatchSize      int `yaml:"oracle_batch_size"`
	FallbackScore        int `yaml:"fallback_score"`
	DedupThreshold       int `yaml:"dedup_threshold"`
}

type Windows struct {
	LookbackHours          int `yaml:"lookback_hours"`
	ScoreFreshnessHours    int `yaml:"score_freshness_hours"`
	ScorePruneHours        int `yaml:"score_prune_hours"`
	CategoryRetentionHours int `yaml:"category_retention_hours"`
	ShownRetentionDays     int `yaml:"shown_retention_days"`
	ShownCompactSize       int `yaml:"shown_compact_size"`
}

// SourceTypes classifies sources (print, broadcast, blog, ...) with a score
// adjustment and an optional per-type diversity cap override.
type SourceTypes struct {
	Types map[string]SourceType `yaml:"types"`
	Map   map[string]string     `yaml:"map"`
}

type SourceType struct {
	ScoreAdjustment int `yaml:"score_adjustment"`
	MaxPerSource    int `yaml:"max_per_source"`
}

type Oracle struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Interests   string `yaml:"interests"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
	SiteURL string `yaml:"site_url"`
	Author  string `yaml:"author"`
}

// Discovery configures the feed discovery command: curated OPML lists to pull
// candidate feeds from, and how to evaluate them.
type Discovery struct {
	Sources        []DiscoverySource `yaml:"sources"`
	SampleArticles int               `yaml:"sample_articles"`
	MinScore       int               `yaml:"min_score"`
	CacheDays      int               `yaml:"cache_days"`
}

type DiscoverySource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ConfigDir returns the XDG config directory for curator.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "curator")
}

// DataDir returns the XDG data directory for curator.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "curator")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/curator/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'curator init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML bytes into a Config, applying defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Categories: Categories{
			Fallback: "news",
			Local:    "local",
		},
		Limits: Limits{
			MaxFeedSize:          50,
			MaxPerSource:         5,
			MaxPerPrioritySource: 10,
			MinScore:             30,
			OracleBatchSize:      10,
			FallbackScore:        50,
			DedupThreshold:       85,
		},
		Windows: Windows{
			LookbackHours:          48,
			ScoreFreshnessHours:    6,
			ScorePruneHours:        12,
			CategoryRetentionHours: 72,
			ShownRetentionDays:     14,
			ShownCompactSize:       10000,
		},
		Oracle: Oracle{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Discovery: Discovery{
			SampleArticles: 3,
			MinScore:       60,
			CacheDays:      30,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the parts of the config the pipeline cannot run without.
// A config error is the only fatal error class: categorization and limiting
// must never proceed with undefined behavior.
func (c *Config) Validate() error {
	if c.Sources.OPML == "" && len(c.Sources.Feeds) == 0 {
		return fmt.Errorf("config: no sources defined (set sources.opml or sources.feeds)")
	}
	for i, f := range c.Sources.Feeds {
		if f.URL == "" {
			return fmt.Errorf("config: sources.feeds[%d] has no url", i)
		}
	}

	if c.Categories.Fallback == "" {
		return fmt.Errorf("config: categories.fallback must be set")
	}
	if c.Categories.Local == "" {
		return fmt.Errorf("config: categories.local must be set")
	}
	seen := map[string]bool{}
	for i, r := range c.Categories.Rules {
		if r.Key == "" {
			return fmt.Errorf("config: categories.rules[%d] has no key", i)
		}
		if seen[r.Key] {
			return fmt.Errorf("config: duplicate category rule %q", r.Key)
		}
		seen[r.Key] = true
		if r.Key != c.Categories.Fallback && r.Key != c.Categories.Local && len(r.Keywords) == 0 {
			return fmt.Errorf("config: category rule %q has no keywords", r.Key)
		}
	}

	if c.Limits.MaxFeedSize < 1 {
		return fmt.Errorf("config: limits.max_feed_size must be positive")
	}
	if c.Limits.MaxPerSource < 1 {
		return fmt.Errorf("config: limits.max_per_source must be positive")
	}
	if c.Limits.MaxPerPrioritySource < 1 {
		return fmt.Errorf("config: limits.max_per_priority_source must be positive")
	}
	if c.Limits.MinScore < 0 || c.Limits.MinScore > 100 {
		return fmt.Errorf("config: limits.min_score must be in [0,100]")
	}
	if c.Limits.OracleBatchSize < 1 {
		return fmt.Errorf("config: limits.oracle_batch_size must be positive")
	}
	if c.Limits.FallbackScore < 0 || c.Limits.FallbackScore > 100 {
		return fmt.Errorf("config: limits.fallback_score must be in [0,100]")
	}
	if c.Limits.DedupThreshold < 1 || c.Limits.DedupThreshold > 100 {
		return fmt.Errorf("config: limits.dedup_threshold must be in [1,100]")
	}

	if c.Windows.ScoreFreshnessHours < 1 {
		return fmt.Errorf("config: windows.score_freshness_hours must be positive")
	}
	if c.Windows.ScorePruneHours < c.Windows.ScoreFreshnessHours {
		return fmt.Errorf("config: windows.score_prune_hours must be >= score_freshness_hours")
	}
	if c.Windows.CategoryRetentionHours < 1 {
		return fmt.Errorf("config: windows.category_retention_hours must be positive")
	}
	if c.Windows.ShownRetentionDays < 1 {
		return fmt.Errorf("config: windows.shown_retention_days must be positive")
	}

	validTypes := map[string]bool{}
	for name, st := range c.SourceTypes.Types {
		validTypes[name] = true
		if st.MaxPerSource < 0 {
			return fmt.Errorf("config: source_types.types.%s.max_per_source must not be negative", name)
		}
	}
	for source, typ := range c.SourceTypes.Map {
		if !validTypes[typ] {
			return fmt.Errorf("config: source %q mapped to unknown type %q", source, typ)
		}
	}

	for i, s := range c.Discovery.Sources {
		if s.URL == "" {
			return fmt.Errorf("config: discovery.sources[%d] has no url", i)
		}
	}
	if c.Discovery.SampleArticles < 1 {
		return fmt.Errorf("config: discovery.sample_articles must be positive")
	}
	if c.Discovery.MinScore < 0 || c.Discovery.MinScore > 100 {
		return fmt.Errorf("config: discovery.min_score must be in [0,100]")
	}
	if c.Discovery.CacheDays < 1 {
		return fmt.Errorf("config: discovery.cache_days must be positive")
	}

	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
