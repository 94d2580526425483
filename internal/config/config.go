// Package config loads the engine configuration from YAML. Everything
// declarative lives in the file; secrets are resolved from environment
// variables named by the *_key_env fields and never appear in the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Store      StoreConfig     `yaml:"store"`
	Providers  []Provider      `yaml:"providers"`
	Generator  GeneratorConfig `yaml:"generator"`
	Compliance Policy          `yaml:"compliance"`
	Render     RenderConfig    `yaml:"render"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// SyncMode makes POST /enrich block until the job reaches a terminal
	// state instead of returning 202 immediately.
	SyncMode bool `yaml:"sync_mode"`
}

type PipelineConfig struct {
	// Budget is the wall-clock ceiling for one job end to end.
	Budget Duration `yaml:"budget"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Provider describes one enrichment upstream.
type Provider struct {
	ID        string   `yaml:"id"`
	Priority  int      `yaml:"priority"`
	BaseURL   string   `yaml:"base_url"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Timeout   Duration `yaml:"timeout"`
	// Fields this provider can contribute, in canonical field names.
	Fields []string `yaml:"fields"`
}

// APIKey resolves the provider credential from the environment. Empty means
// the provider runs degraded.
func (p Provider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

type GeneratorConfig struct {
	FastModel    string `yaml:"fast_model"`
	QualityModel string `yaml:"quality_model"`
	APIKeyEnv    string `yaml:"api_key_env"`
	BaseURL      string `yaml:"base_url"`

	MaxAttempts int `yaml:"max_attempts"`
	MaxIntroLen int `yaml:"max_intro_len"`
	MaxCTALen   int `yaml:"max_cta_len"`

	// QualityThreshold is the data-quality score at or above which the
	// quality model tier is used.
	QualityThreshold float64  `yaml:"quality_threshold"`
	VIPDomains       []string `yaml:"vip_domains"`
}

func (g GeneratorConfig) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(g.APIKeyEnv)
}

// Policy is the banned-phrase compliance policy.
type Policy struct {
	Rules         []Rule `yaml:"rules"`
	FallbackIntro string `yaml:"fallback_intro"`
	FallbackCTA   string `yaml:"fallback_cta"`
}

// Rule groups banned phrases under one violation category.
type Rule struct {
	ID      string   `yaml:"id"`
	Action  string   `yaml:"action"` // "remove" or "replace"
	Replace string   `yaml:"replace"`
	Phrases []string `yaml:"phrases"`
}

type RenderConfig struct {
	BaseURL  string   `yaml:"base_url"`
	TokenEnv string   `yaml:"token_env"`
	Timeout  Duration `yaml:"timeout"`
	// URLTTL is how long signed download links stay valid.
	URLTTL Duration `yaml:"url_ttl"`
}

func (r RenderConfig) Token() string {
	if r.TokenEnv == "" {
		return ""
	}
	return os.Getenv(r.TokenEnv)
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Pipeline: PipelineConfig{Budget: Duration(60 * time.Second)},
		Store:    StoreConfig{Path: "engine.db"},
		Providers: []Provider{
			{ID: "apollo", Priority: 5, APIKeyEnv: "APOLLO_API_KEY", Timeout: Duration(30 * time.Second),
				Fields: []string{"full_name", "title", "company", "industry", "linkedin_url", "company_size", "location"}},
			{ID: "zoominfo", Priority: 4, APIKeyEnv: "ZOOMINFO_API_KEY", Timeout: Duration(30 * time.Second),
				Fields: []string{"full_name", "title", "company", "industry", "company_size", "phone", "location"}},
			{ID: "pdl", Priority: 3, APIKeyEnv: "PDL_API_KEY", Timeout: Duration(30 * time.Second),
				Fields: []string{"full_name", "title", "company", "industry", "linkedin_url", "location"}},
			{ID: "hunter", Priority: 2, APIKeyEnv: "HUNTER_API_KEY", Timeout: Duration(30 * time.Second),
				Fields: []string{"full_name", "title", "company"}},
			{ID: "tavily", Priority: 1, APIKeyEnv: "TAVILY_API_KEY", Timeout: Duration(30 * time.Second),
				Fields: []string{"company", "industry", "company_news"}},
		},
		Generator: GeneratorConfig{
			FastModel:        "gemini-2.0-flash",
			QualityModel:     "gemini-2.5-pro",
			APIKeyEnv:        "GEMINI_API_KEY",
			MaxAttempts:      3,
			MaxIntroLen:      200,
			MaxCTALen:        150,
			QualityThreshold: 0.8,
		},
		Compliance: DefaultPolicy(),
		Render: RenderConfig{
			TokenEnv: "RENDER_API_TOKEN",
			Timeout:  Duration(30 * time.Second),
			URLTTL:   Duration(7 * 24 * time.Hour),
		},
	}
}

// DefaultPolicy is the baseline banned-phrase policy. Deployments extend it
// in the config file.
func DefaultPolicy() Policy {
	return Policy{
		Rules: []Rule{
			{
				ID:     "superlative",
				Action: "remove",
				Phrases: []string{
					"guaranteed #1", "guaranteed results", "best in the world",
					"world's best", "unbeatable", "number one solution",
				},
			},
			{
				ID:     "urgency",
				Action: "remove",
				Phrases: []string{
					"act now", "limited time only", "don't miss out",
					"before it's too late", "last chance",
				},
			},
			{
				ID:      "competitive",
				Action:  "replace",
				Replace: "other options",
				Phrases: []string{
					"crush the competition", "destroy your competitors",
					"unlike our inferior competitors",
				},
			},
			{
				ID:     "absolute",
				Action: "remove",
				Phrases: []string{
					"100% success rate", "never fails", "always works",
					"zero risk", "risk-free guarantee",
				},
			},
		},
		FallbackIntro: "I came across your work and thought it was worth reaching out.",
		FallbackCTA:   "Would you be open to a short conversation?",
	}
}

// Load reads the YAML file at path and applies defaults to unset sections.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Pipeline.Budget <= 0 {
		c.Pipeline.Budget = def.Pipeline.Budget
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if len(c.Providers) == 0 {
		c.Providers = def.Providers
	}
	for i := range c.Providers {
		if c.Providers[i].Timeout <= 0 {
			c.Providers[i].Timeout = Duration(30 * time.Second)
		}
	}
	g := &c.Generator
	if g.FastModel == "" {
		g.FastModel = def.Generator.FastModel
	}
	if g.QualityModel == "" {
		g.QualityModel = def.Generator.QualityModel
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = def.Generator.APIKeyEnv
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = def.Generator.MaxAttempts
	}
	if g.MaxIntroLen <= 0 {
		g.MaxIntroLen = def.Generator.MaxIntroLen
	}
	if g.MaxCTALen <= 0 {
		g.MaxCTALen = def.Generator.MaxCTALen
	}
	if g.QualityThreshold <= 0 {
		g.QualityThreshold = def.Generator.QualityThreshold
	}
	if len(c.Compliance.Rules) == 0 {
		c.Compliance.Rules = def.Compliance.Rules
	}
	if c.Compliance.FallbackIntro == "" {
		c.Compliance.FallbackIntro = def.Compliance.FallbackIntro
	}
	if c.Compliance.FallbackCTA == "" {
		c.Compliance.FallbackCTA = def.Compliance.FallbackCTA
	}
	if c.Render.TokenEnv == "" {
		c.Render.TokenEnv = def.Render.TokenEnv
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = def.Render.Timeout
	}
	if c.Render.URLTTL <= 0 {
		c.Render.URLTTL = def.Render.URLTTL
	}
}

func (c Config) Validate() error {
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Priority <= 0 {
			return fmt.Errorf("provider %s: priority must be positive", p.ID)
		}
	}
	for _, r := range c.Compliance.Rules {
		if r.ID == "" {
			return fmt.Errorf("compliance rule with empty id")
		}
		switch r.Action {
		case "remove", "replace":
		default:
			return fmt.Errorf("compliance rule %s: unknown action %q", r.ID, r.Action)
		}
		if r.Action == "replace" && r.Replace == "" {
			return fmt.Errorf("compliance rule %s: replace action needs a replacement", r.ID)
		}
		if len(r.Phrases) == 0 {
			return fmt.Errorf("compliance rule %s: no phrases", r.ID)
		}
	}
	if c.Generator.MaxAttempts < 1 {
		return fmt.Errorf("generator.max_attempts must be >= 1")
	}
	return nil
}
