package resume

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domresume/domstate"
)

// Config is the YAML form of the resume settings.
type Config struct {
	Prefix    string       `yaml:"prefix"`
	Auto      bool         `yaml:"auto"`
	KeepFalsy bool         `yaml:"keep_falsy"`
	Rules     []RuleConfig `yaml:"rules"`
}

// RuleConfig is the YAML form of a domstate.Rule. ComponentDataset replaces
// Dataset with the declared props of the element's component.
type RuleConfig struct {
	Query            string   `yaml:"query"`
	Attributes       []string `yaml:"attributes"`
	Properties       []string `yaml:"properties"`
	Dataset          []string `yaml:"dataset"`
	ComponentDataset bool     `yaml:"component_dataset"`
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("resume: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills the unset fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
}

// Validate checks the rule list.
func (c *Config) Validate() error {
	for i, r := range c.Rules {
		if r.Query == "" {
			return fmt.Errorf("resume: rule %d: empty query", i)
		}
		if r.ComponentDataset && len(r.Dataset) > 0 {
			return fmt.Errorf("resume: rule %d (%s): dataset and component_dataset are exclusive", i, r.Query)
		}
	}
	return nil
}

// BuildRules converts the configured rules. An empty list yields the
// default rules.
func (c *Config) BuildRules() []domstate.Rule {
	if len(c.Rules) == 0 {
		return domstate.DefaultRules()
	}
	rules := make([]domstate.Rule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		r := domstate.Rule{
			Query:      rc.Query,
			Attributes: domstate.Static(rc.Attributes...),
			Properties: domstate.Static(rc.Properties...),
			Dataset:    domstate.Static(rc.Dataset...),
		}
		if rc.ComponentDataset {
			r.Dataset = domstate.Computed(domstate.ComponentProps)
		}
		rules = append(rules, r)
	}
	return rules
}
