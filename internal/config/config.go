package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models launchline.yml.
type Config struct {
	Store struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"store"`
	Playbooks struct {
		Catalog map[string]Playbook `yaml:"catalog"`
		Kinds   map[string][]string `yaml:"kinds"`
	} `yaml:"playbooks"`
	Credit struct {
		ClaimFloor         int    `yaml:"claim_floor"`
		WeeklyGoalMinimum  int    `yaml:"weekly_goal_minimum"`
		OverduePenaltyDays int    `yaml:"overdue_penalty_days"`
		RemoteLedgerURL    string `yaml:"remote_ledger_url"`
	} `yaml:"credit"`
	Members struct {
		Seed []SeedMember `yaml:"seed"`
	} `yaml:"members"`
}

// SeedMember is inserted when a store is first created from this config.
type SeedMember struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Playbook is an ordered day plan; Days[i] holds the task labels for day i+1.
type Playbook struct {
	Days [][]string `yaml:"days"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with ll config generate", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Store.ID == "" {
		return fmt.Errorf("config.store.id is required")
	}
	if c.Store.Kind == "" {
		return fmt.Errorf("config.store.kind is required")
	}
	if len(c.Playbooks.Catalog) == 0 {
		return fmt.Errorf("config.playbooks.catalog is required")
	}
	for name, pb := range c.Playbooks.Catalog {
		if name == "" {
			return fmt.Errorf("config.playbooks.catalog contains empty strategy name")
		}
		if len(pb.Days) == 0 {
			return fmt.Errorf("playbook %s has no days", name)
		}
		for i, tasks := range pb.Days {
			if len(tasks) == 0 {
				return fmt.Errorf("playbook %s day %d has no tasks", name, i+1)
			}
			for _, task := range tasks {
				if task == "" {
					return fmt.Errorf("playbook %s day %d has empty task label", name, i+1)
				}
			}
		}
	}
	if len(c.Playbooks.Kinds) == 0 {
		return fmt.Errorf("config.playbooks.kinds is required")
	}
	for kind, strategies := range c.Playbooks.Kinds {
		if kind == "" {
			return fmt.Errorf("config.playbooks.kinds contains empty store kind")
		}
		if len(strategies) == 0 {
			return fmt.Errorf("store kind %s allows no strategies", kind)
		}
		for _, s := range strategies {
			if _, ok := c.Playbooks.Catalog[s]; !ok {
				return fmt.Errorf("store kind %s references unknown playbook %s", kind, s)
			}
		}
	}
	if _, ok := c.Playbooks.Kinds[c.Store.Kind]; !ok {
		return fmt.Errorf("config.store.kind %s has no playbook mapping", c.Store.Kind)
	}
	if c.Credit.ClaimFloor < 0 {
		return fmt.Errorf("config.credit.claim_floor must not be negative")
	}
	if c.Credit.WeeklyGoalMinimum <= 0 {
		return fmt.Errorf("config.credit.weekly_goal_minimum must be positive")
	}
	if c.Credit.OverduePenaltyDays <= 0 {
		return fmt.Errorf("config.credit.overdue_penalty_days must be positive")
	}
	for i, m := range c.Members.Seed {
		if m.Name == "" {
			return fmt.Errorf("config.members.seed[%d] has no name", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "launchline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(storeID string) string {
	return fmt.Sprintf(defaultTemplate, storeID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a store.
func Default(storeID string) *Config {
	var cfg Config
	cfg.Store.ID = storeID
	cfg.Store.Kind = "mall"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, storeID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  id: %s
  kind: mall

playbooks:
  catalog:
    standard:
      days:
        - ["Audit listing title and keywords", "Check main image quality", "Confirm price against competitors"]
        - ["Refresh search keywords", "Reply to open customer questions"]
        - ["Review traffic report", "Adjust ad budget"]
        - ["Update detail page banner", "Check stock levels"]
        - ["Collect competitor screenshots", "Tune promoted listing bid"]
        - ["Post social teaser", "Verify shipping template"]
        - ["Mid-cycle performance review", "Record conversion rate"]
        - ["Rotate secondary images", "Answer new reviews"]
        - ["Check ad spend efficiency", "Update coupon settings"]
        - ["Inspect return reasons", "Adjust inventory forecast"]
        - ["Refresh content blocks", "Benchmark against top seller"]
        - ["Test checkout flow", "Confirm promotion calendar"]
        - ["Prepare maintenance handover notes", "Archive campaign assets"]
        - ["Write final performance summary", "Confirm stable order baseline"]
    sprint3:
      days:
        - ["Upload base listing", "Set launch price", "Attach first image batch"]
        - ["Push initial traffic", "Record first orders", "Collect early feedback"]
        - ["Stabilize conversion", "Document results", "Prepare handover"]
    sprint7:
      days:
        - ["Upload base listing", "Set launch price"]
        - ["Push initial traffic", "Verify order tracking"]
        - ["First optimization pass", "Reply to inquiries"]
        - ["Mid-sprint review", "Adjust bids"]
        - ["Scale winning keywords", "Refresh images"]
        - ["Lock pricing", "Confirm logistics"]
        - ["Final review", "Prepare handover"]

  kinds:
    mall: [standard]
    factory: [sprint3, sprint7, standard]

credit:
  claim_floor: 60
  weekly_goal_minimum: 5
  overdue_penalty_days: 3
  remote_ledger_url: ""

members:
  seed: []
`
