package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"storypoints/internal/estimate"
)

// Config models storypoints.yml. Once loaded it is treated as read-only.
type Config struct {
	Board struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"board" json:"board"`
	Refresh struct {
		IntervalMS int `yaml:"interval_ms" json:"interval_ms"`
	} `yaml:"refresh" json:"refresh"`
	Estimate struct {
		Tag    string `yaml:"tag" json:"tag"`
		Marker string `yaml:"marker" json:"marker"`
	} `yaml:"estimate" json:"estimate"`
	Display struct {
		HighlightUnestimated bool `yaml:"highlight_unestimated" json:"highlight_unestimated"`
		ShowBoardTotal       bool `yaml:"show_board_total" json:"show_board_total"`
	} `yaml:"display" json:"display"`
	Columns struct {
		Ignored                []string `yaml:"ignored" json:"ignored"`
		ExcludedFromBoardTotal []string `yaml:"excluded_from_board_total" json:"excluded_from_board_total"`
	} `yaml:"columns" json:"columns"`
}

const (
	defaultIntervalMS = 3000
	minIntervalMS     = 100
)

// Validate ensures the config meets required structure. board.id may be
// empty; the board is then named on the command line.
func (c *Config) Validate() error {
	if c.Refresh.IntervalMS < minIntervalMS {
		return fmt.Errorf("config.refresh.interval_ms must be at least %d", minIntervalMS)
	}
	if c.Estimate.Tag == "" {
		return fmt.Errorf("config.estimate.tag is required")
	}
	for _, r := range c.Estimate.Tag {
		if r == ' ' || r == '\t' || r == '\n' || r == '`' {
			return fmt.Errorf("config.estimate.tag %q must be a single word", c.Estimate.Tag)
		}
	}
	for _, name := range c.Columns.Ignored {
		if name == "" {
			return fmt.Errorf("config.columns.ignored contains empty column name")
		}
	}
	for _, name := range c.Columns.ExcludedFromBoardTotal {
		if name == "" {
			return fmt.Errorf("config.columns.excluded_from_board_total contains empty column name")
		}
	}
	return nil
}

// RefreshInterval is the cadence the poller re-runs a refresh at.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalMS) * time.Millisecond
}

// EstimateOptions converts the config into the options a refresh runs with.
// The name lists are copied so later edits to c cannot leak into a cycle.
func (c *Config) EstimateOptions() estimate.Options {
	return estimate.Options{
		Tag:                    c.Estimate.Tag,
		Marker:                 c.Estimate.Marker,
		HighlightUnestimated:   c.Display.HighlightUnestimated,
		ShowBoardTotal:         c.Display.ShowBoardTotal,
		IgnoredColumns:         append([]string(nil), c.Columns.Ignored...),
		ExcludedFromBoardTotal: append([]string(nil), c.Columns.ExcludedFromBoardTotal...),
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "storypoints.yml")
}

// GenerateDefault returns default config YAML. The board id is written as a
// quoted scalar so any id round-trips.
func GenerateDefault(boardID string) string {
	return fmt.Sprintf(defaultTemplate, yamlScalar(boardID))
}

func yamlScalar(v string) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return strconv.Quote(v)
	}
	return strings.TrimSuffix(string(out), "\n")
}

// defaults is the template parsed once; it holds no board id.
var defaults = func() Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault("")), &cfg); err != nil {
		panic(fmt.Sprintf("config: default template: %v", err))
	}
	return cfg
}()

// Default returns the default Config struct for a board.
func Default(boardID string) *Config {
	cfg := defaults
	cfg.Columns.Ignored = append([]string{}, defaults.Columns.Ignored...)
	cfg.Columns.ExcludedFromBoardTotal = append([]string{}, defaults.Columns.ExcludedFromBoardTotal...)
	cfg.Board.ID = boardID
	return &cfg
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	cfg.Columns.Ignored = nil
	cfg.Columns.ExcludedFromBoardTotal = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Refresh.IntervalMS == 0 {
		cfg.Refresh.IntervalMS = defaultIntervalMS
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `board:
  id: %s

refresh:
  interval_ms: 3000

estimate:
  tag: est
  marker: "SP:"

display:
  highlight_unestimated: true
  show_board_total: true

columns:
  ignored: []
  excluded_from_board_total: []
`
