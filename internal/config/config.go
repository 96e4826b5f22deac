package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models bluepulse.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Forecast struct {
		BaseValues  map[string]float64 `yaml:"base_values"`
		DefaultBase float64            `yaml:"default_base"`
		Accuracy    float64            `yaml:"accuracy"`
		Model       string             `yaml:"model"`
	} `yaml:"forecast"`
	Simulation struct {
		StageSeconds  int `yaml:"stage_seconds"`
		EpochSeconds  int `yaml:"epoch_seconds"`
		DefaultEpochs int `yaml:"default_epochs"`
		QueueSize     int `yaml:"queue_size"`
	} `yaml:"simulation"`
	Chat struct {
		Rules      []ChatRule `yaml:"rules"`
		Default    string     `yaml:"default"`
		Confidence float64    `yaml:"confidence"`
		Model      string     `yaml:"model"`
	} `yaml:"chat"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// ChatRule pairs a keyword with its canned response. Rules are matched in
// file order, first hit wins.
type ChatRule struct {
	Keyword  string `yaml:"keyword"`
	Response string `yaml:"response"`
}

// Load reads and validates config from the workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with bluepulse config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" {
		return fmt.Errorf("config.server.base_path is required")
	}
	if c.Forecast.DefaultBase == 0 {
		return fmt.Errorf("config.forecast.default_base is required")
	}
	if c.Simulation.StageSeconds <= 0 {
		return fmt.Errorf("config.simulation.stage_seconds must be positive")
	}
	if c.Simulation.EpochSeconds <= 0 {
		return fmt.Errorf("config.simulation.epoch_seconds must be positive")
	}
	if c.Simulation.DefaultEpochs <= 0 {
		return fmt.Errorf("config.simulation.default_epochs must be positive")
	}
	if c.Chat.Default == "" {
		return fmt.Errorf("config.chat.default is required")
	}
	for i, rule := range c.Chat.Rules {
		if rule.Keyword == "" {
			return fmt.Errorf("chat rule %d has empty keyword", i)
		}
		if rule.Response == "" {
			return fmt.Errorf("chat rule %q has empty response", rule.Keyword)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bluepulse.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `server:
  addr: 0.0.0.0:8000
  base_path: /api
  # Open by default for local frontend work; restrict in production.
  cors_origins: ["*"]

forecast:
  base_values:
    temperature: 28.4
    salinity: 34.2
    chlorophyll: 2.1
    ph: 8.1
    oxygen: 6.8
  default_base: 25.0
  accuracy: 91.3
  model: LSTM

simulation:
  stage_seconds: 2
  epoch_seconds: 1
  default_epochs: 100
  queue_size: 128

chat:
  rules:
    - keyword: endangered
      response: "Based on current data, Kerala waters host 2 endangered and 1 critically endangered species. The endangered species are Malabar Grouper (Epinephelus malabaricus) with 15 specimens recorded, and Grey Reef Shark (Carcharhinus amblyrhynchos) with 8 specimens."
    - keyword: temperature
      response: "The average sea surface temperature across Kerala monitoring stations this month is 28.4°C, which is 0.6°C above the long-term average. Our LSTM model predicts that a 1°C temperature increase correlates with a 15% decline in sardine populations."
    - keyword: biodiversity
      response: "According to our eDNA analysis, the Trivandrum coast shows the highest biodiversity with an index of 4.2, detecting 15 species in recent samples. This is followed by Kochi waters (3.8 index, 12 species)."
    - keyword: edna
      response: "Environmental DNA metabarcoding achieves 96% accuracy for marine species detection when using 18S rRNA gene sequencing. Our Random Forest classifier successfully identified 287 eukaryotic families from 500 seawater samples."
  default: "I'm BluePulse AI, trained on 10,000+ marine research papers. I can help with species identification, environmental analysis, and conservation questions. What would you like to know?"
  confidence: 0.89
  model: DistilBERT

log:
  level: info
`
