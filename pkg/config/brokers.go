package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Supported broker types.
const (
	BrokerTypePaper   = "paper"
	BrokerTypeAlpaca  = "alpaca"
	BrokerTypeBinance = "binance"
)

// BrokerConfig describes one venue in the registry file.
type BrokerConfig struct {
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`
	Priority  int    `yaml:"priority"`
	Disabled  bool   `yaml:"disabled,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	APISecret string `yaml:"api_secret,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	DataURL   string `yaml:"data_url,omitempty"`
	Testnet   bool   `yaml:"testnet,omitempty"`
}

type brokersFile struct {
	Brokers []BrokerConfig `yaml:"brokers"`
}

// DefaultBrokers is the registry used when no file is configured.
func DefaultBrokers() []BrokerConfig {
	return []BrokerConfig{{ID: "paper", Type: BrokerTypePaper, Priority: 1}}
}

// LoadBrokers reads a YAML broker registry. ${VAR} references are
// expanded from the environment so secrets stay out of the file.
func LoadBrokers(path string) ([]BrokerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBrokers(data)
}

// ParseBrokers decodes a YAML broker registry and drops disabled entries.
func ParseBrokers(data []byte) ([]BrokerConfig, error) {
	var file brokersFile
	err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file)
	if err != nil {
		return nil, fmt.Errorf("parse brokers: %w", err)
	}

	brokers := make([]BrokerConfig, 0, len(file.Brokers))
	for _, b := range file.Brokers {
		if b.Disabled {
			continue
		}
		if b.ID == "" {
			b.ID = b.Type
		}
		brokers = append(brokers, b)
	}

	err = validateBrokers(brokers)
	if err != nil {
		return nil, err
	}
	return brokers, nil
}

func validateBrokers(brokers []BrokerConfig) error {
	seen := make(map[string]bool, len(brokers))
	for _, b := range brokers {
		if b.ID == "" {
			return fmt.Errorf("broker id cannot be empty")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate broker id %q", b.ID)
		}
		seen[b.ID] = true

		switch b.Type {
		case BrokerTypePaper:
		case BrokerTypeAlpaca, BrokerTypeBinance:
			if b.APIKey == "" || b.APISecret == "" {
				return fmt.Errorf("broker %q: api_key and api_secret are required", b.ID)
			}
		default:
			return fmt.Errorf("broker %q: unknown type %q", b.ID, b.Type)
		}
	}
	return nil
}
