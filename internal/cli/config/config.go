package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/datanovaai/marketplace-backend/consumer"
)

// Config is the top-level marketplace configuration file.
type Config struct {
	Marketplace MarketplaceConfig `yaml:"marketplace"`
}

type MarketplaceConfig struct {
	StoragePath string                    `yaml:"storage_path"`
	JournalPath string                    `yaml:"journal_path"`
	Blobstore   BlobstoreConfig           `yaml:"blobstore"`
	Ledger      LedgerConfig              `yaml:"ledger"`
	Consumers   []consumer.ConsumerConfig `yaml:"consumers"`
}

type BlobstoreConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path"`
}

type LedgerConfig struct {
	ProgramID      string `yaml:"program_id"`
	ConfirmCreate  *bool  `yaml:"confirm_create"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}

	if cfg.Marketplace.StoragePath == "" {
		cfg.Marketplace.StoragePath = "data"
	}

	return &cfg, nil
}

// StoreConfig converts the marketplace section into the map form the
// datastore constructor expects.
func (c *Config) StoreConfig() map[string]interface{} {
	out := map[string]interface{}{
		"storage_path": c.Marketplace.StoragePath,
	}
	if c.Marketplace.JournalPath != "" {
		out["journal_path"] = c.Marketplace.JournalPath
	}
	return out
}
