package tablesess

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/minus-twelve/tablesess/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTableName    = "TBLAPISESSIONS"
	DefaultPartitionKey = "PKSESSIONS"
	DefaultRedisPrefix  = "tablesess:"
)

var ErrInvalidConfig = errors.New("invalid config")

// DefaultConfig returns an in-memory configuration with the standard table
// name and partition key.
func DefaultConfig() types.Config {
	cfg := types.Config{Backend: "memory"}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.Backend == "" {
		cfg.Backend = "azure"
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.PartitionKey == "" {
		cfg.PartitionKey = DefaultPartitionKey
	}
	if cfg.Azure.Timeout == 0 {
		cfg.Azure.Timeout = 30 * time.Second
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Sweep.Schedule == "" {
		cfg.Sweep.Schedule = "@every 1h"
	}
}

func applyEnv(cfg *types.Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"TABLESESS_AZURE_ACCOUNT_NAME", &cfg.Azure.AccountName},
		{"TABLESESS_AZURE_ACCOUNT_KEY", &cfg.Azure.AccountKey},
		{"TABLESESS_AZURE_CONNECTION_STRING", &cfg.Azure.ConnectionString},
		{"TABLESESS_REDIS_PASSWORD", &cfg.Redis.Password},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.dst = v
		}
	}
}

// Validate checks that the selected backend has what it needs.
func Validate(cfg types.Config) error {
	switch cfg.Backend {
	case "azure":
		if cfg.Azure.ConnectionString == "" && (cfg.Azure.AccountName == "" || cfg.Azure.AccountKey == "") {
			return fmt.Errorf("%w: azure backend needs account_name and account_key or connection_string", ErrInvalidConfig)
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis backend needs addr", ErrInvalidConfig)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}

	if cfg.TableName == "" || cfg.PartitionKey == "" {
		return fmt.Errorf("%w: table_name and partition_key are required", ErrInvalidConfig)
	}
	if _, err := ParseExpiryPolicy(cfg.Sweep.Policy); err != nil {
		return err
	}
	return nil
}
