package tablesess

import (
	"context"
	"fmt"

	"github.com/minus-twelve/tablesess/storage"
	"github.com/minus-twelve/tablesess/types"
)

// CreateBackend builds the table backend selected by cfg.Backend.
func CreateBackend(ctx context.Context, cfg types.Config) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryBackend(cfg.TableName, cfg.PartitionKey, cfg.Memory), nil
	case "redis":
		return storage.NewRedisBackend(ctx, cfg.TableName, cfg.PartitionKey, cfg.Redis)
	case "azure":
		return storage.NewAzureBackend(cfg.TableName, cfg.PartitionKey, cfg.Azure)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

// CreateStore builds a TableStore over the configured backend. The sweep
// policy from cfg is applied before opts.
func CreateStore(ctx context.Context, cfg types.Config, opts ...Option) (*TableStore, error) {
	policy, err := ParseExpiryPolicy(cfg.Sweep.Policy)
	if err != nil {
		return nil, err
	}

	backend, err := CreateBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithExpiryPolicy(policy)}, opts...)
	return NewTableStore(backend, opts...), nil
}
