package config

import (
	"fmt"

	"github.com/roach88/choreo/internal/executor"
	"github.com/roach88/choreo/internal/kv"
	"github.com/roach88/choreo/internal/kv/boltkv"
	"github.com/roach88/choreo/internal/kv/memkv"
	"github.com/roach88/choreo/internal/kv/sqlitekv"
)

// OpenStore opens the configured durable store.
func OpenStore(c StoreConfig) (kv.Store, error) {
	switch c.Driver {
	case "sqlite":
		s, err := sqlitekv.Open(c.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bolt":
		s, err := boltkv.Open(c.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memkv.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// NewExecutor builds the configured executor. A *executor.Serial does
// nothing until its Run loop is started.
func NewExecutor(c ExecutorConfig) (executor.Executor, error) {
	switch c.Kind {
	case "go":
		return executor.NewGo(), nil
	case "pool":
		return executor.NewPool(c.Workers), nil
	case "serial":
		return executor.NewSerial(), nil
	case "inline":
		return executor.Inline{}, nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", c.Kind)
	}
}
