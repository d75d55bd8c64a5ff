package pipeline

import (
	"fmt"

	"github.com/local/pictopdf/internal/config"
	"github.com/local/pictopdf/internal/sequence"
)

// NewCounter builds the sequence counter backend named in cfg. The returned
// close function releases any connection and is never nil.
func NewCounter(cfg config.CounterConfig) (sequence.Counter, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "file":
		return sequence.NewFileCounter(cfg.File), noop, nil
	case "memory":
		return sequence.NewMemoryCounter(1), noop, nil
	case "redis":
		c, err := sequence.NewRedisCounter(cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown counter backend %q", cfg.Backend)
	}
}
