package vault

import (
	"fmt"

	"go.uber.org/zap"
)

// Open creates the configured mapping store backend.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case "memory":
		store, err := NewMemoryStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Created in-memory mapping store")
		return store, nil
	case "redis":
		store, err := NewRedisStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Created Redis mapping store")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vault backend: %s (must be memory or redis)", cfg.Backend)
	}
}
