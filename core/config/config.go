package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	mu    sync.Mutex
	cache = make(map[reflect.Type]any)
)

// Load parses environment variables into cfg. Each configuration type is
// loaded once per process; subsequent calls for the same type return the
// cached value. A .env file, if present, is loaded before the first parse.
func Load[T any](cfg *T) error {
	dotenvOnce.Do(func() {
		// Missing .env is the normal case outside local development.
		_ = godotenv.Load()
	})

	mu.Lock()
	defer mu.Unlock()

	key := reflect.TypeOf(*cfg)
	if cached, ok := cache[key]; ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", key, err)
	}

	cache[key] = *cfg
	return nil
}

// MustLoad is Load that panics on failure. Useful at startup where a
// missing required variable should stop the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
