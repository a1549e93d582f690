package common

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// ClientConfig carries environment-driven defaults for opening
// connections. Every field can also be set programmatically; the env
// layer only fills in what the caller left untouched.
type ClientConfig struct {
	URL          string        `env:"REDWIRE_URL,default=redis://127.0.0.1:6379"`
	DialTimeout  time.Duration `env:"REDWIRE_DIAL_TIMEOUT,default=5s"`
	ReadTimeout  time.Duration `env:"REDWIRE_READ_TIMEOUT,default=0"`
	WriteTimeout time.Duration `env:"REDWIRE_WRITE_TIMEOUT,default=0"`
	PoolSize     int           `env:"REDWIRE_POOL_SIZE,default=8"`
}

// LoadClientConfig reads ".env.local" if present, then the process
// environment.
func LoadClientConfig(ctx context.Context) (*ClientConfig, error) {
	config := ClientConfig{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
