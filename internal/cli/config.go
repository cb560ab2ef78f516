// Package cli is the command line client of the goal tracking API. It keeps the credential
// pair in a local bolt database and sends every request through the authenticated gateway.
package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/joho/godotenv"
)

const credentialsFile string = "credentials.db"

// Config is read from the environment, a .env file in the working directory is loaded first.
// The API variables use the same names as the gateway server.
type Config struct {
	APIBaseURL        url.URL       `env:"GATEWAY_API_BASEURL" envDefault:"http://localhost:8080"`
	RequestTimeout    time.Duration `env:"GATEWAY_API_REQUESTTIMEOUT" envDefault:"30s"`
	RefreshTimeout    time.Duration `env:"GATEWAY_REFRESH_TIMEOUT" envDefault:"15s"`
	WaitTimeout       time.Duration `env:"GATEWAY_REFRESH_WAITTIMEOUT" envDefault:"30s"`
	CookieFallbackTTL time.Duration `env:"GATEWAY_COOKIE_FALLBACKTTL" envDefault:"24h"`
	// Directory of the credential database, defaults to ~/.goalgrid
	Home string `env:"GOALGRID_HOME"`
	// 32 byte key, the stored tokens are encrypted when set
	EncryptionKey string `env:"GOALGRID_ENCRYPTION_KEY"`
	Debug         bool   `env:"GOALGRID_DEBUG" envDefault:"false"`
}

func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("cannot find the home directory, set GOALGRID_HOME: %w", err)
		}
		cfg.Home = filepath.Join(home, ".goalgrid")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	apiConfig := config.APIConfig{BaseURL: &c.APIBaseURL, RequestTimeout: c.RequestTimeout}
	if err := apiConfig.Validate(); err != nil {
		return err
	}
	refreshConfig := config.RefreshConfig{Timeout: c.RefreshTimeout, WaitTimeout: c.WaitTimeout}
	if err := refreshConfig.Validate(); err != nil {
		return err
	}
	cookieConfig := config.CookieConfig{FallbackTTL: c.CookieFallbackTTL}
	if err := cookieConfig.Validate(); err != nil {
		return err
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("the encryption key has to be 32 bytes long, the provided one is %d long", len(c.EncryptionKey))
	}
	return nil
}

// CredentialsPath is the location of the bolt database
func (c Config) CredentialsPath() string {
	return filepath.Join(c.Home, credentialsFile)
}
