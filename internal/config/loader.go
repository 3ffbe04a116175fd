// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC to prevent timezone drift between workers.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate Config.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the configuration from the environment. It returns a
// diagnostic error when a required value is missing or malformed; callers
// are expected to treat any error as fatal.
func Load() (*Config, error) {
	// All persisted timestamps and scheduling decisions are UTC.
	time.Local = time.UTC

	// Development convenience; absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return &cfg, nil
}
