// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable read through ParseEnv.
const Prefix = "FAIRROLL_"

// ParseEnv fills target from FAIRROLL_-prefixed environment variables.
// Struct tags name the variable without the prefix.
func ParseEnv(target any) error {
	return ParseEnvWithOptions(target, env.Options{Prefix: Prefix})
}

// ParseEnvWithOptions fills target using explicit parser options, which lets
// tests inject an environment map instead of mutating the process env.
func ParseEnvWithOptions(target any, opts env.Options) error {
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
