// Package config loads server settings from IK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix of every variable read by Load.
const Prefix = "IK_"

// Config holds server settings. Zero DatabaseDSN selects the in-memory stores.
type Config struct {
	GRPCAddr         string        `env:"GRPC_ADDR" envDefault:":8443"`
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	DatabaseDSN      string        `env:"DATABASE_DSN"`
	JWTKey           string        `env:"JWT_KEY"`
	AccessTTL        time.Duration `env:"ACCESS_TTL" envDefault:"24h"`
	AdminEmails      []string      `env:"ADMIN_EMAILS" envSeparator:","`
	FlickerDelay     time.Duration `env:"FLICKER_DELAY" envDefault:"220ms"`
	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"0s"`
	TokenFile        string        `env:"TOKEN_FILE"`
	TLSCert          string        `env:"TLS_CERT"`
	TLSKey           string        `env:"TLS_KEY"`
	Dev              bool          `env:"DEV"`
}

// Load parses the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: Prefix, Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errList []error
	if c.JWTKey == "" {
		errList = append(errList, errors.New("missing JWT_KEY"))
	}
	if c.GRPCAddr == "" && c.HTTPAddr == "" {
		errList = append(errList, errors.New("no listen address"))
	}
	if c.AccessTTL <= 0 {
		errList = append(errList, errors.New("ACCESS_TTL must be positive"))
	}
	if c.FlickerDelay < 0 || c.ReconcileTimeout < 0 {
		errList = append(errList, errors.New("negative delay"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errList = append(errList, errors.New("TLS_CERT and TLS_KEY go together"))
	}
	return errors.Join(errList...)
}
