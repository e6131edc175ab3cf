// Package config loads Shepherd's process configuration from the
// environment variables named by the external interfaces description.
// No YAML parser is implemented here (the argument parser and YAML
// configuration loader are out of scope per spec.md §1); this package
// only reads the named environment variables and applies the named
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultPGPort      = "5432"
	defaultMaxAttempts = 3
)

// Config is Shepherd's process-wide configuration, populated entirely
// from environment variables.
type Config struct {
	// Postgres connection, all required.
	PGHost     string
	PGPort     string
	PGDatabase string
	PGUsername string
	PGPassword string

	// Cluster submission. LSFGroup, PrepQueue and TransferQueue are
	// required; LSFConfig is optional.
	LSFConfig      string
	LSFGroup       string
	PrepQueue      string
	TransferQueue  string

	// IRODSBase is the target root for planned transfers.
	IRODSBase string

	// MaxAttempts is the default job retry budget. Default 3.
	MaxAttempts int

	// ShepherdLog is the directory worker stdout/stderr logs are written
	// under. Default is the process's current working directory.
	ShepherdLog string
}

// Load reads Config from the environment, applying the defaults named by
// the external interfaces description and failing loudly (per spec.md
// §7's "submit fails loudly on misconfiguration") if a required variable
// is unset.
func Load() (*Config, error) {
	c := &Config{
		PGPort:      envOr("PG_PORT", defaultPGPort),
		MaxAttempts: defaultMaxAttempts,
	}

	required := map[string]*string{
		"PG_HOST":        &c.PGHost,
		"PG_DATABASE":    &c.PGDatabase,
		"PG_USERNAME":    &c.PGUsername,
		"PG_PASSWORD":    &c.PGPassword,
		"LSF_GROUP":      &c.LSFGroup,
		"PREP_QUEUE":     &c.PrepQueue,
		"TRANSFER_QUEUE": &c.TransferQueue,
	}
	var missing []string
	for name, dst := range required {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			missing = append(missing, name)
			continue
		}
		*dst = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	c.LSFConfig = os.Getenv("LSF_CONFIG")
	c.IRODSBase = os.Getenv("IRODS_BASE")

	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: MAX_ATTEMPTS must be a positive integer, got %q", v)
		}
		c.MaxAttempts = n
	}

	if v := os.Getenv("SHEPHERD_LOG"); v != "" {
		c.ShepherdLog = v
	} else if wd, err := os.Getwd(); err == nil {
		c.ShepherdLog = wd
	}

	return c, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
