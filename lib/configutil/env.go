package configutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadDotenv loads the given dotenv files into the process environment,
// files that don't exist are skipped and variables already set win.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
		slog.Debug("loaded dotenv file", "file", f)
	}
	return nil
}

// ApplyEnv overwrites the fields of out tagged with `env` from the
// environment, every variable name is prefixed with prefix.
func ApplyEnv[T any](out *T, prefix string) error {
	return env.ParseWithOptions(out, env.Options{
		Prefix:      prefix,
		Environment: env.ToMap(os.Environ()),
	})
}

// Load reads name recursively as in ReadRecursively (a missing file yields
// the zero value), loads .env, applies environment overrides under prefix
// and validates the result.
func Load[T any](name, prefix string) (T, error) {
	out, err := ReadRecursively[T](name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if os.IsNotExist(err) {
		slog.Debug("config file not found, using environment only", "name", name)
	}

	err = LoadDotenv(".env")
	if err != nil {
		return out, err
	}
	err = ApplyEnv(&out, prefix)
	if err != nil {
		return out, fmt.Errorf("env overrides: %w", err)
	}
	err = Validate(out)
	if err != nil {
		return out, err
	}
	return out, nil
}
