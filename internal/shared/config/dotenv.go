package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"resumate/internal/shared/telemetry"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment are left alone.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			telemetry.Warn("config.dotenv_failed", map[string]any{"path": path, "error": err})
		}
	}
}
