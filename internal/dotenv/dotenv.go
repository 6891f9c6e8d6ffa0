// Package dotenv pre-populates the process environment from .env files.
package dotenv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const DefaultFile = ".env"

// Load reads each file that exists into the environment and returns the ones
// it read. Variables already set in the environment are never overwritten.
// Missing files are skipped.
func Load(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	loaded := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}
