package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// 🎯 Load reads and validates the config for the watched root. An empty path means
// DefaultFileName under root; relative paths are resolved against root.
// Read failures are reported in Config.Errors like any other config problem.
func Load(ctx context.Context, root string, path string) *Config {
	path = ResolvePath(root, path)

	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("reading configuration")
		return &Config{
			RootPath: root,
			Port:     DefaultPort,
			Errors:   []string{fmt.Sprintf("%s: %s", ErrTextReadFailure, path)},
		}
	}

	return Validate(ctx, data, path, root)
}

// ResolvePath returns the config path Load would read
func ResolvePath(root string, path string) string {
	if path == "" {
		path = DefaultFileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path
}
