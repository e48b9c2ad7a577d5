package cli

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/pgbulk/internal/config"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const defaultConfigFile = config.ConfigFileName

// loadProjectConfig loads .env and the project file.
// With no --config flag a missing ./pgbulk.yaml is not an error and yields nil.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		projectCfg, err := config.Load(".")
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", defaultConfigFile, err)
		}
		return projectCfg, nil
	}

	projectCfg, err := config.LoadFile(path)
	if errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("config file %s not found: %w", path, pgbulk.ErrInvalidConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return projectCfg, nil
}
