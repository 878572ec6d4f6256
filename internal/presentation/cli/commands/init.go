package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/activitysync/internal/infrastructure/config"
	"github.com/jbctechsolutions/activitysync/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigDir   string `json:"config_dir"`
	ConfigFile  string `json:"config_file"`
	Initialized bool   `json:"initialized"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write ~/.activitysync/config.yaml (or the --config path) with default
settings. Credentials are never written; export IGPSPORT_USERNAME,
IGPSPORT_PASSWORD, GARMIN_EMAIL and GARMIN_PASSWORD instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return err
	}

	path := globalFlags.ConfigFile
	if path == "" {
		path = loader.DefaultConfigPath()
	}

	result := InitResult{ConfigDir: loader.ConfigDir(), ConfigFile: path}

	if _, err := os.Stat(path); err == nil && !force {
		if formatter.Format() == output.FormatJSON {
			return formatter.JSON(result)
		}
		formatter.Warning("%s already exists; use --force to overwrite", path)
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := loader.Save(config.NewDefaultConfig(), path); err != nil {
		return err
	}
	result.Initialized = true

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(result)
	}
	formatter.Success("Wrote %s", path)
	formatter.Println("  Set IGPSPORT_USERNAME, IGPSPORT_PASSWORD, GARMIN_EMAIL and GARMIN_PASSWORD, then run %s.",
		formatter.Bold("activitysync sync"))
	return nil
}
