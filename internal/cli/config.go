package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/geosplit/internal/config"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initPath string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage geosplit configuration",
	Long: `Manage geosplit configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. .env file (GEOSPLIT_* entries, --env-file)
3. Environment variables (GEOSPLIT_*)
4. Config file (./geosplit.yaml or ~/.geosplit/config.yaml)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, environment, .env file and flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := currentConfig()
		if err := applySplitFlags(cmd, cfg); err != nil {
			return err
		}

		errOut := cmd.ErrOrStderr()
		if loaded != nil && loaded.ConfigFile != "" {
			fmt.Fprintf(errOut, "Configuration file: %s\n", loaded.ConfigFile)
		} else {
			fmt.Fprintf(errOut, "No configuration file found (using defaults)\n")
		}
		if loaded != nil && loaded.EnvFile != "" {
			fmt.Fprintf(errOut, "Env file: %s\n", loaded.EnvFile)
		}
		fmt.Fprintln(errOut)

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(yamlData)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a configuration file with every option set to its default (~/.geosplit/config.yaml unless --path is given).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := initPath
		if configPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			configPath = filepath.Join(home, ".geosplit", "config.yaml")
		}

		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created default configuration: %s\n", configPath)
		fmt.Fprintf(out, "\nTo view the effective configuration:\n")
		fmt.Fprintf(out, "  geosplit config show --config %s\n", configPath)
		return nil
	},
}

// writeDefaultConfig writes the default configuration with a header
// explaining the override order. It refuses to overwrite a file.
func writeDefaultConfig(path string) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'geosplit config show' to view it, or delete it first to recreate", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	header := fmt.Sprintf(`# geosplit configuration
#
# Every key can also be set through the environment, e.g.
#   %s=roads
#   %s=abort
# Values in a .env file override the environment.

`, config.EnvName("input.category"), config.EnvName("policy.filter"))

	if _, err := f.WriteString(header); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	if _, err := f.Write(yamlData); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

func init() {
	configInitCmd.Flags().StringVar(&initPath, "path", "", "where to write the config file")
	addSplitFlags(configShowCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
