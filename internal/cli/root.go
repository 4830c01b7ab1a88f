package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/geosplit/internal/config"
	"github.com/ppiankov/geosplit/internal/logger"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const version = "v0.3.0"

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logLevel  string
	logFormat string

	// set by PersistentPreRunE
	loaded *config.Loaded
	log    zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "geosplit",
	Short: "geosplit - split a footprint dataset by boundary polygons",
	Long: `geosplit splits a large GeoParquet feature dataset (e.g. Overture building
footprints) into one subset per administrative boundary file.

For every inputs/boundaries/*.parquet it:
  1. selects the dataset rows intersecting the boundary (DuckDB + spatial)
     and writes outputs/<category>/<dataset>/<boundary>.parquet (zstd)
  2. converts it to <boundary>.gpkg with ogr2ogr
  3. packs the GeoPackage into <boundary>.gpkg.zip with sozip
  4. removes the intermediate <boundary>.gpkg

Running geosplit without a subcommand is the same as 'geosplit split'.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "geosplit %s\n", version)
	},
}

func init() {
	rootCmd.PersistentPreRunE = initConfig
	rootCmd.RunE = runSplit

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./geosplit.yaml or $HOME/.geosplit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file whose GEOSPLIT_* values override the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")

	addSplitFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

// initConfig resolves the configuration and builds the logger
func initConfig(cmd *cobra.Command, args []string) error {
	l, err := config.Load(config.Options{ConfigFile: cfgFile, EnvFile: envFile})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		l.Config.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		l.Config.Log.Format = logFormat
	}
	if verbose {
		l.Config.Output.Verbose = true
		l.Config.Log.Level = "debug"
	}

	loaded = l
	log = logger.Build(logger.Config{Level: l.Config.Log.Level, Format: l.Config.Log.Format}, os.Stderr)

	if l.ConfigFile != "" {
		log.Debug().Str("file", l.ConfigFile).Msg("using config file")
	}
	if l.EnvFile != "" {
		log.Debug().Str("file", l.EnvFile).Msg("using env file")
	}
	return nil
}

// currentConfig returns the loaded configuration
func currentConfig() *model.Config {
	if loaded == nil {
		return model.DefaultConfig()
	}
	return loaded.Config
}
