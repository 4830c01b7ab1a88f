// Package config resolves the effective run configuration from defaults,
// a YAML config file, the process environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read into the config
const EnvPrefix = "GEOSPLIT"

// Options tells Load where to look
type Options struct {
	// ConfigFile is an explicit config path. When empty, ./geosplit.yaml
	// and $HOME/.geosplit/config.yaml are searched.
	ConfigFile string
	// EnvFile is a dotenv file whose values override the process
	// environment. A missing file is not an error.
	EnvFile string
	// Environ is the process environment, os.Environ() when nil
	Environ []string
}

// Loaded is the resolved configuration plus where it came from
type Loaded struct {
	Config     *model.Config
	ConfigFile string // empty if no file was read
	EnvFile    string // empty if no dotenv file was read
}

// Load resolves the configuration. It never mutates the process environment.
func Load(opts Options) (*Loaded, error) {
	v := viper.New()
	setDefaults(v, model.DefaultConfig())

	loaded := &Loaded{}

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		loaded.ConfigFile = v.ConfigFileUsed()
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	env := envMap(environ)

	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			loaded.EnvFile = opts.EnvFile
			for k, val := range dotenv {
				env[k] = val
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
	}

	applyEnv(v, env)

	cfg := &model.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	loaded.Config = cfg
	return loaded, nil
}

// findConfigFile returns the first existing default config location
func findConfigFile() string {
	candidates := []string{"geosplit.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".geosplit", "config.yaml"))
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// Validate rejects configurations the pipeline cannot run with
func Validate(cfg *model.Config) error {
	if cfg.Input.Dataset == "" {
		return fmt.Errorf("input.dataset must be set")
	}
	if cfg.Input.Boundaries == "" {
		return fmt.Errorf("input.boundaries must be set")
	}
	if cfg.Input.Category == "" {
		return fmt.Errorf("input.category must be set")
	}
	if strings.ContainsAny(cfg.Input.Category, `/\`) {
		return fmt.Errorf("input.category %q must not contain path separators", cfg.Input.Category)
	}
	if cfg.Output.Root == "" {
		return fmt.Errorf("output.root must be set")
	}
	if cfg.Spatial.GeometryColumn == "" {
		return fmt.Errorf("spatial.geometry_column must be set")
	}
	if cfg.Tools.Timeout < 0 {
		return fmt.Errorf("tools.timeout must not be negative")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return err
	}
	return nil
}

// keys lists every leaf key of model.Config, so env lookups work
// without a config file declaring them first.
var keys = []string{
	"input.root",
	"input.dataset",
	"input.boundaries",
	"input.boundary_ext",
	"input.category",
	"output.root",
	"output.verbose",
	"spatial.geometry_column",
	"spatial.compression",
	"spatial.install_extension",
	"spatial.threads",
	"spatial.memory_limit",
	"tools.ogr2ogr",
	"tools.sozip",
	"tools.timeout",
	"policy.filter",
	"policy.convert",
	"policy.archive",
	"policy.cleanup",
	"cache.enabled",
	"cache.dir",
	"cache.memory_ttl",
	"cache.disk_ttl",
	"log.level",
	"log.format",
	"metrics.file",
}

// EnvName returns the environment variable consulted for a config key,
// e.g. spatial.geometry_column -> GEOSPLIT_SPATIAL_GEOMETRY_COLUMN.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func applyEnv(v *viper.Viper, env map[string]string) {
	for _, key := range keys {
		if val, ok := env[EnvName(key)]; ok && val != "" {
			v.Set(key, val)
		}
	}
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok {
			m[k] = val
		}
	}
	return m
}

func setDefaults(v *viper.Viper, d *model.Config) {
	v.SetDefault("input.root", d.Input.Root)
	v.SetDefault("input.dataset", d.Input.Dataset)
	v.SetDefault("input.boundaries", d.Input.Boundaries)
	v.SetDefault("input.boundary_ext", d.Input.BoundaryExt)
	v.SetDefault("input.category", d.Input.Category)
	v.SetDefault("output.root", d.Output.Root)
	v.SetDefault("output.verbose", d.Output.Verbose)
	v.SetDefault("spatial.geometry_column", d.Spatial.GeometryColumn)
	v.SetDefault("spatial.compression", d.Spatial.Compression)
	v.SetDefault("spatial.install_extension", d.Spatial.InstallExtension)
	v.SetDefault("spatial.threads", d.Spatial.Threads)
	v.SetDefault("spatial.memory_limit", d.Spatial.MemoryLimit)
	v.SetDefault("tools.ogr2ogr", d.Tools.Ogr2ogr)
	v.SetDefault("tools.sozip", d.Tools.Sozip)
	v.SetDefault("tools.timeout", d.Tools.Timeout)
	v.SetDefault("policy.filter", string(d.Policy.Filter))
	v.SetDefault("policy.convert", string(d.Policy.Convert))
	v.SetDefault("policy.archive", string(d.Policy.Archive))
	v.SetDefault("policy.cleanup", string(d.Policy.Cleanup))
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.file", d.Metrics.File)
}
