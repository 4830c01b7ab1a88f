package model

import "time"

// Config is the complete runtime configuration for a split run.
// It is loaded once at startup and passed explicitly to the pipeline.
type Config struct {
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Spatial SpatialConfig `yaml:"spatial" mapstructure:"spatial"`
	Tools   ToolsConfig   `yaml:"tools" mapstructure:"tools"`
	Policy  PolicyTable   `yaml:"policy" mapstructure:"policy"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// InputConfig locates the dataset and the boundary files
type InputConfig struct {
	Root        string `yaml:"root" mapstructure:"root"`
	Dataset     string `yaml:"dataset" mapstructure:"dataset"`
	Boundaries  string `yaml:"boundaries" mapstructure:"boundaries"`
	BoundaryExt string `yaml:"boundary_ext" mapstructure:"boundary_ext"`
	Category    string `yaml:"category" mapstructure:"category"`
}

// OutputConfig controls where artifacts are written
type OutputConfig struct {
	Root    string `yaml:"root" mapstructure:"root"`
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
}

// SpatialConfig controls the embedded query engine
type SpatialConfig struct {
	GeometryColumn   string `yaml:"geometry_column" mapstructure:"geometry_column"`
	Compression      string `yaml:"compression" mapstructure:"compression"`
	InstallExtension bool   `yaml:"install_extension" mapstructure:"install_extension"`
	Threads          int    `yaml:"threads" mapstructure:"threads"` // 0 lets the engine decide
	MemoryLimit      string `yaml:"memory_limit" mapstructure:"memory_limit"`
}

// ToolsConfig names the external conversion tools
type ToolsConfig struct {
	Ogr2ogr string        `yaml:"ogr2ogr" mapstructure:"ogr2ogr"`
	Sozip   string        `yaml:"sozip" mapstructure:"sozip"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // 0 means no timeout
}

// CacheConfig controls the completion ledger
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"` // in-process file fingerprints
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the configuration matching the fixed layout
// inputs/buildings/overture.parquet + inputs/boundaries/*.parquet.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Root:        "inputs",
			Dataset:     "inputs/buildings/overture.parquet",
			Boundaries:  "inputs/boundaries",
			BoundaryExt: ".parquet",
			Category:    "buildings",
		},
		Output: OutputConfig{
			Root: "outputs",
		},
		Spatial: SpatialConfig{
			GeometryColumn:   "geometry",
			Compression:      "zstd",
			InstallExtension: true,
		},
		Tools: ToolsConfig{
			Ogr2ogr: "ogr2ogr",
			Sozip:   "sozip",
		},
		Policy: DefaultPolicyTable(),
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".geosplit-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
