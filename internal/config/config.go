package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Join   JoinConfig   `yaml:"join" mapstructure:"join"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Buffer BufferConfig `yaml:"buffer" mapstructure:"buffer"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// JoinConfig configures the nearest-neighbor join.
type JoinConfig struct {
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	Precision        int    `yaml:"precision" mapstructure:"precision"`
	Index            string `yaml:"index" mapstructure:"index"`
	RTreeMin         int    `yaml:"rtree_min" mapstructure:"rtree_min"`
	RTreeMax         int    `yaml:"rtree_max" mapstructure:"rtree_max"`
	SourceIDField    string `yaml:"source_id_field" mapstructure:"source_id_field"`
	ReferenceIDField string `yaml:"reference_id_field" mapstructure:"reference_id_field"`
	DistanceField    string `yaml:"distance_field" mapstructure:"distance_field"`
	SourcePrefix     string `yaml:"source_prefix" mapstructure:"source_prefix"`
	ReferencePrefix  string `yaml:"reference_prefix" mapstructure:"reference_prefix"`
}

// InputConfig configures how input layers are read and fetched.
type InputConfig struct {
	Encoding       string `yaml:"encoding" mapstructure:"encoding"`
	CRS            string `yaml:"crs" mapstructure:"crs"`
	XColumn        string `yaml:"x_column" mapstructure:"x_column"`
	YColumn        string `yaml:"y_column" mapstructure:"y_column"`
	IDColumn       string `yaml:"id_column" mapstructure:"id_column"`
	FTPTimeoutSecs int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	TempDir        string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// BufferConfig configures circle buffers.
type BufferConfig struct {
	Radius   float64 `yaml:"radius" mapstructure:"radius"`
	Segments int     `yaml:"segments" mapstructure:"segments"`
	CRS      string  `yaml:"crs" mapstructure:"crs"`
}

// StoreConfig configures the PostGIS sink.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("geojoin")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOJOIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("join.workers", 1)
	v.SetDefault("join.batch_size", 1024)
	v.SetDefault("join.precision", 4)
	v.SetDefault("join.index", "rtree")
	v.SetDefault("join.rtree_min", 25)
	v.SetDefault("join.rtree_max", 50)
	v.SetDefault("join.source_id_field", "source_id")
	v.SetDefault("join.reference_id_field", "reference_id")
	v.SetDefault("join.distance_field", "distance")
	v.SetDefault("join.source_prefix", "src_")
	v.SetDefault("join.reference_prefix", "ref_")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.crs", "")
	v.SetDefault("input.x_column", "x")
	v.SetDefault("input.y_column", "y")
	v.SetDefault("input.id_column", "")
	v.SetDefault("input.ftp_timeout_secs", 30)
	v.SetDefault("input.temp_dir", "")
	v.SetDefault("buffer.radius", 10.0)
	v.SetDefault("buffer.segments", 36)
	v.SetDefault("buffer.crs", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.batch_size", 5000)
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is "join", "buffer"
// or "serve"; every problem found is reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkJoin := func() {
		if c.Join.Workers < 1 {
			errs = append(errs, "join.workers must be > 0")
		}
		if c.Join.BatchSize < 1 {
			errs = append(errs, "join.batch_size must be > 0")
		}
		if c.Join.Precision < 0 || c.Join.Precision > 15 {
			errs = append(errs, "join.precision must be between 0 and 15")
		}
		if c.Join.Index != "rtree" && c.Join.Index != "linear" {
			errs = append(errs, fmt.Sprintf("join.index %q must be rtree or linear", c.Join.Index))
		}
		if c.Join.RTreeMin < 1 || c.Join.RTreeMax < 2*c.Join.RTreeMin {
			errs = append(errs, "join.rtree_max must be at least twice join.rtree_min")
		}
		if c.Join.SourceIDField == "" || c.Join.ReferenceIDField == "" || c.Join.DistanceField == "" {
			errs = append(errs, "join field names must not be empty")
		}
	}
	checkBuffer := func() {
		if c.Buffer.Radius <= 0 {
			errs = append(errs, "buffer.radius must be > 0")
		}
		if c.Buffer.Segments < 3 {
			errs = append(errs, "buffer.segments must be >= 3")
		}
	}

	if c.Input.FTPTimeoutSecs < 0 {
		errs = append(errs, "input.ftp_timeout_secs must be >= 0")
	}
	if c.Store.BatchSize < 1 {
		errs = append(errs, "store.batch_size must be > 0")
	}

	switch mode {
	case "join":
		checkJoin()
	case "buffer":
		checkBuffer()
	case "serve":
		checkJoin()
		checkBuffer()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
