package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
	validate   = validator.New(validator.WithRequiredStructEnabled())
)

// Config holds all configuration settings.
type Config struct {
	// Server configuration
	Server struct {
		Host string `mapstructure:"host" validate:"required"`
		Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	} `mapstructure:"server"`
	// Module configuration
	Modules struct {
		Path     string `mapstructure:"path"      validate:"required"`
		PoolSize int    `mapstructure:"pool_size" validate:"min=1,max=1024"`
	} `mapstructure:"modules"`
	// Engine configuration
	Engine struct {
		Kind             string `mapstructure:"kind"               validate:"oneof=auto compiler interpreter"`
		CacheDir         string `mapstructure:"cache_dir"`
		MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" validate:"max=65536"`
	} `mapstructure:"engine"`
	// WASI configuration
	WASI struct {
		Args          []string          `mapstructure:"args"`
		Env           map[string]string `mapstructure:"env"`
		PreopenedDirs []string          `mapstructure:"preopened_dirs" validate:"dive,dir"`
		MapDirs       map[string]string `mapstructure:"map_dirs"       validate:"dive,keys,startswith=/,endkeys,dir"`
	} `mapstructure:"wasi"`
	// Logging configuration
	Log struct {
		Level  string `mapstructure:"level"  validate:"oneof=trace debug info warn error"`
		Format string `mapstructure:"format" validate:"oneof=human json"`
	} `mapstructure:"log"`
}

// Initialize sets up the configuration system. A non-empty cfgFile replaces the search
// paths; flags, when given, override file and environment values.
func Initialize(cfgFile string, flags *pflag.FlagSet) error {
	if err := ensureConfig(); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	v = New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		for _, path := range []string{".", "$HOME/.go_wapc", "/etc/go_wapc/"} {
			v.AddConfigPath(path)
		}
	}

	if flags != nil {
		if err := BindFlags(v, flags); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := Load(v)
	if err != nil {
		return err
	}
	configData = *cfg

	return nil
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	nv := viper.New()

	nv.SetConfigName("config") // name of config file (without extension)
	nv.SetConfigType("yaml")

	setDefaults(nv)

	nv.SetEnvPrefix("GOWAPC")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	return nv
}

// Load decodes and validates the configuration held by nv.
func Load(nv *viper.Viper) (*Config, error) {
	var cfg Config
	if err := nv.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(nv *viper.Viper) {
	nv.SetDefault("server.host", "localhost")
	nv.SetDefault("server.port", 1500)

	nv.SetDefault("modules.path", "modules")
	nv.SetDefault("modules.pool_size", 4)

	nv.SetDefault("engine.kind", string(engine.EngineAuto))
	nv.SetDefault("engine.cache_dir", "")
	nv.SetDefault("engine.memory_limit_pages", 0)

	nv.SetDefault("wasi.args", []string{})
	nv.SetDefault("wasi.env", map[string]string{})
	nv.SetDefault("wasi.preopened_dirs", []string{})
	nv.SetDefault("wasi.map_dirs", map[string]string{})

	nv.SetDefault("log.level", "info")
	nv.SetDefault("log.format", "human")
}

// BindFlags binds command flags to their configuration keys. Flags are looked up by the
// key with dots and underscores turned into dashes, e.g. --modules-path.
func BindFlags(nv *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	for _, key := range nv.AllKeys() {
		name := strings.NewReplacer(".", "-", "_", "-").Replace(key)
		if f := flags.Lookup(name); f != nil {
			errs = append(errs, nv.BindPFlag(key, f))
		}
	}

	return errors.Join(errs...)
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	dir := filepath.Join(os.Getenv("HOME"), ".go_wapc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		defaultConfig := `# GO waPC Configuration File
server:
  host: localhost
  port: 1500

modules:
  path: modules
  pool_size: 4

engine:
  kind: auto
  cache_dir: ""
  memory_limit_pages: 0

wasi:
  args: []
  env: {}
  preopened_dirs: []
  map_dirs: {}

log:
  level: info
  format: human
`
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// EngineOptions translates the engine and WASI settings into provider options.
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithEngine(engine.EngineKind(c.Engine.Kind)),
		engine.WithWASI(engine.WASIParams{
			Args:          c.WASI.Args,
			Env:           c.WASI.Env,
			PreopenedDirs: c.WASI.PreopenedDirs,
			MapDirs:       c.WASI.MapDirs,
		}),
	}
	if c.Engine.CacheDir != "" {
		opts = append(opts, engine.WithCompilationCacheDir(c.Engine.CacheDir))
	}
	if c.Engine.MemoryLimitPages > 0 {
		opts = append(opts, engine.WithMemoryLimitPages(c.Engine.MemoryLimitPages))
	}

	return opts
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}
