// Package config loads tagmend settings from a YAML file, TAGMEND_*
// environment variables and CLI flags through viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jmylchreest/tagmend/pkg/contentcache"
	"github.com/jmylchreest/tagmend/pkg/fetcher"
	"github.com/jmylchreest/tagmend/pkg/repair"
)

// EnvPrefix prefixes every environment variable, e.g. TAGMEND_PASS_LIMIT.
const EnvPrefix = "TAGMEND"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// File mirrors the configuration file layout.
type File struct {
	Features       []string           `mapstructure:"features" validate:"dive,required"`
	Pattern        string             `mapstructure:"pattern"`
	PassLimit      int                `mapstructure:"pass_limit" validate:"gte=0"`
	UTF8RetryLimit int                `mapstructure:"utf8_retry_limit" validate:"gte=0"`
	ArtifactDir    string             `mapstructure:"artifact_dir"`
	MaxInputSize   string             `mapstructure:"max_input_size" validate:"required"`
	Patches        []repair.PatchSpec `mapstructure:"patches" validate:"dive"`
	Cache          CacheFile          `mapstructure:"cache"`
	Serve          ServeFile          `mapstructure:"serve"`
}

// CacheFile holds the content cache and download settings.
type CacheFile struct {
	Dir         string        `mapstructure:"dir"`
	WindowSize  time.Duration `mapstructure:"window_size" validate:"gte=0"`
	WindowLimit int           `mapstructure:"window_limit"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// ServeFile holds the HTTP server settings.
type ServeFile struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// Config is the resolved configuration.
type Config struct {
	Repair       *repair.Config
	Features     repair.Features
	Pattern      *regexp.Regexp
	MaxInputSize uint64
	Cache        contentcache.Config
	Serve        ServeFile
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("features", []string{"all"})
	v.SetDefault("pattern", "")
	v.SetDefault("pass_limit", repair.DefaultPassLimit)
	v.SetDefault("utf8_retry_limit", repair.DefaultUTF8RetryLimit)
	v.SetDefault("artifact_dir", repair.DefaultArtifactDir)
	v.SetDefault("max_input_size", "10MB")

	throttle := contentcache.DefaultThrottleConfig()
	v.SetDefault("cache.dir", "var/cache")
	v.SetDefault("cache.window_size", throttle.WindowSize)
	v.SetDefault("cache.window_limit", throttle.WindowLimit)
	v.SetDefault("cache.min_interval", throttle.MinInterval)
	v.SetDefault("cache.timeout", fetcher.DefaultStaticConfig().Timeout)
	v.SetDefault("cache.user_agent", "")

	v.SetDefault("serve.addr", "127.0.0.1:8080")
}

// BindEnv enables TAGMEND_* environment variables on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Load decodes, validates and resolves the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return Resolve(f)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Resolve validates f and builds the runtime configuration from it.
func Resolve(f File) (*Config, error) {
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	features, err := repair.ParseFeatures(f.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var pattern *regexp.Regexp
	if f.Pattern != "" {
		pattern, err = regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern: %v", ErrInvalidConfig, err)
		}
		if pattern.NumSubexp() < 1 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, repair.ErrInvalidPattern)
		}
	}

	maxSize, err := humanize.ParseBytes(f.MaxInputSize)
	if err != nil {
		return nil, fmt.Errorf("%w: max_input_size: %v", ErrInvalidConfig, err)
	}

	rc := repair.DefaultConfig()
	rc.PassLimit = f.PassLimit
	rc.UTF8RetryLimit = f.UTF8RetryLimit
	rc.ArtifactDir = f.ArtifactDir
	if len(f.Patches) > 0 {
		extra, err := repair.CompilePatches(f.Patches)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		rc.Patches = append(rc.Patches, extra...)
	}

	return &Config{
		Repair:       rc,
		Features:     features,
		Pattern:      pattern,
		MaxInputSize: maxSize,
		Cache: contentcache.Config{
			Dir: f.Cache.Dir,
			Throttle: contentcache.ThrottleConfig{
				WindowSize:  f.Cache.WindowSize,
				WindowLimit: f.Cache.WindowLimit,
				MinInterval: f.Cache.MinInterval,
			},
			Fetch: fetcher.Options{
				UserAgent: f.Cache.UserAgent,
				Timeout:   f.Cache.Timeout,
			},
		},
		Serve: f.Serve,
	}, nil
}
