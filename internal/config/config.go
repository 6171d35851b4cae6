// Package config loads settings from defaults, an optional config file,
// IDPHOTO_* environment variables and command-line flags, in increasing order
// of priority.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"idphoto/internal/logging"
)

// EnvPrefix is prepended to environment variable names: server.addr is read
// from IDPHOTO_SERVER_ADDR.
const EnvPrefix = "IDPHOTO"

// DefaultAddr listens on loopback only.
const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       logging.Config  `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" default:"127.0.0.1:8080" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"2m" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"10s" validate:"gt=0"`
	CSRFSecret      string        `mapstructure:"csrf_secret"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies" validate:"dive,cidr"`
}

// PipelineConfig holds the image settings. It is the only section that is
// reloaded while the server runs.
type PipelineConfig struct {
	MaxUploadBytes     int64   `mapstructure:"max_upload_bytes" default:"26214400" validate:"gt=0"`
	MaxSourceDimension int     `mapstructure:"max_source_dimension" default:"8000" validate:"gt=0"`
	PreviewDimension   int     `mapstructure:"preview_dimension" default:"480" validate:"gt=0,lte=2000"`
	DefaultFormat      string  `mapstructure:"default_format" default:"jpeg" validate:"oneof=jpeg jpg png webp avif"`
	DefaultQuality     float64 `mapstructure:"default_quality" default:"0.92" validate:"gte=0,lte=1"`
	DefaultBackground  string  `mapstructure:"default_background" default:"#ffffff" validate:"required"`
	DefaultFilter      string  `mapstructure:"default_filter" default:"catmullrom" validate:"oneof=catmullrom bicubic bilinear lanczos mitchell"`
	AVIFSpeed          int     `mapstructure:"avif_speed" default:"6" validate:"gte=0,lte=10"`
	PresetsFile        string  `mapstructure:"presets_file"`
}

type SessionConfig struct {
	MaxSessions   int           `mapstructure:"max_sessions" default:"256" validate:"gt=0"`
	MaxIdle       time.Duration `mapstructure:"max_idle" default:"30m" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" default:"1m" validate:"gt=0"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute" default:"120" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" default:"30" validate:"gt=0"`
	LockoutDuration   time.Duration `mapstructure:"lockout_duration" default:"5m" validate:"gte=0"`
	MaxViolations     int           `mapstructure:"max_violations" default:"50" validate:"gte=0"`
}

// Default returns a Config holding only the default values.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Loader reads and optionally watches configuration.
type Loader struct {
	v    *viper.Viper
	path string
	mu   sync.Mutex
}

// NewLoader prepares a loader. path may be empty. flags, when non-nil, are
// bound by FlagKeys: a flag overrides its key only when set explicitly.
func NewLoader(path string, flags *pflag.FlagSet, flagKeys map[string]string) (*Loader, error) {
	v := viper.New()
	registerDefaults(v, "", reflect.ValueOf(Default()).Elem())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q for key %s", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return &Loader{v: v, path: path}, nil
}

// Load decodes, completes and validates the current settings.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch reloads the config file on change and passes every valid result to fn.
// Invalid edits are logged and ignored. It is a no-op without a config file.
func (l *Loader) Watch(fn func(*Config)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			zap.L().Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		zap.L().Info("config reloaded", zap.String("file", e.Name))
		fn(cfg)
	})
	l.v.WatchConfig()
}

// registerDefaults walks the struct and calls SetDefault for every leaf so
// AutomaticEnv knows every key.
func registerDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
