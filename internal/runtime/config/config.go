package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DefaultSpinCount is the number of idle polls a circuit worker performs
	// before parking.
	DefaultSpinCount = 1000
	// DefaultIntrospectionPort serves /api/circuits when no port is set.
	DefaultIntrospectionPort = 8081
	// DefaultTransport is the in-process bridge transport.
	DefaultTransport = "channel"

	envPrefix = "SIGNALFLOW_"
)

// Config groups the settings shared by every circuit a Cortex creates and by
// the HTTP surfaces it exposes.
type Config struct {
	// SpinCount bounds how long an idle worker polls before parking. Zero
	// selects DefaultSpinCount.
	SpinCount int

	// Transport names the watermill transport used by bridges. Defaults to
	// "channel" (in-process Go channels).
	Transport string
	// TransportBufferSize is the output buffer of each bridged subscription.
	TransportBufferSize int64
	// TransportPersistent asks in-memory transports to keep published
	// messages for subscribers that arrive later.
	TransportPersistent bool
	// TransportFile is where the io transport appends and tails messages;
	// "-" exports to standard output.
	TransportFile string

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int

	// Introspection configuration.
	IntrospectionEnabled bool
	// IntrospectionPort serves the circuit snapshot API. Defaults to 8081.
	IntrospectionPort int
	// IntrospectionCORSAllowedOrigins lists origins allowed to read the API.
	// Use "*" for development. Empty disables CORS headers.
	IntrospectionCORSAllowedOrigins []string

	// LogFormat is "text" or "json".
	LogFormat string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// EffectiveSpinCount returns SpinCount or its default.
func (c *Config) EffectiveSpinCount() int {
	if c == nil || c.SpinCount == 0 {
		return DefaultSpinCount
	}
	return c.SpinCount
}

// EffectiveTransport returns Transport or its default.
func (c *Config) EffectiveTransport() string {
	if c == nil || c.Transport == "" {
		return DefaultTransport
	}
	return c.Transport
}

// GetTransportBufferSize returns TransportBufferSize.
func (c *Config) GetTransportBufferSize() int64 {
	if c == nil {
		return 0
	}
	return c.TransportBufferSize
}

// IsTransportPersistent returns TransportPersistent.
func (c *Config) IsTransportPersistent() bool {
	return c != nil && c.TransportPersistent
}

// GetTransportFile returns TransportFile.
func (c *Config) GetTransportFile() string {
	if c == nil {
		return ""
	}
	return c.TransportFile
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateWorker()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validatePorts()...)
	errs = append(errs, c.validateLogging()...)

	return errors.Join(errs...)
}

func (c *Config) validateWorker() []error {
	if c.SpinCount < 0 {
		return []error{errors.New("worker: spin count cannot be negative")}
	}
	return nil
}

func (c *Config) validateTransport() []error {
	if c.TransportBufferSize < 0 {
		return []error{errors.New("transport: buffer size cannot be negative")}
	}
	return nil
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.IntrospectionPort < 0 || c.IntrospectionPort > 65535 {
		errs = append(errs, fmt.Errorf("introspection: invalid port %d", c.IntrospectionPort))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.LogLevel))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// FromEnv loads the given dotenv files (".env" when none are given; missing
// files are ignored) and builds a Config from SIGNALFLOW_* variables.
// Variables already present in the environment take precedence.
func FromEnv(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var (
		c    Config
		errs []error
	)
	c.SpinCount = envInt("SPIN_COUNT", &errs)
	c.Transport = env("TRANSPORT")
	c.TransportBufferSize = int64(envInt("TRANSPORT_BUFFER_SIZE", &errs))
	c.TransportPersistent = envBool("TRANSPORT_PERSISTENT", &errs)
	c.TransportFile = env("TRANSPORT_FILE")
	c.MetricsEnabled = envBool("METRICS_ENABLED", &errs)
	c.MetricsPort = envInt("METRICS_PORT", &errs)
	c.IntrospectionEnabled = envBool("INTROSPECTION_ENABLED", &errs)
	c.IntrospectionPort = envInt("INTROSPECTION_PORT", &errs)
	if origins := env("INTROSPECTION_CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.IntrospectionCORSAllowedOrigins = append(c.IntrospectionCORSAllowedOrigins, o)
			}
		}
	}
	c.LogFormat = env("LOG_FORMAT")
	c.LogLevel = env("LOG_LEVEL")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &c, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envInt(key string, errs *[]error) int {
	raw := env(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
	}
	return v
}

func envBool(key string, errs *[]error) bool {
	raw := env(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
	}
	return v
}
