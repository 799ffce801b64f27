package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/aleveille/graphout/formatter"
	"github.com/aleveille/graphout/metric"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Writer types.
const (
	TypeGraphite = "graphite"
	TypeStdout   = "stdout"
	TypeNull     = "null"
)

const (
	DefaultPoolSize            = 1
	DefaultSocketTimeoutMillis = 200
	DefaultWriteTimeoutMillis  = 1000
	DefaultClaimTimeoutMillis  = 1000
	DefaultCharset             = "UTF-8"
)

type Config struct {
	Server  metric.Server  `yaml:"server"`
	Query   metric.Query   `yaml:"query"`
	Writers []WriterConfig `yaml:"writers"`
}

// WriterConfig describes one output. Host and port are where graphite
// listens, not the server the samples came from.
type WriterConfig struct {
	Type                string   `yaml:"type"`
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	TypeNames           []string `yaml:"typeNames"`
	BooleanAsNumber     bool     `yaml:"booleanAsNumber"`
	AllowDottedKeys     bool     `yaml:"allowDottedKeys"`
	UseObjDomainAsKey   bool     `yaml:"useObjDomainAsKey"`
	UseAllTypeNames     bool     `yaml:"useAllTypeNames"`
	PoolSize            int      `yaml:"poolSize"`
	SocketTimeoutMillis int      `yaml:"socketTimeoutMillis"`
	WriteTimeoutMillis  int      `yaml:"writeTimeoutMillis"`
	ClaimTimeoutMillis  int      `yaml:"claimTimeoutMillis"`
	Charset             string   `yaml:"charset"`
	RootPrefix          string   `yaml:"rootPrefix"`
	ResultTags          []string `yaml:"resultTags"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Writers {
		c.Writers[i].ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if len(c.Writers) == 0 {
		return errors.Wrap(ErrInvalid, "at least one writer is required")
	}
	for i := range c.Writers {
		if err := c.Writers[i].Validate(); err != nil {
			return errors.Wrapf(err, "writers[%d]", i)
		}
	}
	return nil
}

// ApplyDefaults fills every unset field.
func (w *WriterConfig) ApplyDefaults() {
	if w.Type == "" {
		w.Type = TypeGraphite
	}
	if w.PoolSize == 0 {
		w.PoolSize = DefaultPoolSize
	}
	if w.SocketTimeoutMillis == 0 {
		w.SocketTimeoutMillis = DefaultSocketTimeoutMillis
	}
	if w.WriteTimeoutMillis == 0 {
		w.WriteTimeoutMillis = DefaultWriteTimeoutMillis
	}
	if w.ClaimTimeoutMillis == 0 {
		w.ClaimTimeoutMillis = DefaultClaimTimeoutMillis
	}
	if w.Charset == "" {
		w.Charset = DefaultCharset
	}
	if w.RootPrefix == "" {
		w.RootPrefix = formatter.DefaultRootPrefix
	}
}

// Validate checks a writer with defaults applied.
func (w *WriterConfig) Validate() error {
	switch w.Type {
	case TypeGraphite:
		if w.Host == "" {
			return errors.Wrap(ErrInvalid, "host is required")
		}
		if w.Port == 0 {
			return errors.Wrap(ErrInvalid, "port is required")
		}
		if w.Port < 0 || w.Port > 65535 {
			return errors.Wrapf(ErrInvalid, "port %d out of range", w.Port)
		}
	case TypeStdout, TypeNull:
	default:
		return errors.Wrapf(ErrInvalid, "unknown writer type %q", w.Type)
	}

	if w.PoolSize < 1 {
		return errors.Wrapf(ErrInvalid, "poolSize must be at least 1, got %d", w.PoolSize)
	}
	if w.SocketTimeoutMillis < 0 || w.WriteTimeoutMillis < 0 || w.ClaimTimeoutMillis < 0 {
		return errors.Wrap(ErrInvalid, "timeouts must not be negative")
	}
	if _, err := metric.ParseAttributes(w.ResultTags); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

// Address is the host:port graphite listens on.
func (w *WriterConfig) Address() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

func (w *WriterConfig) SocketTimeout() time.Duration { return millis(w.SocketTimeoutMillis) }
func (w *WriterConfig) WriteTimeout() time.Duration  { return millis(w.WriteTimeoutMillis) }
func (w *WriterConfig) ClaimTimeout() time.Duration  { return millis(w.ClaimTimeoutMillis) }

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
