package odooconnect

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of a Session's settings.
//
//	url: https://odoo.example.com
//	database: prod
//	login: api@example.com
//	password: ${ODOO_PASSWORD}
//	transport: jsonrpc
//	timeout: 30s
//	context:
//	  lang: es_ES
//	  tz: America/Caracas
type Config struct {
	URL              string        `yaml:"url"`
	Database         string        `yaml:"database"`
	Login            string        `yaml:"login"`
	Password         string        `yaml:"password"`
	SessionID        string        `yaml:"session_id"`
	Transport        Transport     `yaml:"transport"`
	Timeout          time.Duration `yaml:"timeout"`
	ValidateInterval time.Duration `yaml:"validate_interval"`
	FieldCacheTTL    time.Duration `yaml:"field_cache_ttl"`
	SkipTLSVerify    bool          `yaml:"skip_tls_verify"`
	LoggerEnv        LoggerEnv     `yaml:"logger_env"`
	Context          OdooContext   `yaml:"context"`
}

// DefaultConfig returns a Config holding the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport:        TransportJSONRPC,
		Timeout:          DefaultTimeout,
		ValidateInterval: DefaultValidateInterval,
		FieldCacheTTL:    DefaultFieldCacheTTL,
		LoggerEnv:        EnvProduction,
		Context:          OdooContext{},
	}
}

// LoadConfig reads path, or the file named by ODOO_CONFIG when path is empty,
// then applies ODOO_* environment overrides. With no file at all the Config
// is built from defaults and the environment alone. ${VAR} references in the
// file are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("ODOO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading odoo config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing odoo config %s: %v", ErrValidation, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with the ODOO_* environment variables that
// are set and non-empty.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ODOO_URL":        &c.URL,
		"ODOO_DB":         &c.Database,
		"ODOO_USERNAME":   &c.Login,
		"ODOO_PASSWORD":   &c.Password,
		"ODOO_SESSION_ID": &c.SessionID,
	}
	for name, field := range strs {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	if v := os.Getenv("ODOO_TRANSPORT"); v != "" {
		c.Transport = Transport(v)
	}
	if v := os.Getenv("ODOO_LOGGER_ENV"); v != "" {
		c.LoggerEnv = LoggerEnv(v)
	}

	durations := map[string]*time.Duration{
		"ODOO_TIMEOUT":           &c.Timeout,
		"ODOO_VALIDATE_INTERVAL": &c.ValidateInterval,
		"ODOO_FIELD_CACHE_TTL":   &c.FieldCacheTTL,
	}
	for name, field := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return validationErrorf("%s: %v", name, err)
		}
		*field = d
	}

	if v := os.Getenv("ODOO_SKIP_TLS_VERIFY"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return validationErrorf("ODOO_SKIP_TLS_VERIFY: %v", err)
		}
		c.SkipTLSVerify = skip
	}

	if c.Context == nil {
		c.Context = OdooContext{}
	}
	if v := os.Getenv("ODOO_LANG"); v != "" {
		c.Context["lang"] = v
	}
	if v := os.Getenv("ODOO_TZ"); v != "" {
		c.Context["tz"] = v
	}
	return nil
}

// Validate reports every problem at once, joined, wrapping ErrValidation.
func (c *Config) Validate() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, fmt.Errorf("url is required"))
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}
	if c.SessionID == "" && (c.Login == "" || c.Password == "") {
		errs = append(errs, fmt.Errorf("login and password are required when session_id is empty"))
	}
	switch c.Transport {
	case "", TransportJSONRPC, TransportXMLRPC:
	default:
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportJSONRPC, TransportXMLRPC, c.Transport))
	}
	switch c.LoggerEnv {
	case "", EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("logger_env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.LoggerEnv))
	}
	if c.Timeout < 0 || c.ValidateInterval < 0 || c.FieldCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("durations must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
	}
	return nil
}

// Options converts the Config to Session options. Zero durations keep the
// package defaults.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Transport != "" {
		opts = append(opts, WithTransport(c.Transport))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.ValidateInterval > 0 {
		opts = append(opts, WithValidateInterval(c.ValidateInterval))
	}
	if c.FieldCacheTTL > 0 {
		opts = append(opts, WithFieldCacheTTL(c.FieldCacheTTL))
	}
	if c.SkipTLSVerify {
		opts = append(opts, WithSkipTLSVerify(true))
	}
	if c.SessionID != "" {
		opts = append(opts, WithSessionID(c.SessionID))
	}
	if len(c.Context) > 0 {
		opts = append(opts, WithDefaultContext(c.Context))
	}
	if c.LoggerEnv != "" {
		opts = append(opts, WithLoggerEnv(c.LoggerEnv))
	}
	return opts
}

// NewFromConfig validates cfg and builds a Session from it. extra options are
// applied after the Config's own, so WithLogger and WithHTTPClient can still
// be injected.
func NewFromConfig(cfg *Config, extra ...Option) (*Session, error) {
	if cfg == nil {
		return nil, validationErrorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := append(cfg.Options(), extra...)
	return New(cfg.URL, cfg.Database, cfg.Login, cfg.Password, opts...)
}
