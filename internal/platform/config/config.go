// Package config loads registrar configuration from compiled defaults, an
// optional YAML file and REGISTRAR_ environment variables, in that order.
//
// Environment keys use a double underscore for nesting:
// REGISTRAR_LEDGER__SUBMIT_TIMEOUT=45s sets ledger.submit_timeout.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "REGISTRAR_"

	// FileEnv names the variable holding the YAML config path.
	FileEnv = "REGISTRAR_CONFIG"
)

type Config struct {
	Server       Server       `koanf:"server"`
	Log          Log          `koanf:"log"`
	Auth         Auth         `koanf:"auth"`
	Ledger       Ledger       `koanf:"ledger"`
	CAS          CAS          `koanf:"cas"`
	Certificates Certificates `koanf:"certificates"`
	Audit        Audit        `koanf:"audit"`
	Redis        Redis        `koanf:"redis"`
	Database     Database     `koanf:"database"`
	Kafka        Kafka        `koanf:"kafka"`
	Telemetry    Telemetry    `koanf:"telemetry"`
}

type Server struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or text
}

// Auth configures bearer-token authentication. When disabled every request
// acts as the ledger's default identity.
type Auth struct {
	Enabled              bool          `koanf:"enabled"`
	JWTSigningKey        string        `koanf:"jwt_signing_key"`
	Issuer               string        `koanf:"issuer"`
	Audience             string        `koanf:"audience"`
	TokenTTL             time.Duration `koanf:"token_ttl"`
	AllowAnonymousVerify bool          `koanf:"allow_anonymous_verify"`
	AnonymousVerifier    string        `koanf:"anonymous_verifier"` // identity for unauthenticated verify calls
}

type Ledger struct {
	Mode            string        `koanf:"mode"` // memory or fabric
	ProfilePath     string        `koanf:"profile_path"`
	WalletDir       string        `koanf:"wallet_dir"`
	Channel         string        `koanf:"channel"`
	Contract        string        `koanf:"contract"`
	DefaultIdentity string        `koanf:"default_identity"`
	EvaluateTimeout time.Duration `koanf:"evaluate_timeout"`
	SubmitTimeout   time.Duration `koanf:"submit_timeout"`
	EndorseTimeout  time.Duration `koanf:"endorse_timeout"`
	CommitTimeout   time.Duration `koanf:"commit_timeout"`
	Retry           Retry         `koanf:"retry"`
	Pool            Pool          `koanf:"pool"`
	SeedDemo        bool          `koanf:"seed_demo"` // memory mode only
}

type Retry struct {
	MaxRetries   int           `koanf:"max_retries"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Multiplier   float64       `koanf:"multiplier"`
}

type Pool struct {
	MaxIdle        int           `koanf:"max_idle"`
	IdleTTL        time.Duration `koanf:"idle_ttl"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
}

// CAS selects the content store. Backends lists stores for the replicating
// backend, written in order and read first-hit.
type CAS struct {
	Backend  string        `koanf:"backend"` // memory, localfs, ipfs, gcs or replicating
	Backends []string      `koanf:"backends"`
	Timeout  time.Duration `koanf:"timeout"`
	LocalFS  LocalFS       `koanf:"localfs"`
	IPFS     IPFS          `koanf:"ipfs"`
	GCS      GCS           `koanf:"gcs"`
}

type LocalFS struct {
	Root string `koanf:"root"`
}

type IPFS struct {
	Bin     string `koanf:"bin"`
	RepoDir string `koanf:"repo_dir"`
}

type GCS struct {
	Bucket       string `koanf:"bucket"`
	Prefix       string `koanf:"prefix"`
	EmulatorHost string `koanf:"emulator_host"`
}

type Certificates struct {
	LedgerCrossCheck bool          `koanf:"ledger_cross_check"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	MaxDocumentBytes int64         `koanf:"max_document_bytes"`
}

type Audit struct {
	Store      string `koanf:"store"` // memory, postgres or kafka
	AsyncQueue int    `koanf:"async_queue"`
	Topic      string `koanf:"topic"`
}

// Redis backs the certificate read cache when Addr is set.
type Redis struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Database struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type Kafka struct {
	Brokers         string        `koanf:"brokers"`
	Acks            string        `koanf:"acks"`
	Retries         int           `koanf:"retries"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`
}

type Telemetry struct {
	TracingEnabled bool   `koanf:"tracing_enabled"`
	ServiceName    string `koanf:"service_name"`
}

// Defaults returns the compiled-in configuration: an in-memory ledger and
// content store, suitable only for local development.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.read_timeout":     "15s",
		"server.write_timeout":    "90s",
		"server.request_timeout":  "60s",
		"server.shutdown_timeout": "20s",

		"log.level":  "info",
		"log.format": "json",

		"auth.enabled":                false,
		"auth.issuer":                 "registrar",
		"auth.audience":               "registrar-api",
		"auth.token_ttl":              "1h",
		"auth.anonymous_verifier":     "verifier",
		"auth.allow_anonymous_verify": true,

		"ledger.mode":                 "memory",
		"ledger.channel":              "academic-records-channel",
		"ledger.contract":             "academic-records",
		"ledger.default_identity":     "registrar-admin",
		"ledger.evaluate_timeout":     "10s",
		"ledger.submit_timeout":       "30s",
		"ledger.endorse_timeout":      "15s",
		"ledger.commit_timeout":       "1m",
		"ledger.retry.max_retries":    3,
		"ledger.retry.initial_delay":  "100ms",
		"ledger.retry.max_delay":      "2s",
		"ledger.retry.multiplier":     2.0,
		"ledger.pool.max_idle":        4,
		"ledger.pool.idle_ttl":        "5m",
		"ledger.pool.acquire_timeout": "5s",
		"ledger.pool.sweep_interval":  "1m",
		"ledger.seed_demo":            false,

		"cas.backend":  "memory",
		"cas.timeout":  "30s",
		"cas.ipfs.bin": "ipfs",

		"certificates.ledger_cross_check": false,
		"certificates.cache_ttl":          "5m",
		"certificates.max_document_bytes": 10 << 20,

		"audit.store":       "memory",
		"audit.async_queue": 1024,
		"audit.topic":       "registrar.certificate-events",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 2,
		"redis.dial_timeout":   "5s",
		"redis.read_timeout":   "3s",
		"redis.write_timeout":  "3s",

		"database.max_open_conns":    10,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "30m",

		"kafka.acks":             "all",
		"kafka.retries":          5,
		"kafka.delivery_timeout": "30s",

		"telemetry.service_name": "registrar",
	}
}

// Load reads configuration from path (if non-empty) and the environment over
// the defaults, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv loads the file named by REGISTRAR_CONFIG, if any.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(FileEnv))
}

// envKey maps REGISTRAR_LEDGER__RETRY__MAX_RETRIES to ledger.retry.max_retries.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if s == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate rejects combinations that cannot start.
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Mode {
	case "memory":
	case "fabric":
		if c.Ledger.SeedDemo {
			errs = append(errs, errors.New("ledger.seed_demo is only supported in memory mode"))
		}
		if c.Ledger.ProfilePath == "" {
			errs = append(errs, errors.New("ledger.profile_path is required in fabric mode"))
		}
		if c.Ledger.WalletDir == "" {
			errs = append(errs, errors.New("ledger.wallet_dir is required in fabric mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.mode %q must be memory or fabric", c.Ledger.Mode))
	}
	if c.Ledger.Channel == "" || c.Ledger.Contract == "" {
		errs = append(errs, errors.New("ledger.channel and ledger.contract are required"))
	}
	if c.Ledger.DefaultIdentity == "" {
		errs = append(errs, errors.New("ledger.default_identity is required"))
	}

	errs = append(errs, c.CAS.validate(c.CAS.Backend, true)...)

	switch c.Audit.Store {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres audit store"))
		}
	case "kafka":
		if c.Kafka.Brokers == "" {
			errs = append(errs, errors.New("kafka.brokers is required for the kafka audit store"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.store %q must be memory, postgres or kafka", c.Audit.Store))
	}

	if c.Auth.Enabled && len(c.Auth.JWTSigningKey) < 32 {
		errs = append(errs, errors.New("auth.jwt_signing_key must be at least 32 bytes when auth is enabled"))
	}
	if c.Certificates.MaxDocumentBytes <= 0 {
		errs = append(errs, errors.New("certificates.max_document_bytes must be positive"))
	}
	return errors.Join(errs...)
}

func (c CAS) validate(backend string, top bool) []error {
	switch backend {
	case "memory":
		return nil
	case "localfs":
		if c.LocalFS.Root == "" {
			return []error{errors.New("cas.localfs.root is required")}
		}
	case "ipfs":
		if c.IPFS.Bin == "" {
			return []error{errors.New("cas.ipfs.bin is required")}
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return []error{errors.New("cas.gcs.bucket is required")}
		}
	case "replicating":
		if !top {
			return []error{errors.New("cas.backends cannot nest replicating")}
		}
		if len(c.Backends) < 2 {
			return []error{errors.New("cas.backends needs at least two stores for replicating")}
		}
		var errs []error
		for _, b := range c.Backends {
			errs = append(errs, c.validate(strings.TrimSpace(b), false)...)
		}
		return errs
	default:
		return []error{fmt.Errorf("cas.backend %q is not supported", backend)}
	}
	return nil
}
