package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. NUCLEUS_NODE_ID.
const EnvPrefix = "NUCLEUS"

// Bus and store drivers.
const (
	DriverMemory   = "memory"
	DriverKafka    = "kafka"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the full node configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Node     Node     `yaml:"node"`
	HTTP     HTTP     `yaml:"http"`
	Bus      Bus      `yaml:"bus"`
	Kafka    Kafka    `yaml:"kafka"`
	Redis    Redis    `yaml:"redis"`
	Store    Store    `yaml:"store"`
	Cache    Cache    `yaml:"cache"`
	Sync     Sync     `yaml:"sync"`
	Presence Presence `yaml:"presence"`
	Policy   Policy   `yaml:"policy"`
	Auth     Auth     `yaml:"auth"`
	Log      Log      `yaml:"log"`
}

// Node identifies this process within the fleet.
type Node struct {
	ID              string        `yaml:"id"              envconfig:"ID"`
	ServerID        string        `yaml:"serverId"        split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Bus struct {
	Driver string `yaml:"driver"`
	// Codec selects the payload encoding for published events: json or cbor.
	// Decoders accept both regardless of this setting.
	Codec string `yaml:"codec"`
}

type Kafka struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup" split_words:"true"`
	Partitions    int32    `yaml:"partitions"`
	Replication   int16    `yaml:"replication"`
	CreateTopics  bool     `yaml:"createTopics"  split_words:"true"`
}

// Redis configures the Redis Pub/Sub bus client.
type Redis struct {
	URL          string        `yaml:"url"          envconfig:"URL"`
	PoolSize     int           `yaml:"poolSize"     split_words:"true"`
	MinIdleConns int           `yaml:"minIdleConns" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
}

type Store struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"             envconfig:"DSN"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxOpenConns    int           `yaml:"maxOpenConns"    split_words:"true"`
	MaxIdleConns    int           `yaml:"maxIdleConns"    split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" split_words:"true"`
	Migrate         bool          `yaml:"migrate"`
}

type Cache struct {
	TTL        time.Duration `yaml:"ttl"        envconfig:"TTL"`
	MaxEntries int           `yaml:"maxEntries" split_words:"true"`
	Shards     int           `yaml:"shards"`
}

type Sync struct {
	DedupeWindow   time.Duration `yaml:"dedupeWindow"   split_words:"true"`
	DedupeCapacity int           `yaml:"dedupeCapacity" split_words:"true"`
	RetryAttempts  uint64        `yaml:"retryAttempts"  split_words:"true"`
	RetryInitial   time.Duration `yaml:"retryInitial"   split_words:"true"`
	RetryMax       time.Duration `yaml:"retryMax"       split_words:"true"`
}

type Presence struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" split_words:"true"`
	Timeout           time.Duration `yaml:"timeout"`
	SweepInterval     time.Duration `yaml:"sweepInterval"     split_words:"true"`
}

// Policy controls answers given when neither cache nor store can decide.
type Policy struct {
	// Unknown is "allow" (treat the subject as unrestricted) or "deny"
	// (surface the outage to the caller).
	Unknown string `yaml:"unknown"`
}

type Auth struct {
	JWTSigningKey string        `yaml:"jwtSigningKey" envconfig:"JWT_SIGNING_KEY"`
	Issuer        string        `yaml:"issuer"`
	TokenTTL      time.Duration `yaml:"tokenTtl"      envconfig:"TOKEN_TTL"`
	Moderators    []Moderator   `yaml:"moderators"    ignored:"true"`
}

// Moderator is an API principal. TokenHash is a bcrypt hash of its API key.
type Moderator struct {
	Name      string   `yaml:"name"`
	TokenHash string   `yaml:"tokenHash"`
	Rights    []string `yaml:"rights"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration runnable as a single in-memory node.
func Default() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "nucleus"
	}
	return Config{
		Node: Node{
			ID:              hostname,
			ServerID:        hostname,
			ShutdownTimeout: 30 * time.Second,
		},
		HTTP: HTTP{Addr: ":8080"},
		Bus:  Bus{Driver: DriverMemory, Codec: "json"},
		Kafka: Kafka{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "",
			Partitions:    6,
			Replication:   1,
			CreateTopics:  true,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Store: Store{
			Driver:          DriverMemory,
			Timeout:         2 * time.Second,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Migrate:         true,
		},
		Cache: Cache{
			TTL:        3 * time.Minute,
			MaxEntries: 100_000,
			Shards:     32,
		},
		Sync: Sync{
			DedupeWindow:   10 * time.Minute,
			DedupeCapacity: 100_000,
			RetryAttempts:  4,
			RetryInitial:   100 * time.Millisecond,
			RetryMax:       2 * time.Second,
		},
		Presence: Presence{
			HeartbeatInterval: 15 * time.Second,
			Timeout:           45 * time.Second,
			SweepInterval:     5 * time.Second,
		},
		Policy: Policy{Unknown: "allow"},
		Auth: Auth{
			Issuer:   "nucleus",
			TokenTTL: time.Hour,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load builds a Config from defaults, the YAML file at path (if not empty) and
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.Kafka.ConsumerGroup == "" {
		// Every node must see every event, so each gets its own group.
		cfg.Kafka.ConsumerGroup = "nucleus-" + cfg.Node.ID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Node.ID == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	switch c.Bus.Driver {
	case DriverMemory, DriverRedis:
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required for the kafka bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus driver %q", c.Bus.Driver))
	}
	if c.Bus.Driver == DriverRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required for the redis bus"))
	}
	switch c.Bus.Codec {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("unknown bus codec %q", c.Bus.Codec))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Policy.Unknown {
	case "allow", "deny":
	default:
		errs = append(errs, fmt.Errorf("policy.unknown must be allow or deny, got %q", c.Policy.Unknown))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Presence.Timeout <= c.Presence.HeartbeatInterval {
		errs = append(errs, errors.New("presence.timeout must exceed presence.heartbeatInterval"))
	}
	if len(c.Auth.Moderators) > 0 && c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwtSigningKey is required when moderators are configured"))
	}
	return errors.Join(errs...)
}
