package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"class-chat-service/internal/db"
	"class-chat-service/internal/ws"
)

const envPrefix = "CLASSCHAT"

type HTTPConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Mode        string        `mapstructure:"mode"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	GRPCAddr    string        `mapstructure:"grpc_addr"`
	GRPCTimeout time.Duration `mapstructure:"grpc_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

type EventsConfig struct {
	Transport    string   `mapstructure:"transport"`
	AMQPURL      string   `mapstructure:"amqp_url"`
	Exchange     string   `mapstructure:"exchange"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type AuditConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

type WSConfig struct {
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type Config struct {
	ServiceName string        `mapstructure:"service_name"`
	Environment string        `mapstructure:"environment"`
	Debug       bool          `mapstructure:"debug"`
	HTTP        HTTPConfig    `mapstructure:"http"`
	DB          DBConfig      `mapstructure:"db"`
	Auth        AuthConfig    `mapstructure:"auth"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Events      EventsConfig  `mapstructure:"events"`
	Audit       AuditConfig   `mapstructure:"audit"`
	WS          WSConfig      `mapstructure:"ws"`
	Log         LogConfig     `mapstructure:"log"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "class-chat-service")
	v.SetDefault("environment", "local")
	v.SetDefault("debug", false)

	v.SetDefault("http.port", "8083")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("db.driver", db.DriverSQLite)
	v.SetDefault("db.dsn", "file:classchat.db?_foreign_keys=on")

	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.grpc_addr", "localhost:8084")
	v.SetDefault("auth.grpc_timeout", 3*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "classchat")
	v.SetDefault("redis.presence_ttl", 24*time.Hour)

	v.SetDefault("events.transport", "none")
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "classchat.events")
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "classchat.events")

	v.SetDefault("audit.amqp_url", "")
	v.SetDefault("audit.exchange", "audit.logs")
	v.SetDefault("audit.routing_key", "audit.classchat")

	d := ws.DefaultConfig()
	v.SetDefault("ws.write_wait", d.WriteWait)
	v.SetDefault("ws.pong_wait", d.PongWait)
	v.SetDefault("ws.ping_interval", d.PingInterval)
	v.SetDefault("ws.max_message_size", d.MaxMessageSize)
	v.SetDefault("ws.send_buffer", d.SendBuffer)
	v.SetDefault("ws.messages_per_second", d.MessagesPerSecond)
	v.SetDefault("ws.burst", d.Burst)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads defaults, the optional YAML file at path and CLASSCHAT_*
// environment overrides, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http.port is required"))
	}

	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required in jwt mode"))
		}
	case "grpc":
		if c.Auth.GRPCAddr == "" {
			errs = append(errs, errors.New("auth.grpc_addr is required in grpc mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not supported", c.Auth.Mode))
	}

	switch c.Events.Transport {
	case "none":
	case "amqp":
		if c.Events.AMQPURL == "" {
			errs = append(errs, errors.New("events.amqp_url is required for amqp transport"))
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			errs = append(errs, errors.New("events.kafka_brokers and events.kafka_topic are required for kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.transport %q is not supported", c.Events.Transport))
	}

	if c.WS.MessagesPerSecond < 0 {
		errs = append(errs, errors.New("ws.messages_per_second must not be negative"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// LiveChannel converts the ws section to hub tuning.
func (c *Config) LiveChannel() ws.Config {
	return ws.Config{
		WriteWait:         c.WS.WriteWait,
		PongWait:          c.WS.PongWait,
		PingInterval:      c.WS.PingInterval,
		MaxMessageSize:    c.WS.MaxMessageSize,
		SendBuffer:        c.WS.SendBuffer,
		MessagesPerSecond: c.WS.MessagesPerSecond,
		Burst:             c.WS.Burst,
	}
}
