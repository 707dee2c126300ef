package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Command   CommandConfig   `mapstructure:"command"`
	Log       LogConfig       `mapstructure:"log"`
	DeviceLog DeviceLogConfig `mapstructure:"deviceLog"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	MongoDB   MongoConfig     `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

// ServerConfig configures the device listener.
type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadBufferSize   int           `mapstructure:"readBufferSize"`
	MaxBufferedBytes int           `mapstructure:"maxBufferedBytes"`
	OutboundQueue    int           `mapstructure:"outboundQueue"`
	EventQueue       int           `mapstructure:"eventQueue"`
	WriteTimeout     time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout      time.Duration `mapstructure:"idleTimeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ProtocolConfig struct {
	VerifyChecksum bool `mapstructure:"verifyChecksum"`
}

type CommandConfig struct {
	Dir              string        `mapstructure:"dir"`
	Watch            bool          `mapstructure:"watch"`
	BatteryLockDelay time.Duration `mapstructure:"batteryLockDelay"`
	JournalQueue     int           `mapstructure:"journalQueue"`
}

type LogConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	FilePath      string `mapstructure:"filePath"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	Compress      bool   `mapstructure:"compress"`
	EnableConsole bool   `mapstructure:"enableConsole"`
	Timezone      string `mapstructure:"timezone"`
}

// DeviceLogConfig configures the per-IMEI log files.
type DeviceLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
}

type RecorderConfig struct {
	Queue int `mapstructure:"queue"`
}

type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	JWTSecret      string   `mapstructure:"jwtSecret"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// StoreConfig selects where pending commands are kept across restarts.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	ShadowTTL  time.Duration `mapstructure:"shadowTTL"`
	SessionTTL time.Duration `mapstructure:"sessionTTL"`
}

type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	Name              string        `mapstructure:"name"`
	SubjectPrefix     string        `mapstructure:"subjectPrefix"`
	CommandSubject    string        `mapstructure:"commandSubject"`
	ConfirmSubject    string        `mapstructure:"confirmSubject"`
	ReconnectInterval time.Duration `mapstructure:"reconnectInterval"`
	MaxReconnects     int           `mapstructure:"maxReconnects"`
}

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7095)
	v.SetDefault("server.readBufferSize", 2048)
	v.SetDefault("server.maxBufferedBytes", 64*1024)
	v.SetDefault("server.outboundQueue", 32)
	v.SetDefault("server.eventQueue", 1024)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.idleTimeout", time.Duration(0))

	v.SetDefault("protocol.verifyChecksum", true)

	v.SetDefault("command.dir", "comandos/arquivos")
	v.SetDefault("command.watch", true)
	v.SetDefault("command.batteryLockDelay", 15*time.Second)
	v.SetDefault("command.journalQueue", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.filePath", "logs/Log_Gt06.log")
	v.SetDefault("log.maxSizeMB", 20)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 30)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.enableConsole", true)
	v.SetDefault("log.timezone", "America/Sao_Paulo")

	v.SetDefault("deviceLog.enabled", true)
	v.SetDefault("deviceLog.dir", "logs")
	v.SetDefault("deviceLog.maxSizeMB", 20)
	v.SetDefault("deviceLog.maxBackups", 1)

	v.SetDefault("recorder.queue", 1024)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8000")
	v.SetDefault("api.jwtSecret", "")
	v.SetDefault("api.allowedOrigins", []string{"*"})

	v.SetDefault("store.backend", StoreMemory)

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "gt06")
	v.SetDefault("mongodb.timeout", 10*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.shadowTTL", 24*time.Hour)
	v.SetDefault("redis.sessionTTL", 300*time.Second)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "gt06-gateway")
	v.SetDefault("nats.subjectPrefix", "gt06.uplink")
	v.SetDefault("nats.commandSubject", "gt06.downlink.command")
	v.SetDefault("nats.confirmSubject", "gt06.downlink.confirmed")
	v.SetDefault("nats.reconnectInterval", 2*time.Second)
	v.SetDefault("nats.maxReconnects", -1)
}

// Load reads configuration from defaults, an optional YAML file and GT06_* environment variables,
// in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GT06")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.ReadBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("server.readBufferSize must be positive"))
	}
	if c.Server.OutboundQueue <= 0 || c.Server.EventQueue <= 0 {
		errs = append(errs, fmt.Errorf("server queues must be positive"))
	}
	if c.Server.MaxBufferedBytes > 0 && c.Server.MaxBufferedBytes < c.Server.ReadBufferSize {
		errs = append(errs, fmt.Errorf("server.maxBufferedBytes smaller than readBufferSize"))
	}
	if c.Command.BatteryLockDelay < 0 {
		errs = append(errs, fmt.Errorf("command.batteryLockDelay must not be negative"))
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, fmt.Errorf("store.backend mongo requires mongodb.uri"))
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("store.backend redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
