package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	TransportLocal = "local"
	TransportRedis = "redis"
	TransportNats  = "nats"
	TransportKafka = "kafka"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

type Config struct {
	EventBufferSize    int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SessionBacklog     int           `env:"SESSION_BACKLOG,default=256"`
	SinkTimeout        time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval     time.Duration `env:"METRIC_INTERVAL,default=10s"`
	BacklogWarnPercent int           `env:"BACKLOG_WARN_PERCENT,default=80"`
	RestartInterval    time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	AuthSecret         string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration  time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	PasswordMemoryKiB  int           `env:"PASSWORD_MEMORY_KIB,default=65536"`
	PasswordIterations int           `env:"PASSWORD_ITERATIONS,default=3"`
	PasswordThreads    int           `env:"PASSWORD_THREADS,default=2"`
	BadgerFilepath     string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath      string        `env:"BLUGE_FILEPATH,required=true"`
	UploadDir          string        `env:"UPLOAD_DIR,required=true"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES,default=10485760"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
	MaxTxnRetries      int           `env:"MAX_TXN_RETRIES,default=50"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	DefaultPageSize    int           `env:"DEFAULT_PAGE_SIZE,default=50"`
	MaxPageSize        int           `env:"MAX_PAGE_SIZE,default=200"`
	Host               string        `env:"HOST,default=localhost"`
	Port               int           `env:"PORT,default=8080"`
	Transport          string        `env:"TRANSPORT,default=local"`
	Presence           string        `env:"PRESENCE,default=memory"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	NatsURL            string        `env:"NATS_URL"`
	KafkaBrokers       string        `env:"KAFKA_BROKERS"`
	EventsSubject      string        `env:"EVENTS_SUBJECT,default=chat-core-events"`
	RateLimitPerSecond float64       `env:"RATE_LIMIT_PER_SECOND,default=10"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST,default=30"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Brokers splits the comma separated KAFKA_BROKERS.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Validate checks the combinations go-env cannot express.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportLocal:
	case TransportRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("TRANSPORT=redis requires REDIS_ADDR")
		}
	case TransportNats:
		if c.NatsURL == "" {
			return fmt.Errorf("TRANSPORT=nats requires NATS_URL")
		}
	case TransportKafka:
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("TRANSPORT=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}
	switch c.Presence {
	case PresenceMemory:
	case PresenceRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("PRESENCE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown PRESENCE %q", c.Presence)
	}
	if c.Transport != TransportLocal && c.Presence == PresenceMemory {
		return fmt.Errorf("TRANSPORT=%s shares sessions across instances and needs PRESENCE=redis", c.Transport)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes")
	}
	// Zero password costs fall back to the argon2id defaults
	if c.PasswordMemoryKiB < 0 || c.PasswordIterations < 0 || c.PasswordThreads < 0 || c.PasswordThreads > 255 {
		return fmt.Errorf("PASSWORD_* must describe a valid argon2id cost")
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when RATE_LIMIT_PER_SECOND is set")
	}
	return nil
}
