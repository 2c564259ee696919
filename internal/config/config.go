package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port                   string `env:"PORT" envDefault:"8080"`
	AppEnv                 string `env:"APP_ENV" envDefault:"production"`
	DBUser                 string `env:"DB_USER,notEmpty"`
	DBPassword             string `env:"DB_PASSWORD,notEmpty"`
	DBHost                 string `env:"DB_HOST,notEmpty"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,notEmpty"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	// Room events fall back to an in-process hub when REDIS_ADDR is empty.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	FirebaseProjectID   string `env:"FIREBASE_PROJECT_ID"`
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"vercel.app"`

	MessageRatePerMin int `env:"MESSAGE_RATE_PER_MIN" envDefault:"60"`
	MessageBurst      int `env:"MESSAGE_BURST" envDefault:"10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClientConfig configures the polling inbox client.
type ClientConfig struct {
	BaseURL          string        `env:"CHAT_API_URL" envDefault:"http://localhost:8080"`
	Token            string        `env:"CHAT_API_TOKEN"`
	ViewerID         string        `env:"CHAT_VIEWER_ID,notEmpty"`
	RoomsInterval    time.Duration `env:"CHAT_ROOMS_INTERVAL" envDefault:"10s"`
	MessagesInterval time.Duration `env:"CHAT_MESSAGES_INTERVAL" envDefault:"5s"`
	RequestTimeout   time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"15s"`
	Push             bool          `env:"CHAT_PUSH" envDefault:"false"`
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
