package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EchoAll    = "all"
	EchoOthers = "others"

	PersistOff   = "off"
	PersistSync  = "sync"
	PersistAsync = "async"
)

type Config struct {
	Port             string `env:"PORT,default=8081"`
	JWTSecret        string `env:"JWT_SECRET,default=dev-super-secret-change-me" validate:"required"`
	JWTExpiry        int    `env:"JWT_EXPIRY,default=24" validate:"gt=0"` // in hours
	LogLevel         string `env:"LOG_LEVEL,default=INFO"`
	MaxMessageLength int    `env:"MAX_MESSAGE_LENGTH,default=1000" validate:"gt=0"`

	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger" validate:"required"`
	SQLiteFilepath string `env:"SQLITE_FILEPATH,default=./data/merry.db" validate:"required"`
	HistoryLimit   *int   `env:"HISTORY_LIMIT" validate:"omitempty,gt=0"`

	EchoPolicy            string        `env:"ECHO_POLICY,default=all" validate:"oneof=all others"`
	PersistMode           string        `env:"PERSIST_MODE,default=async" validate:"oneof=off sync async"`
	PersistQueueSize      int           `env:"PERSIST_QUEUE_SIZE,default=256" validate:"gt=0"`
	ClientBufferSize      int           `env:"CLIENT_BUFFER_SIZE,default=256" validate:"gt=0"`
	EnforceRoomMembership bool          `env:"ENFORCE_ROOM_MEMBERSHIP,default=false"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTExpiry) * time.Hour
}

// ClientConfig holds the terminal client's defaults. Command line flags
// take precedence.
type ClientConfig struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8081"`
	Token     string `env:"CHAT_TOKEN"`
	RoomID    string `env:"CHAT_ROOM_ID"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
	Colours   bool   `env:"CHAT_COLOURS,default=true"`
}

func LoadClient() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
