package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/qrave1/TypeRace/internal/domain/models"
)

const (
	StoreDriverNATS   = "nats"
	StoreDriverMemory = "memory"

	ContentSourcePostgres = "postgres"
	ContentSourceFile     = "file"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required"`

	StoreDriver    string `env:"STORE_DRIVER" envDefault:"nats"`
	ContentSource  string `env:"CONTENT_SOURCE" envDefault:"postgres"`
	ParagraphsFile string `env:"PARAGRAPHS_FILE" envDefault:"configs/paragraphs.yaml"`

	Game     GameConfig
	NATS     NATSConfig
	Postgres PostgresConfig
}

// GameConfig - тайминги и лимиты гонки
type GameConfig struct {
	MaxPlayers     int           `env:"GAME_MAX_PLAYERS" envDefault:"5"`
	CountdownDelay time.Duration `env:"GAME_COUNTDOWN_DELAY" envDefault:"10s"`
	RedirectDelay  time.Duration `env:"GAME_REDIRECT_DELAY" envDefault:"5s"`
	UpdateRetries  int           `env:"GAME_UPDATE_RETRIES" envDefault:"10"`
}

type NATSConfig struct {
	URL           string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Bucket        string        `env:"NATS_ROOMS_BUCKET" envDefault:"rooms"`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"-1"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"typerace"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// New читает переменные окружения. Без files пробует необязательный .env,
// явно переданные файлы обязаны существовать. Окружение процесса имеет приоритет.
func New(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && (len(files) > 0 || !errors.Is(err, fs.ErrNotExist)) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err = c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverNATS, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.ContentSource {
	case ContentSourcePostgres, ContentSourceFile:
	default:
		return fmt.Errorf("unknown content source %q", c.ContentSource)
	}

	if c.Game.MaxPlayers < 1 || c.Game.MaxPlayers > models.MaxPlayers {
		return fmt.Errorf("game max players must be between 1 and %d, got %d", models.MaxPlayers, c.Game.MaxPlayers)
	}

	return nil
}
