package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SourceMySQL    = "mysql"
	SourcePostgres = "postgres"
	SourceXLSX     = "xlsx"

	defaultConfigPath = "./config/local.yaml"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"prod"`
	OutputRoot string `yaml:"output_root" env:"OUTPUT_ROOT" env-default:"./reports"`
	Source     string `yaml:"source" env:"SOURCE" env-default:"mysql"`
	XLSXPath   string `yaml:"xlsx_path" env:"XLSX_PATH"`
	// PostgresURL is a lib/pq connection string used with source postgres.
	PostgresURL string `yaml:"postgres_url" env:"POSTGRES_URL"`
	// MoldSpecPath overrides the mold tables of the record source when set.
	MoldSpecPath string `yaml:"mold_spec_path" env:"MOLD_SPEC_PATH"`

	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Analysis   `yaml:"analysis"`
	S3         `yaml:"s3"`
	Kafka      `yaml:"kafka"`

	AdminLogin string `yaml:"admin_login" env:"ADMIN_LOGIN"`
	AdminPass  string `yaml:"admin_pass" env:"ADMIN_PASS"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:4001"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// RunTimeout bounds a full report run triggered over HTTP.
	RunTimeout  time.Duration `yaml:"run_timeout" env-default:"5m"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:5173"`
}

type Database struct {
	DBUser     string `yaml:"db_user" env:"DB_USER"`
	DBPassword string `yaml:"db_password" env:"DB_PASSWORD"`
	DBHost     string `yaml:"db_host" env:"DB_HOST" env-default:"localhost"`
	DBPort     int    `yaml:"db_port" env:"DB_PORT" env-default:"3306"`
	DBName     string `yaml:"db_name" env:"DB_NAME"`
	ParseTime  bool   `yaml:"parse_time" env-default:"true"`
}

type Analysis struct {
	HoursPerDay float64 `yaml:"hours_per_day" env:"HOURS_PER_DAY" env-default:"24"`
	// Sequential disables the render worker pool.
	Sequential bool `yaml:"sequential" env:"RENDER_SEQUENTIAL"`
	// Workers replaces the computed worker tier when > 0. It is still capped by the task count.
	Workers  int `yaml:"workers" env:"RENDER_WORKERS" env-default:"0"`
	PageSize int `yaml:"page_size" env:"RENDER_PAGE_SIZE" env-default:"10"`
}

type S3 struct {
	Bucket string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix string `yaml:"prefix" env:"S3_PREFIX" env-default:"molding-report"`
}

// Kafka receives one event per finished run when Brokers is set.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"molding-report.runs"`
}

// DSN builds the go-sql-driver/mysql data source name.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=%v",
		d.DBUser,
		d.DBPassword,
		d.DBHost,
		d.DBPort,
		d.DBName,
		d.ParseTime,
	)
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// no file: environment and defaults only
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config %s: %w", op, path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Source {
	case SourceMySQL:
		if c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("db_user and db_name are required for source %q", c.Source)
		}
	case SourcePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for source %q", c.Source)
		}
	case SourceXLSX:
		if c.XLSXPath == "" {
			return fmt.Errorf("xlsx_path is required for source %q", c.Source)
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	if c.HoursPerDay <= 0 || c.HoursPerDay > 24 {
		return fmt.Errorf("hours_per_day must be in (0, 24], got %v", c.HoursPerDay)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}

	return nil
}
