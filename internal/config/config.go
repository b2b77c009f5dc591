package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Alp4ka/relaypager"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds all configuration of the people API.
type Config struct {
	Environment string
	LogLevel    string
	Port        string
	// MaxTake page size ceiling applied to every listing request.
	MaxTake  int
	Database Database
}

// Database describes the store the API reads from. URL, when set, wins over
// the individual connection fields.
type Database struct {
	Driver   string
	URL      string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	Schema   string
	SSL      bool
	// Seed fills an empty store with demo rows on start.
	Seed bool
}

// Load reads configuration from environment variables. Outside production a
// .env file in the working directory is loaded first; its absence is not an
// error since the process environment may carry everything.
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	var dotEnvErr error
	if env != EnvProduction {
		dotEnvErr = godotenv.Load()
	}

	cfg := &Config{
		Environment: env,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnv("PORT", "8080"),
		MaxTake:     relaypager.MaxTake,
		Database: Database{
			Driver:   strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     os.Getenv("DATABASE_PORT"),
			Username: os.Getenv("DATABASE_USERNAME"),
			Password: os.Getenv("DATABASE_PASSWORD"),
			Name:     os.Getenv("DATABASE_DATABASE"),
			Schema:   os.Getenv("DATABASE_SCHEMA"),
			SSL:      true,
		},
	}

	if err := validatePort(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}

	if raw := os.Getenv("PAGER_MAX_TAKE"); raw != "" {
		maxTake, err := strconv.Atoi(raw)
		if err != nil || maxTake <= 0 {
			return nil, fmt.Errorf("invalid PAGER_MAX_TAKE '%s': must be a positive number", raw)
		}
		cfg.MaxTake = maxTake
	}

	var err error
	if raw := os.Getenv("DATABASE_SSL"); raw != "" {
		cfg.Database.SSL, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_SSL '%s': %w", raw, err)
		}
	}

	if raw := os.Getenv("DATABASE_SEED"); raw != "" {
		cfg.Database.Seed, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_SEED '%s': %w", raw, err)
		}
	}

	if _, err = cfg.Database.DSN(); err != nil {
		return nil, err
	}

	if dotEnvErr != nil && !errors.Is(dotEnvErr, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env file: %w", dotEnvErr)
	}

	return cfg, nil
}

// DSN returns the connection string of the configured driver.
func (d Database) DSN() (string, error) {
	switch d.Driver {
	case DriverSQLite:
		if d.URL != "" {
			return d.URL, nil
		}
		if d.Name != "" {
			return d.Name, nil
		}

		return "file:relaypager.db?_foreign_keys=on", nil
	case DriverPostgres:
		if d.URL != "" {
			return d.URL, nil
		}

		if d.Name == "" {
			return "", fmt.Errorf("DATABASE_DATABASE is required for driver '%s'", d.Driver)
		}

		sslMode := "disable"
		if d.SSL {
			sslMode = "require"
		}

		parts := []string{
			"host=" + d.Host,
			"port=" + d.portOr("5432"),
			"dbname=" + d.Name,
			"sslmode=" + sslMode,
		}
		if d.Username != "" {
			parts = append(parts, "user="+d.Username)
		}
		if d.Password != "" {
			parts = append(parts, "password="+d.Password)
		}
		if d.Schema != "" {
			parts = append(parts, "search_path="+d.Schema)
		}

		return strings.Join(parts, " "), nil
	case DriverMySQL:
		if d.URL != "" {
			return d.URL, nil
		}

		if d.Name == "" {
			return "", fmt.Errorf("DATABASE_DATABASE is required for driver '%s'", d.Driver)
		}

		mysqlConfig := mysql.NewConfig()
		mysqlConfig.User = d.Username
		mysqlConfig.Passwd = d.Password
		mysqlConfig.Net = "tcp"
		mysqlConfig.Addr = net.JoinHostPort(d.Host, d.portOr("3306"))
		mysqlConfig.DBName = d.Name
		mysqlConfig.ParseTime = true
		mysqlConfig.Params = map[string]string{"charset": "utf8mb4"}
		if d.SSL {
			mysqlConfig.TLSConfig = "true"
		}

		return mysqlConfig.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_DRIVER '%s'", d.Driver)
	}
}

func (d Database) portOr(fallback string) string {
	if d.Port == "" {
		return fallback
	}

	return d.Port
}

// NewLogger builds the process logger: JSON production logger in production,
// development console logger otherwise, at LogLevel.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL '%s': %w", cfg.LogLevel, err)
	}

	loggerConfig := zap.NewDevelopmentConfig()
	if cfg.Environment == EnvProduction {
		loggerConfig = zap.NewProductionConfig()
		loggerConfig.EncoderConfig.TimeKey = "ts"
		loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	loggerConfig.Level = zap.NewAtomicLevelAt(level)

	return loggerConfig.Build()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func validatePort(port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return errors.New("port must be a number")
	}

	if portNum < 1 || portNum > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	return nil
}
