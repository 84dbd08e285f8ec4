package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/quietleaf/journal/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultAuthDBPath   = "data/auth.db"

	defaultOllamaBaseURL    = "http://localhost:11434"
	defaultOllamaModel      = "phi3:mini"
	defaultOllamaTimeout    = 60
	defaultOllamaMaxRetries = 3
	defaultOllamaRetryDelay = 1.0

	defaultMaxRequestsPerHour = 50
)

// Storage backends, picked once at startup
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment
	Environment string

	// Address on which the journal service will be run
	ListenAddr string

	// Database to connect to
	// Empty or non-postgres value means the embedded sqlite file is used
	DatabaseDSN string

	// Where the embedded sqlite file lives
	AuthDBPath string

	// Secret key
	// Session cookies are signed symmetrically, so this key is used for that purpose
	SecretKey string

	// Local text generation service
	OllamaBaseURL    string
	OllamaModel      string
	OllamaTimeout    int
	OllamaMaxRetries int
	OllamaRetryDelay float64

	// AI endpoint rate limiting
	RateLimitEnabled   bool
	MaxRequestsPerHour int

	// Browser origins allowed to call the API
	CORSOrigins []string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		Environment: defaultEnvironment,
		ListenAddr:  defaultListenAddr,
		AuthDBPath:  defaultAuthDBPath,

		OllamaBaseURL:    defaultOllamaBaseURL,
		OllamaModel:      defaultOllamaModel,
		OllamaTimeout:    defaultOllamaTimeout,
		OllamaMaxRetries: defaultOllamaMaxRetries,
		OllamaRetryDelay: defaultOllamaRetryDelay,

		RateLimitEnabled:   true,
		MaxRequestsPerHour: defaultMaxRequestsPerHour,

		CORSOrigins: []string{"http://localhost:8080", "https://*.github.io"},
	}
}

// Backend the storage backend the DSN selects
// Decided here once, the rest of the app just gets the matching storage
func (c *Config) Backend() string {
	if strings.Contains(c.DatabaseDSN, "postgres") {
		return BackendPostgres
	}
	return BackendSQLite
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}
	setFloat := func(o *float64) func(value string) {
		return func(value string) {
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				*o = parsed
			}
		}
	}
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			if parsed, err := strconv.ParseBool(value); err == nil {
				*o = parsed
			}
		}
	}
	setStrings := func(o *[]string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = strings.Split(value, ",")
			}
		}
	}

	envMap := map[string]func(string){
		"LISTEN_ADDR":           setString(&c.ListenAddr),
		"DATABASE_URL":          setString(&c.DatabaseDSN),
		"AUTH_DB_PATH":          setString(&c.AuthDBPath),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"OLLAMA_BASE_URL":       setString(&c.OllamaBaseURL),
		"OLLAMA_MODEL":          setString(&c.OllamaModel),
		"OLLAMA_TIMEOUT":        setInt(&c.OllamaTimeout),
		"OLLAMA_MAX_RETRIES":    setInt(&c.OllamaMaxRetries),
		"OLLAMA_RETRY_DELAY":    setFloat(&c.OllamaRetryDelay),
		"RATE_LIMIT_ENABLED":    setBool(&c.RateLimitEnabled),
		"MAX_REQUESTS_PER_HOUR": setInt(&c.MaxRequestsPerHour),
		"CORS_ORIGINS":          setStrings(&c.CORSOrigins),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("journal", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string (postgres), empty for embedded sqlite")
	fs.StringVar(&c.AuthDBPath, "auth-db-path", c.AuthDBPath, "Path to the embedded sqlite database file")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.OllamaBaseURL, "ollama-url", c.OllamaBaseURL, "Ollama base URL")
	fs.StringVarP(&c.OllamaModel, "model", "m", c.OllamaModel, "Ollama model identifier")

	return fs.Parse(args)
}
