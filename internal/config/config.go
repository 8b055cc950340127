// Package config provides functionality for managing configuration options
// for the application using command-line flags, a .env file and environment
// variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// RedisAddr is the address of the Redis instance used for login rate
	// limiting. When empty, rate limiting is disabled.
	RedisAddr string

	// AppKey is the base64-encoded 256-bit key used for record-level
	// field encryption.
	AppKey string

	// TokenMaxAge is the session token lifetime in seconds.
	TokenMaxAge int

	// StatusUpdateURL is the endpoint of the web interface that receives
	// participant status updates.
	StatusUpdateURL string

	// SecurePath is the directory that holds per-mission image data.
	SecurePath string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.RedisAddr, "r", "", "redis address for rate limiting")
	flag.IntVar(&options.TokenMaxAge, "t", 86400, "session token lifetime in seconds")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags, the .env file and environment
// variables to set configuration values. Environment variables win over the
// config file, which wins over flag defaults. It returns a pointer to the
// Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Load a .env file if present; real environment variables keep priority.
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		options.RedisAddr = redisAddr
	}
	if appKey := os.Getenv("APP_KEY"); appKey != "" {
		options.AppKey = appKey
	}
	if maxAge := os.Getenv("TOKEN_MAX_AGE"); maxAge != "" {
		age, err := strconv.Atoi(maxAge)
		if err != nil {
			log.Fatalf("TOKEN_MAX_AGE must be an integer number of seconds: %v", err)
		}
		options.TokenMaxAge = age
	}
	if statusURL := os.Getenv("STATUS_UPDATE_URL"); statusURL != "" {
		options.StatusUpdateURL = statusURL
	}
	if securePath := os.Getenv("SECURE_PATH"); securePath != "" {
		options.SecurePath = securePath
	}

	return options
}
