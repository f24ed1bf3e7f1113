package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		DefaultFromEmail string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridKey      string

		Server   ServerConfig
		Database DatabaseConfig
		Client   ClientConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		ExternalURL               string // base URL the API is reached at, used in emailed links
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		EmailConfirmTimeoutDelta  time.Duration
		RequireEmailConfirmation  bool
		AnonKey                   string
		GoogleClientID            string
		GoogleClientSecret        string
		OAuthCallbackURL          string
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		Path          string // sqlite only
		DisableTLS    bool
	}

	// ClientConfig holds what the study planner client needs to reach its backend.
	ClientConfig struct {
		BackendURL     string
		AnonKey        string
		StorageDir     string
		StorageKey     string // prefix of every persisted session key
		RedisAddr      string
		RedisPassword  string
		RedisDB        int
		ExpiryMargin   time.Duration
		LoadTimeout    time.Duration
		RequestTimeout time.Duration
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// Validate fails fast when the client cannot possibly reach its backend.
func (cc ClientConfig) Validate() error {
	var missing []string
	if cc.BackendURL == "" {
		missing = append(missing, "client.backendURL")
	}
	if cc.AnonKey == "" {
		missing = append(missing, "client.anonKey")
	}
	if len(missing) > 0 {
		return NewConfigurationError(
			fmt.Sprintf("missing backend configuration: %s; please check your environment variables", strings.Join(missing, ", ")),
		)
	}
	return nil
}

// NewConfig loads the configuration of the current ENV (DEV by default).
// Values are looked up in the environment (prefixed with ENV, e.g. DEV_CLIENT_BACKENDURL),
// then in config/.env.<env> if it exists, then fall back to defaults.
func NewConfig() *Config {
	return newConfig(os.Getenv("ENV"))
}

func newConfig(env string) *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Study Planner")
	v.SetDefault("secretKey", "k3n@9v_pl4nn3r!d3v$s3cr3t-k3y-ch4ng3-m3-1n-pr0d")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.externalURL", "http://localhost:8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.emailConfirmTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.requireEmailConfirmation", false)
	v.SetDefault("server.anonKey", "")
	v.SetDefault("server.googleClientID", "")
	v.SetDefault("server.googleClientSecret", "")
	v.SetDefault("server.oauthCallbackURL", "http://localhost:8000/auth/v1/callback")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "planner")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "planner")
	v.SetDefault("database.path", "planner.db")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("client.backendURL", "")
	v.SetDefault("client.anonKey", "")
	v.SetDefault("client.storageDir", defaultStorageDir())
	v.SetDefault("client.storageKey", "planner.auth")
	v.SetDefault("client.redisAddr", "")
	v.SetDefault("client.redisPassword", "")
	v.SetDefault("client.redisDB", 0)
	v.SetDefault("client.expiryMargin", 30*time.Second)
	v.SetDefault("client.loadTimeout", 10*time.Second)
	v.SetDefault("client.requestTimeout", 30*time.Second)

	env = strings.ToUpper(env) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridKey:      v.GetString("sendgridKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			ExternalURL:               strings.TrimRight(v.GetString("server.externalURL"), "/"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			EmailConfirmTimeoutDelta:  v.GetDuration("server.emailConfirmTimeoutDelta"),
			RequireEmailConfirmation:  v.GetBool("server.requireEmailConfirmation"),
			AnonKey:                   v.GetString("server.anonKey"),
			GoogleClientID:            v.GetString("server.googleClientID"),
			GoogleClientSecret:        v.GetString("server.googleClientSecret"),
			OAuthCallbackURL:          v.GetString("server.oauthCallbackURL"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			Path:          v.GetString("database.path"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Client: ClientConfig{
			BackendURL:     strings.TrimRight(v.GetString("client.backendURL"), "/"),
			AnonKey:        v.GetString("client.anonKey"),
			StorageDir:     v.GetString("client.storageDir"),
			StorageKey:     v.GetString("client.storageKey"),
			RedisAddr:      v.GetString("client.redisAddr"),
			RedisPassword:  v.GetString("client.redisPassword"),
			RedisDB:        v.GetInt("client.redisDB"),
			ExpiryMargin:   v.GetDuration("client.expiryMargin"),
			LoadTimeout:    v.GetDuration("client.loadTimeout"),
			RequestTimeout: v.GetDuration("client.requestTimeout"),
		},
	}
}

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".planner"
	}
	return filepath.Join(dir, "planner")
}
