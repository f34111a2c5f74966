package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		DisableReqLogs            bool
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string // empty: in-process cache & broker
	}

	LLMConfig struct {
		APIKey            string
		Model             string
		JudgeModel        string
		RequestsPerMinute int
		Timeout           time.Duration
	}

	WorkflowConfig struct {
		MaxConcurrentRuns int
		MaxParallelSteps  int
		StaleAfter        time.Duration
		Heartbeat         time.Duration // how often executing runs are refreshed, must be well under StaleAfter
		SweepSchedule     string
	}

	Config struct {
		AppName                   string
		Build                     string
		Env                       string
		Debug                     bool
		TestMode                  bool
		WorkDir                   string
		SecretKey                 string
		FrontendBaseURL           string
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration
		CacheTTL                  time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		LLM      LLMConfig
		Workflow WorkflowConfig

		defaultFromEmail string
	}
)

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

// Address returns the "host:port" DB address.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Darasa")
	v.SetDefault("secretKey", "k2n8-ut)qsa$+41=fz&uwyr7(d!x)#*b2(#vk4h^$zpqm9tra")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Darasa <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("cacheTTL", 10*time.Minute)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 0) // SSE streams are long-lived
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.user", "darasa")
	v.SetDefault("database.password", "darasa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.url", "")

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.judgeModel", "gemini-2.5-pro")
	v.SetDefault("llm.requestsPerMinute", 60)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("workflow.maxConcurrentRuns", 4)
	v.SetDefault("workflow.maxParallelSteps", 3)
	v.SetDefault("workflow.staleAfter", 15*time.Minute)
	v.SetDefault("workflow.heartbeat", time.Minute)
	v.SetDefault("workflow.sweepSchedule", "@every 5m")
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with the upper-cased env name, eg. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		WorkDir:                   workDir,
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		CacheTTL:                  v.GetDuration("cacheTTL"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		LLM: LLMConfig{
			APIKey:            v.GetString("llm.apiKey"),
			Model:             v.GetString("llm.model"),
			JudgeModel:        v.GetString("llm.judgeModel"),
			RequestsPerMinute: v.GetInt("llm.requestsPerMinute"),
			Timeout:           v.GetDuration("llm.timeout"),
		},
		Workflow: WorkflowConfig{
			MaxConcurrentRuns: v.GetInt("workflow.maxConcurrentRuns"),
			MaxParallelSteps:  v.GetInt("workflow.maxParallelSteps"),
			StaleAfter:        v.GetDuration("workflow.staleAfter"),
			Heartbeat:         v.GetDuration("workflow.heartbeat"),
			SweepSchedule:     v.GetString("workflow.sweepSchedule"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, no external services.
func NewTestConfig() *Config {
	return &Config{
		AppName:                   "Darasa",
		Build:                     "test",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		CacheTTL:                  time.Minute,
		defaultFromEmail:          "Darasa <noreply@localhost>",
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			DisableReqLogs:            true,
		},
		Workflow: WorkflowConfig{
			MaxConcurrentRuns: 2,
			MaxParallelSteps:  2,
			StaleAfter:        time.Minute,
			Heartbeat:         10 * time.Second,
			SweepSchedule:     "@every 1m",
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s[%s] build=%s debug=%t", c.AppName, c.Env, c.Build, c.Debug)
}
