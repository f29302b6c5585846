package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string
		Debug    bool
		TestMode bool
		AppName  string
		Build    string

		Server    ServerConfig
		Database  DatabaseConfig
		Dashboard DashboardConfig

		RollbarToken string
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		Name          string
		DisableTLS    bool
	}

	DashboardConfig struct {
		CacheTTL time.Duration
	}
)

// Address returns the database server address in "host:port" form.
func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Jindo")
	conf.SetDefault("build", "dev")

	conf.SetDefault("serverHost", "0.0.0.0:8000")
	conf.SetDefault("serverDebugHost", "0.0.0.0:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)

	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseUser", "jindo")
	conf.SetDefault("databasePassword", "")
	conf.SetDefault("databaseAdminUser", "")
	conf.SetDefault("databaseAdminPassword", "")
	conf.SetDefault("databaseHost", "")
	conf.SetDefault("databasePort", 5432)
	conf.SetDefault("databaseName", "jindo")
	conf.SetDefault("databaseDisableTLS", true)

	conf.SetDefault("dashboardCacheTTL", time.Minute)

	conf.SetDefault("rollbarToken", "")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	c := &Config{
		Env:          env,
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		RollbarToken: conf.GetString("rollbarToken"),
	}

	c.Server = ServerConfig{
		Host:            conf.GetString("serverHost"),
		DebugHost:       conf.GetString("serverDebugHost"),
		ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
	}

	c.Database = DatabaseConfig{
		Engine:        conf.GetString("databaseEngine"),
		User:          conf.GetString("databaseUser"),
		Password:      conf.GetString("databasePassword"),
		AdminUser:     conf.GetString("databaseAdminUser"),
		AdminPassword: conf.GetString("databaseAdminPassword"),
		Host:          conf.GetString("databaseHost"),
		Port:          conf.GetInt("databasePort"),
		Name:          conf.GetString("databaseName"),
		DisableTLS:    conf.GetBool("databaseDisableTLS"),
	}

	c.Dashboard = DashboardConfig{
		CacheTTL: conf.GetDuration("dashboardCacheTTL"),
	}

	return c
}
