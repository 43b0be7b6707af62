package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/campus-events/event-aggregator/internal/adapters/database/memory"
	postgresStorage "github.com/campus-events/event-aggregator/internal/adapters/database/postgres"
	"github.com/campus-events/event-aggregator/internal/adapters/database/redis"
	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
	"github.com/campus-events/event-aggregator/internal/adapters/database/xlsx"
	"github.com/campus-events/event-aggregator/internal/domain/utils/location"
	"github.com/campus-events/event-aggregator/pkg/logger"
)

const (
	DriverXLSX     = "xlsx"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Store tables.Store
	// Database is set for the postgres driver only.
	Database *gorm.DB
	// Redis is nil unless service.redis.enabled is set.
	Redis *redis.Client
	// SMTPDialer is nil unless service.smtp.enabled is set; mail is then
	// only logged.
	SMTPDialer *gomail.Dialer
}

func setDefaults() {
	viper.SetDefault("settings.debug", false)
	viper.SetDefault("settings.timezone", "UTC")
	viper.SetDefault("settings.log-to-file", false)
	viper.SetDefault("settings.logs-dir", "logs")
	viper.SetDefault("settings.store.driver", DriverXLSX)
	viper.SetDefault("settings.store.xlsx-dir", "data")
	viper.SetDefault("settings.reminder.interval", time.Hour)
	viper.SetDefault("settings.reminder.window", 24*time.Hour)
	viper.SetDefault("settings.reminder.leads", []string{"24h", "48h"})
	viper.SetDefault("settings.notify.grace", 5*time.Minute)
	viper.SetDefault("settings.metrics.addr", ":9090")
	viper.SetDefault("settings.events.transport", "gochannel")
	viper.SetDefault("settings.events.consumer-group", "event-aggregator")
	viper.SetDefault("settings.qr.size", 512)
	viper.SetDefault("settings.posters-dir", "event_posters")

	viper.SetDefault("service.redis.enabled", false)
	viper.SetDefault("service.redis.port", 6379)
	viper.SetDefault("service.redis.session-ttl", 24*time.Hour)
	viper.SetDefault("service.redis.lock-ttl", 30*time.Second)
	viper.SetDefault("service.database.port", 5432)
	viper.SetDefault("service.database.sslmode", "disable")
	viper.SetDefault("service.smtp.enabled", false)
	viper.SetDefault("service.smtp.port", 587)
	viper.SetDefault("service.smtp.timeout", 15*time.Second)
	viper.SetDefault("service.smtp.retries", 3)
	viper.SetDefault("service.smtp.backoff", 2*time.Second)
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if path := os.Getenv("EVENTS_CONFIG"); path != "" {
		viper.SetConfigFile(path)
	}

	// EVENTS_SERVICE_SMTP_PASSWORD overrides service.smtp.password
	viper.SetEnvPrefix("events")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(err)
		}
		log.Println("config.yaml not found, using defaults and environment")
	}
}

func Get() *Config {
	initConfig()

	if err := location.Load(viper.GetString("settings.timezone")); err != nil {
		panic(err)
	}

	err := logger.Init(logger.Config{
		Debug:        viper.GetBool("settings.debug"),
		TimeLocation: location.Location(),
		LogToFile:    viper.GetBool("settings.log-to-file"),
		LogsDir:      viper.GetString("settings.logs-dir"),
	})
	if err != nil {
		panic(err)
	}

	cfg := &Config{}

	storeLogger, err := logger.Named("store")
	if err != nil {
		panic(err)
	}

	switch driver := viper.GetString("settings.store.driver"); driver {
	case DriverXLSX:
		dir := viper.GetString("settings.store.xlsx-dir")
		cfg.Store, err = xlsx.New(dir, tables.DefaultSchema, storeLogger)
		if err != nil {
			logger.Log.Panicf("Failed to open spreadsheet store: %v", err)
		}
		logger.Log.Infof("Using spreadsheet store in %s", dir)
	case DriverPostgres:
		cfg.Database = openDatabase()
		cfg.Store = postgresStorage.NewTableStorage(cfg.Database)
	case DriverMemory:
		cfg.Store = memory.New()
		logger.Log.Warn("Using in-memory store, nothing will be persisted")
	default:
		logger.Log.Panicf("Unknown store driver %q", driver)
	}

	if err = tables.Migrate(context.Background(), cfg.Store, tables.DefaultSchema); err != nil {
		logger.Log.Panicf("Failed to prepare tables: %v", err)
	}

	if viper.GetBool("service.redis.enabled") {
		cfg.Redis, err = redis.New(redis.Options{
			Host:       viper.GetString("service.redis.host"),
			Port:       viper.GetInt("service.redis.port"),
			Password:   viper.GetString("service.redis.password"),
			SessionTTL: viper.GetDuration("service.redis.session-ttl"),
			LockTTL:    viper.GetDuration("service.redis.lock-ttl"),
		})
		if err != nil {
			logger.Log.Panicf("Failed to connect to redis: %v", err)
		}
		logger.Log.Info("Successfully connected to redis")
	}

	if viper.GetBool("service.smtp.enabled") {
		cfg.SMTPDialer = gomail.NewDialer(
			viper.GetString("service.smtp.host"),
			viper.GetInt("service.smtp.port"),
			viper.GetString("service.smtp.username"),
			viper.GetString("service.smtp.password"),
		)
	}

	return cfg
}

func openDatabase() *gorm.DB {
	var gormConfig *gorm.Config
	if viper.GetBool("settings.debug") {
		newLogger := gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold: time.Second,
				LogLevel:      gormLogger.Info,
				Colorful:      true,
			},
		)
		gormConfig = &gorm.Config{
			Logger: newLogger,
		}
	} else {
		gormConfig = &gorm.Config{}
	}

	dsn := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%d sslmode=%s TimeZone=%s",
		viper.GetString("service.database.user"),
		viper.GetString("service.database.password"),
		viper.GetString("service.database.name"),
		viper.GetString("service.database.host"),
		viper.GetInt("service.database.port"),
		viper.GetString("service.database.sslmode"),
		location.Location().String(),
	)

	database, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		logger.Log.Panicf("Failed to connect to the database: %v", err)
	} else {
		logger.Log.Info("Successfully connected to the database")
	}

	errMigrate := database.AutoMigrate(postgresStorage.Migrations...)
	if errMigrate != nil {
		logger.Log.Panicf("Failed to migrate database: %v", errMigrate)
	}
	return database
}
