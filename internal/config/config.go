package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// FeedSchedule syncs the listed feeds ("<id>@<community>") on a cron spec.
type FeedSchedule struct {
	Cron  string   `mapstructure:"cron"`
	Feeds []string `mapstructure:"feeds"`
}

type Config struct {
	Database struct {
		// DSN is a sqlite path or file: DSN, or a postgres:// URL.
		DSN string `mapstructure:"dsn"`
		// AutoMigrate applies the schema when the app starts.
		AutoMigrate bool `mapstructure:"auto_migrate"`
	} `mapstructure:"database"`

	Storage struct {
		// BucketURL is a gocloud blob URL, e.g. file:///var/lib/bottle/media.
		BucketURL string `mapstructure:"bucket_url"`
	} `mapstructure:"storage"`

	Download struct {
		Concurrency int    `mapstructure:"concurrency"`
		Overwrite   bool   `mapstructure:"overwrite"`
		UserAgent   string `mapstructure:"user_agent"`
	} `mapstructure:"download"`

	Retry struct {
		MaxAttempts int           `mapstructure:"max_attempts"`
		Interval    time.Duration `mapstructure:"interval"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"retry"`

	Sync struct {
		Delay time.Duration `mapstructure:"delay"`
	} `mapstructure:"sync"`

	Gallery struct {
		MaxDrift int           `mapstructure:"max_drift"`
		Delay    time.Duration `mapstructure:"delay"`
	} `mapstructure:"gallery"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Schedule struct {
		Feeds []FeedSchedule `mapstructure:"feeds"`
		// Images is the cron spec of the image download job. Empty disables it.
		Images string `mapstructure:"images"`
	} `mapstructure:"schedule"`

	Server struct {
		Addr string `mapstructure:"addr"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Communities struct {
		Yandere struct {
			BaseURL string `mapstructure:"base_url"`
		} `mapstructure:"yandere"`
	} `mapstructure:"communities"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "bottle.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.bucket_url", "file://./media?create_dir=true")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.overwrite", false)
	v.SetDefault("download.user_agent", "bottle/1.0")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.interval", time.Second)
	v.SetDefault("retry.timeout", 30*time.Second)
	v.SetDefault("sync.delay", time.Second)
	v.SetDefault("gallery.max_drift", 5)
	v.SetDefault("gallery.delay", time.Second)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queues", map[string]int{"bottle": 1})
	v.SetDefault("schedule.images", "")
	v.SetDefault("server.addr", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("communities.yandere.base_url", "https://yande.re")
}

// LoadConfig reads config.yaml from the working directory. A .env file, when
// present, is loaded into the environment first. BOTTLE_* variables override
// file values, e.g. BOTTLE_DATABASE_DSN.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit config file. An empty path
// searches for config.yaml in ".".
func LoadConfigFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("BOTTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("Config file not found, using defaults and environment")
	} else {
		log.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &config, nil
}
