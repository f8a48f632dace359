// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Download struct {
		Dir            string   `mapstructure:"dir"`
		HostPriority   []string `mapstructure:"host_priority"`
		MaxConcurrent  int      `mapstructure:"max_concurrent"`
		BulkConcurrent int      `mapstructure:"bulk_concurrent"`
	} `mapstructure:"download"`
	Upload struct {
		Hosts           []string `mapstructure:"hosts"`
		MinSuccessHosts int      `mapstructure:"min_success_hosts"`
		MaxRetries      int      `mapstructure:"max_retries"`
	} `mapstructure:"upload"`
	Staging struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"staging"`
	Status struct {
		SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
		GraceMinutes         int `mapstructure:"grace_minutes"`
	} `mapstructure:"status"`
	Bulk struct {
		URL                   string `mapstructure:"url"`
		HealthIntervalSeconds int    `mapstructure:"health_interval_seconds"`
	} `mapstructure:"bulk"`
	TransferTimeoutMinutes int `mapstructure:"transfer_timeout_minutes"`

	// Hosts lists the file-hosting accounts and which capability each one
	// gets. Hosts without an entry here cannot be used by the schedulers.
	Hosts []HostConfig `mapstructure:"hosts"`
}

// HostConfig describes one file-hosting service account.
type HostConfig struct {
	Name       string `mapstructure:"name"`       // e.g. "rapidgator.net"
	Downloader string `mapstructure:"downloader"` // "direct", "bulk" or "" for none
	Upload     struct {
		BaseURL string `mapstructure:"base_url"`
		Login   string `mapstructure:"login"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"upload"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// This tells Viper to look for environment variables with a "MIRRORBOT_"
	// prefix. e.g., MIRRORBOT_DATABASE_PATH overrides the `database.path` key.
	viper.SetEnvPrefix("MIRRORBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./mirrorbot.db")
	viper.SetDefault("download.dir", "./downloads")
	viper.SetDefault("download.host_priority", defaultHostPriority)
	viper.SetDefault("download.max_concurrent", 4)
	viper.SetDefault("download.bulk_concurrent", 256)
	viper.SetDefault("upload.hosts", []string{})
	viper.SetDefault("upload.min_success_hosts", 1)
	viper.SetDefault("upload.max_retries", 3)
	viper.SetDefault("staging.dir", "./staging")
	viper.SetDefault("status.sweep_interval_seconds", 10)
	viper.SetDefault("status.grace_minutes", 2)
	viper.SetDefault("bulk.url", "")
	viper.SetDefault("bulk.health_interval_seconds", 30)
	viper.SetDefault("transfer_timeout_minutes", 60)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// defaultHostPriority embeds the common premium hosts first; operators can
// reorder it in config.yml or through MIRRORBOT_DOWNLOAD_HOST_PRIORITY.
var defaultHostPriority = []string{
	"rapidgator.net",
	"katfile.com",
	"nitroflare.com",
	"ddownload.com",
	"mega.nz",
	"uploady.io",
}
