package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "maptracker.cfg.json"

// ErrNoConfigFile is returned by Load when the config directory has no
// config file. Defaults remain in effect.
var ErrNoConfigFile = errors.New("config file not found")

// StorageConfig holds ambient storage settings
type StorageConfig struct {
	Type         string        `json:"type" mapstructure:"type"`
	Key          string        `json:"key" mapstructure:"key"`
	WriteQueue   int           `json:"writeQueue" mapstructure:"writeQueue"`
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	GData        GDataConfig   `json:"gdata" mapstructure:"gdata"`
	SQLite       SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
	Memory       MemoryConfig  `json:"memory" mapstructure:"memory"`
}

// GDataConfig holds settings for the gdata (per-user app data) backend
type GDataConfig struct {
	AppName string `json:"appName" mapstructure:"appName"`
}

// SQLiteConfig holds settings for the SQLite backend
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// MemoryConfig holds in-memory backend settings
type MemoryConfig struct {
	Quota int `json:"quota" mapstructure:"quota"`
}

// ServerConfig holds renderer-facing HTTP settings
type ServerConfig struct {
	Listen         string   `json:"listen" mapstructure:"listen"`
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowedOrigins"`
	StaticDir      string   `json:"staticDir" mapstructure:"staticDir"`
	MaxUploadBytes int64    `json:"maxUploadBytes" mapstructure:"maxUploadBytes"`

	// StatusFile receives a JSON status snapshot every StatusInterval while
	// serving. Empty disables the file; status is still logged at debug.
	StatusFile     string        `json:"statusFile" mapstructure:"statusFile"`
	StatusInterval time.Duration `json:"statusInterval" mapstructure:"statusInterval"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level          string `json:"logLevel" mapstructure:"logLevel"`
	Dir            string `json:"logsDir" mapstructure:"logsDir"`
	GraylogEnabled bool   `json:"graylogEnabled" mapstructure:"graylogEnabled"`
	GraylogAddress string `json:"graylogAddress" mapstructure:"graylogAddress"`
}

// SetDefaults registers every default value. Load calls it; it is exported
// so commands that skip the config file still see defaults.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./maplogs")
	viper.SetDefault("language", "en")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("server.listen", "127.0.0.1:8090")
	viper.SetDefault("server.allowedOrigins", []string{})
	viper.SetDefault("server.staticDir", "")
	viper.SetDefault("server.maxUploadBytes", 1<<20)
	viper.SetDefault("server.statusFile", "")
	viper.SetDefault("server.statusInterval", "10s")

	viper.SetDefault("catalog.dir", "./catalog")

	viper.SetDefault("storage.type", "gdata")
	viper.SetDefault("storage.key", "selectedMarkers")
	viper.SetDefault("storage.writeQueue", 64)
	viper.SetDefault("storage.writeTimeout", "5s")
	viper.SetDefault("storage.gdata.appName", "maptracker")
	viper.SetDefault("storage.sqlite.path", "./maptracker.db")
	viper.SetDefault("storage.memory.quota", 0)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file
// returns an error wrapping ErrNoConfigFile.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w in %s", ErrNoConfigFile, configDir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set overrides a config value, typically from a command line flag.
func Set(key string, value any) {
	viper.Set(key, value)
}

// GetStorageConfig returns the ambient storage configuration
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         viper.GetString("storage.type"),
		Key:          viper.GetString("storage.key"),
		WriteQueue:   viper.GetInt("storage.writeQueue"),
		WriteTimeout: viper.GetDuration("storage.writeTimeout"),
		GData: GDataConfig{
			AppName: viper.GetString("storage.gdata.appName"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Memory: MemoryConfig{
			Quota: viper.GetInt("storage.memory.quota"),
		},
	}
}

// GetServerConfig returns the HTTP server configuration
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:         viper.GetString("server.listen"),
		AllowedOrigins: viper.GetStringSlice("server.allowedOrigins"),
		StaticDir:      viper.GetString("server.staticDir"),
		MaxUploadBytes: viper.GetInt64("server.maxUploadBytes"),
		StatusFile:     viper.GetString("server.statusFile"),
		StatusInterval: viper.GetDuration("server.statusInterval"),
	}
}

// GetLogConfig returns the logging configuration
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// GetCatalogDir returns the directory marker catalogs are loaded from
func GetCatalogDir() string {
	return viper.GetString("catalog.dir")
}

// GetLanguage returns the locale used for user-facing notices
func GetLanguage() string {
	return viper.GetString("language")
}
