// Package config loads the runtime configuration from file and environment,
// with sane defaults for a single-server sqlite install.
package config

import (
	"errors"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/homeward-mc/homeward/internal/database"
	"github.com/homeward-mc/homeward/internal/log"
)

var (
	ErrReadConfig   = errors.New("failed to read config file")
	ErrFormatConfig = errors.New("invalid config file format")
	ErrHomeDir      = errors.New("failed to locate home directory")
)

type Config struct {
	General generalConfig `mapstructure:"general"`
	DB      dbConfig      `mapstructure:"database"`
	Log     log.Config    `mapstructure:"log"`
}

type generalConfig struct {
	// ServerName identifies this server within the cluster; it is stamped
	// onto every position this server saves.
	ServerName           string `mapstructure:"server_name"`
	CaseInsensitiveNames bool   `mapstructure:"case_insensitive_names"`
}

type dbConfig struct {
	Type database.Type `mapstructure:"type"`
	// DSN is the postgres connection string, ignored for sqlite.
	DSN string `mapstructure:"dsn"`
	// Path is the sqlite database file, ignored for postgres.
	Path             string            `mapstructure:"path"`
	TableNames       map[string]string `mapstructure:"table_names"`
	StrictMigrations bool              `mapstructure:"strict_migrations"`
	LogQueries       bool              `mapstructure:"log_queries"`
}

func (db dbConfig) DatabaseConfig() database.Config {
	return database.Config{
		Type:             db.Type,
		DSN:              db.DSN,
		Path:             db.Path,
		TableNames:       db.TableNames,
		StrictMigrations: db.StrictMigrations,
		LogQueries:       db.LogQueries,
	}
}

// Read reads in the config file and ENV variables if set. An empty cfgFile
// searches the default locations instead.
func Read(cfgFile string) (Config, error) {
	home, errHome := homedir.Dir()
	if errHome != nil {
		return Config{}, errors.Join(errHome, ErrHomeDir)
	}

	viper.AddConfigPath(home)
	viper.AddConfigPath(".")
	viper.SetConfigName("homeward")
	viper.SetConfigType("yml")
	viper.SetEnvPrefix("homeward")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if errRead := viper.ReadInConfig(); errRead != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(errRead, &notFound) {
			return Config{}, errors.Join(errRead, ErrReadConfig)
		}
	}

	var conf Config
	if errUnmarshal := viper.Unmarshal(&conf); errUnmarshal != nil {
		return Config{}, errors.Join(errUnmarshal, ErrFormatConfig)
	}

	dbType, errType := database.ParseType(string(conf.DB.Type))
	if errType != nil {
		return Config{}, errType
	}

	conf.DB.Type = dbType

	if strings.HasPrefix(conf.DB.DSN, "pgx://") {
		conf.DB.DSN = strings.Replace(conf.DB.DSN, "pgx://", "postgres://", 1)
	}

	return conf, nil
}

func init() {
	viper.SetDefault("general.server_name", "server")
	viper.SetDefault("general.case_insensitive_names", true)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "postgresql://localhost/homeward")
	viper.SetDefault("database.path", "homeward.db")
	viper.SetDefault("database.table_names", map[string]string{})
	viper.SetDefault("database.strict_migrations", false)
	viper.SetDefault("database.log_queries", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.sentry_dsn", "")
}
