package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override settings,
// e.g. HYPERMEDIA_SERVER_ADDR for server.addr.
const EnvPrefix = "HYPERMEDIA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.dsn", "file:hypermedia.db")

	v.SetDefault("render.page_size", 20)
	v.SetDefault("render.embed", []string{})
	v.SetDefault("render.link_only", []string{})

	v.SetDefault("pagination.first", "")
	v.SetDefault("pagination.prev", "")
	v.SetDefault("pagination.next", "")
	v.SetDefault("pagination.last", "")
	v.SetDefault("pagination.cursor_param", "")
	v.SetDefault("pagination.size_param", "")

	v.SetDefault("client.timeout", "10s")
	v.SetDefault("client.retry_max", 3)
	v.SetDefault("client.format", "")
}

// Load reads defaults, then the optional config file at path, then
// environment variables. Later sources win.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
