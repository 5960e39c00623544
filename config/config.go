package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime configuration for the application.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	DB struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"db"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
		FromName string `mapstructure:"from_name"`
	} `mapstructure:"smtp"`
	WhatsApp struct {
		BaseURL      string `mapstructure:"base_url"`
		Token        string `mapstructure:"token"`
		FromNumberID string `mapstructure:"from_number_id"`
	} `mapstructure:"whatsapp"`
	Dispatch struct {
		ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
	} `mapstructure:"dispatch"`
	Env string `mapstructure:"env"`
}

// Load reads configuration from config.yaml (if present) and the environment.
// Environment variables use the SHOPFLOW_ prefix, e.g. SHOPFLOW_DB_URL.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("SHOPFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("dispatch.channel_timeout", 10*time.Second)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("env", "production")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
