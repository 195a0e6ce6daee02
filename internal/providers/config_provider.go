package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"feedmirror/internal/structures"

	"github.com/spf13/viper"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	filename := filepath.Base(flags.ConfigPath)
	viper.AddConfigPath(filepath.Dir(flags.ConfigPath))
	viper.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	viper.SetConfigType("yaml")

	viper.BindEnv("upstream.baseUrl", "FEEDMIRROR_UPSTREAM_URL")
	viper.BindEnv("sync.refreshInterval", "FEEDMIRROR_REFRESH_INTERVAL")
	viper.BindEnv("logger.level", "FEEDMIRROR_LOG_LEVEL")
	viper.BindEnv("cache.enabled", "FEEDMIRROR_CACHE_ENABLED")
	viper.BindEnv("cache.size", "FEEDMIRROR_CACHE_SIZE")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "FeedMirror"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
