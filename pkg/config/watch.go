package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/gatefs/gatefs/internal/logger"
)

// WatchLogLevel re-applies the logging level and format whenever the config
// file changes on disk. Only logging settings are hot-reloaded; everything
// else requires a restart.
func WatchLogLevel(configPath string) error {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		// Nothing to watch.
		return nil
	}

	v.OnConfigChange(func(fsnotify.Event) {
		if level := v.GetString("logging.level"); level != "" {
			logger.SetLevel(level)
			logger.Info("log level reloaded", "level", level)
		}
		if format := v.GetString("logging.format"); format != "" {
			logger.SetFormat(format)
		}
	})
	v.WatchConfig()
	return nil
}
