package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// NotificationConfig holds operator-tunable delivery settings. Unlike Config it
// is read from a mounted yaml file and hot-reloaded, so a running instance can
// be retuned without a restart.
type NotificationConfig struct {
	// DefaultPriority is used when a producer does not set one.
	DefaultPriority string `mapstructure:"defaultPriority"`
	// BroadcastPageSize caps recipients resolved per audience page.
	BroadcastPageSize int `mapstructure:"broadcastPageSize"`
	// QuietHoursBypass lists priorities that ignore a user's quiet hours.
	QuietHoursBypass []string `mapstructure:"quietHoursBypass"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		DefaultPriority:   "normal",
		BroadcastPageSize: 200,
		QuietHoursBypass:  []string{"critical"},
	}
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

func NewNotificationConfigHolder() (*NotificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notification")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/skolara/config") // Volume-mounted config
	v.AddConfigPath("/etc/skolara")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("SKOLARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		defaults := DefaultNotificationConfig()
		v.SetDefault("notification.defaultPriority", defaults.DefaultPriority)
		v.SetDefault("notification.broadcastPageSize", defaults.BroadcastPageSize)
		v.SetDefault("notification.quietHoursBypass", defaults.QuietHoursBypass)
	}

	var cfg NotificationConfig
	if err := v.UnmarshalKey("notification", &cfg); err != nil {
		return nil, err
	}
	if err := validateNotificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated NotificationConfig
			if err := v.UnmarshalKey("notification", &updated); err != nil {
				log.Printf("[notification-config] reload failed: %v", err)
				return
			}
			if err := validateNotificationConfig(updated); err != nil {
				log.Printf("[notification-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[notification-config] reloaded from %s", e.Name)
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticNotificationConfigHolder wraps a fixed config, with no file or
// watcher behind it.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	return h.current.Load().(NotificationConfig)
}

func validateNotificationConfig(cfg NotificationConfig) error {
	if cfg.BroadcastPageSize <= 0 {
		return errors.New("notification.broadcastPageSize must be positive")
	}
	if strings.TrimSpace(cfg.DefaultPriority) == "" {
		return errors.New("notification.defaultPriority cannot be empty")
	}
	return nil
}
