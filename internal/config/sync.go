package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncTuning bounds the per-entity page count for a single sync run, so a very
// large external account cannot hold a run open indefinitely.
type SyncTuning struct {
	PageCeilings map[string]int `mapstructure:"pageCeilings"`
}

func DefaultSyncTuning() SyncTuning {
	return SyncTuning{
		PageCeilings: map[string]int{
			"charges":         100,
			"payment_intents": 50,
			"subscriptions":   50,
			"products":        20,
			"prices":          20,
			"invoices":        100,
			"customers":       50,
		},
	}
}

// PageCeiling returns the ceiling for an entity, falling back to the default
// table when the tuning file omits it.
func (t SyncTuning) PageCeiling(entity string) int {
	if ceiling, ok := t.PageCeilings[entity]; ok && ceiling > 0 {
		return ceiling
	}
	if ceiling, ok := DefaultSyncTuning().PageCeilings[entity]; ok {
		return ceiling
	}
	return 50
}

type SyncTuningHolder struct {
	current atomic.Value // holds SyncTuning
}

func NewSyncTuningHolder() (*SyncTuningHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/metricdock/config")
	v.AddConfigPath("/etc/metricdock")
	v.AddConfigPath(".")

	v.SetEnvPrefix("METRICDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultSyncTuning()
		v.SetDefault("sync.pageCeilings", defaults.PageCeilings)
	}

	var cfg SyncTuning
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return nil, err
	}
	if err := validateSyncTuning(cfg); err != nil {
		return nil, err
	}
	if cfg.PageCeilings == nil {
		cfg = DefaultSyncTuning()
	}

	holder := &SyncTuningHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncTuning
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Printf("[sync-config] reload failed: %v", err)
			return
		}
		if err := validateSyncTuning(updated); err != nil {
			log.Printf("[sync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

func (h *SyncTuningHolder) Current() SyncTuning {
	if h == nil {
		return DefaultSyncTuning()
	}
	if cfg, ok := h.current.Load().(SyncTuning); ok {
		return cfg
	}
	return DefaultSyncTuning()
}

func validateSyncTuning(cfg SyncTuning) error {
	for entity, ceiling := range cfg.PageCeilings {
		if ceiling < 0 {
			return errors.New("sync page ceiling must not be negative: " + entity)
		}
	}
	return nil
}
