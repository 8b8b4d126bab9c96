package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SubscriptionPolicy holds the time windows driving the subscription
// lifecycle. Trial carries no grace window: a lapsed trial is expired
// immediately.
type SubscriptionPolicy struct {
	TrialDays           int `mapstructure:"trialDays"`
	BillingPeriodMonths int `mapstructure:"billingPeriodMonths"`
	GraceDays           int `mapstructure:"graceDays"`
}

func DefaultSubscriptionPolicy() SubscriptionPolicy {
	return SubscriptionPolicy{
		TrialDays:           14,
		BillingPeriodMonths: 1,
		GraceDays:           7,
	}
}

// PolicyHolder exposes the current policy and hot-reloads it when the
// policy file changes on disk.
type PolicyHolder struct {
	current atomic.Value // holds SubscriptionPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/storelane/config")
	v.AddConfigPath("/etc/storelane")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STORELANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSubscriptionPolicy()
	v.SetDefault("subscription.trialDays", defaults.TrialDays)
	v.SetDefault("subscription.billingPeriodMonths", defaults.BillingPeriodMonths)
	v.SetDefault("subscription.graceDays", defaults.GraceDays)

	holder := &PolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		v.WatchConfig()
		v.OnConfigChange(func(_ fsnotify.Event) {
			var cfg SubscriptionPolicy
			if err := v.UnmarshalKey("subscription", &cfg); err != nil {
				zap.L().Warn("reload subscription policy", zap.Error(err))
				return
			}
			holder.current.Store(sanitizePolicy(cfg))
		})
	}

	var cfg SubscriptionPolicy
	if err := v.UnmarshalKey("subscription", &cfg); err != nil {
		return nil, err
	}
	holder.current.Store(sanitizePolicy(cfg))

	return holder, nil
}

// Policy returns the currently loaded subscription policy.
func (h *PolicyHolder) Policy() SubscriptionPolicy {
	if v, ok := h.current.Load().(SubscriptionPolicy); ok {
		return v
	}
	return DefaultSubscriptionPolicy()
}

func sanitizePolicy(cfg SubscriptionPolicy) SubscriptionPolicy {
	defaults := DefaultSubscriptionPolicy()
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = defaults.TrialDays
	}
	if cfg.BillingPeriodMonths <= 0 {
		cfg.BillingPeriodMonths = defaults.BillingPeriodMonths
	}
	if cfg.GraceDays < 0 {
		cfg.GraceDays = defaults.GraceDays
	}
	return cfg
}
