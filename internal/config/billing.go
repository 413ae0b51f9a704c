package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultDueWindowDays = 30

// BillingConfig carries the policy knobs of invoice generation.
type BillingConfig struct {
	DueWindowDays    int
	BillVacantHouses bool
	// TargetMonth is "YYYY-MM"; empty means the current UTC month.
	TargetMonth string
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueWindowDays:    DefaultDueWindowDays,
		BillVacantHouses: false,
	}
}

// Target resolves TargetMonth into the first instant of that month (UTC).
func (c BillingConfig) Target(now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.TargetMonth)
	if raw == "" {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01", raw)
	if err != nil {
		return time.Time{}, errors.New("billing.target_month must be formatted YYYY-MM")
	}
	return parsed.UTC(), nil
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config, mainly for tests and CLIs.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/estatebill")
	v.AddConfigPath(".")

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.due_window_days", defaults.DueWindowDays)
	v.SetDefault("billing.bill_vacant_houses", defaults.BillVacantHouses)
	v.SetDefault("billing.target_month", "")

	_ = v.BindEnv("billing.due_window_days", "BILLING_DUE_WINDOW_DAYS")
	_ = v.BindEnv("billing.bill_vacant_houses", "BILLING_BILL_VACANT_HOUSES")
	_ = v.BindEnv("billing.target_month", "BILLING_TARGET_MONTH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := readBillingConfig(v)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := readBillingConfig(v)
			if err := validateBillingConfig(updated); err != nil {
				log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func readBillingConfig(v *viper.Viper) BillingConfig {
	return BillingConfig{
		DueWindowDays:    v.GetInt("billing.due_window_days"),
		BillVacantHouses: v.GetBool("billing.bill_vacant_houses"),
		TargetMonth:      strings.TrimSpace(v.GetString("billing.target_month")),
	}
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DueWindowDays <= 0 {
		return errors.New("billing.due_window_days must be positive")
	}
	if cfg.TargetMonth != "" {
		if _, err := time.Parse("2006-01", cfg.TargetMonth); err != nil {
			return errors.New("billing.target_month must be formatted YYYY-MM")
		}
	}
	return nil
}
