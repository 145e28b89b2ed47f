package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	UnresolvedRateSkip  = "skip"
	UnresolvedRateBlock = "block"
)

// BillingConfig is the hot-reloadable billing policy.
type BillingConfig struct {
	DueDays              int           `mapstructure:"dueDays"`
	DefaultPeriodDays    int           `mapstructure:"defaultPeriodDays"`
	DefaultTaxRate       string        `mapstructure:"defaultTaxRate"`
	UnresolvedRatePolicy string        `mapstructure:"unresolvedRatePolicy"`
	InvoicePrefix        string        `mapstructure:"invoicePrefix"`
	LockTTL              time.Duration `mapstructure:"lockTTL"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueDays:              30,
		DefaultPeriodDays:    30,
		DefaultTaxRate:       "0",
		UnresolvedRatePolicy: UnresolvedRateSkip,
		InvoicePrefix:        "INV",
		LockTTL:              2 * time.Minute,
	}
}

// TaxRate parses DefaultTaxRate; validation guarantees it is well formed.
func (c BillingConfig) TaxRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultTaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c BillingConfig) BlockOnUnresolvedRate() bool {
	return strings.EqualFold(c.UnresolvedRatePolicy, UnresolvedRateBlock)
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/casebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CASEBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.dueDays", defaults.DueDays)
	v.SetDefault("billing.defaultPeriodDays", defaults.DefaultPeriodDays)
	v.SetDefault("billing.defaultTaxRate", defaults.DefaultTaxRate)
	v.SetDefault("billing.unresolvedRatePolicy", defaults.UnresolvedRatePolicy)
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)
	v.SetDefault("billing.lockTTL", defaults.LockTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DueDays < 0 {
		return errors.New("billing.dueDays cannot be negative")
	}
	if cfg.DefaultPeriodDays <= 0 {
		return errors.New("billing.defaultPeriodDays must be positive")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultTaxRate))
	if err != nil {
		return errors.New("billing.defaultTaxRate must be a decimal")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("billing.defaultTaxRate must be between 0 and 100")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.UnresolvedRatePolicy)) {
	case UnresolvedRateSkip, UnresolvedRateBlock:
	default:
		return errors.New("billing.unresolvedRatePolicy must be skip or block")
	}
	if strings.TrimSpace(cfg.InvoicePrefix) == "" {
		return errors.New("billing.invoicePrefix cannot be empty")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("billing.lockTTL must be positive")
	}
	return nil
}
