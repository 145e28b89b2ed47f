package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	cfg := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(cfg))
	assert.Equal(t, 30, cfg.DueDays)
	assert.False(t, cfg.BlockOnUnresolvedRate())
	assert.True(t, cfg.TaxRate().Equal(decimal.Zero))
}

func TestValidateBillingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BillingConfig){
		"negative due days": func(c *BillingConfig) { c.DueDays = -1 },
		"zero period":       func(c *BillingConfig) { c.DefaultPeriodDays = 0 },
		"tax not decimal":   func(c *BillingConfig) { c.DefaultTaxRate = "ten" },
		"tax over 100":      func(c *BillingConfig) { c.DefaultTaxRate = "101" },
		"unknown policy":    func(c *BillingConfig) { c.UnresolvedRatePolicy = "guess" },
		"empty prefix":      func(c *BillingConfig) { c.InvoicePrefix = " " },
		"non positive ttl":  func(c *BillingConfig) { c.LockTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, validateBillingConfig(cfg))
		})
	}
}

func TestStaticHolderReturnsStoredConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.UnresolvedRatePolicy = UnresolvedRateBlock
	cfg.LockTTL = time.Second
	cfg.DefaultTaxRate = "21"

	holder := NewStaticBillingConfigHolder(cfg)
	got := holder.Get()
	assert.True(t, got.BlockOnUnresolvedRate())
	assert.True(t, got.TaxRate().Equal(decimal.NewFromInt(21)))
	assert.Equal(t, time.Second, got.LockTTL)
}
