package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the tunable billing rules that can change without a restart.
type BillingConfig struct {
	Numbering   NumberingConfig   `mapstructure:"numbering"`
	NoShowFee   NoShowFeeConfig   `mapstructure:"noShowFee"`
	Receivables ReceivablesConfig `mapstructure:"receivables"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
}

type NumberingConfig struct {
	Prefix string `mapstructure:"prefix"`
	Start  int64  `mapstructure:"start"`
}

type NoShowFeeConfig struct {
	Description string `mapstructure:"description"`
	VATRate     string `mapstructure:"vatRate"`
}

// VAT returns the configured no-show VAT rate as a decimal.
func (c NoShowFeeConfig) VAT() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.VATRate))
	if err != nil {
		return decimal.RequireFromString(defaultNoShowVATRate)
	}
	return rate
}

type ReceivablesConfig struct {
	OverdueDays int `mapstructure:"overdueDays"`
}

type ConcurrencyConfig struct {
	MaxAttempts uint `mapstructure:"maxAttempts"`
}

const defaultNoShowVATRate = "0"

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Numbering: NumberingConfig{
			Prefix: "INV-",
			Start:  1000,
		},
		NoShowFee: NoShowFeeConfig{
			Description: "No-show fee",
			VATRate:     defaultNoShowVATRate,
		},
		Receivables: ReceivablesConfig{
			OverdueDays: 30,
		},
		Concurrency: ConcurrencyConfig{
			MaxAttempts: 5,
		},
	}
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

func NewBillingConfigHolder(cfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	if cfg.BillingConfigPath != "" {
		v.SetConfigFile(filepath.Clean(cfg.BillingConfigPath))
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/vetbill")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VETBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.numbering.prefix", defaults.Numbering.Prefix)
	v.SetDefault("billing.numbering.start", defaults.Numbering.Start)
	v.SetDefault("billing.noShowFee.description", defaults.NoShowFee.Description)
	v.SetDefault("billing.noShowFee.vatRate", defaults.NoShowFee.VATRate)
	v.SetDefault("billing.receivables.overdueDays", defaults.Receivables.OverdueDays)
	v.SetDefault("billing.concurrency.maxAttempts", defaults.Concurrency.MaxAttempts)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var billing BillingConfig
	if err := v.UnmarshalKey("billing", &billing); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(billing); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(billing)
	if !fileLoaded {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Numbering.Prefix) == "" {
		return errors.New("billing.numbering.prefix cannot be empty")
	}
	if cfg.Numbering.Start < 1 {
		return errors.New("billing.numbering.start must be positive")
	}
	if strings.TrimSpace(cfg.NoShowFee.Description) == "" {
		return errors.New("billing.noShowFee.description cannot be empty")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.NoShowFee.VATRate))
	if err != nil {
		return errors.New("billing.noShowFee.vatRate must be a decimal")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("billing.noShowFee.vatRate must be between 0 and 1")
	}
	if cfg.Receivables.OverdueDays < 1 {
		return errors.New("billing.receivables.overdueDays must be positive")
	}
	if cfg.Concurrency.MaxAttempts < 1 {
		return errors.New("billing.concurrency.maxAttempts must be positive")
	}
	return nil
}
