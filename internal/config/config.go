package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Ingest         IngestConfig         `yaml:"ingest" mapstructure:"ingest"`
	Activity       ActivityConfig       `yaml:"activity" mapstructure:"activity"`
	Gates          GateConfig           `yaml:"gates" mapstructure:"gates"`
	Decision       DecisionConfig       `yaml:"decision" mapstructure:"decision"`
	WorkingCapital WorkingCapitalConfig `yaml:"working_capital" mapstructure:"working_capital"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`

	// Tier table, highest priority first, plus the no-match fallback.
	// Loaded from defaults or a YAML override file; not viper keys because
	// entry order is the tie-break and must survive round-tripping.
	Tiers    []TierPolicy `yaml:"tiers" mapstructure:"-"`
	Fallback TierPolicy   `yaml:"fallback" mapstructure:"-"`
}

// StoreConfig configures the optional run-history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite", "postgres", or "off"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// IngestConfig configures extract file parsing.
type IngestConfig struct {
	// NetPayoutColumns is the ordered candidate list for the net payout
	// source column; the first one present in a run's extracts wins.
	NetPayoutColumns []string `yaml:"net_payout_columns" mapstructure:"net_payout_columns"`
}

// ActivityConfig selects the activity-qualification rule applied uniformly
// before any streak or count computation.
type ActivityConfig struct {
	Rule string `yaml:"rule" mapstructure:"rule"` // "any_signal" or "orders_or_attendance"
}

// Activity rule names.
const (
	ActivityAnySignal          = "any_signal"
	ActivityOrdersOrAttendance = "orders_or_attendance"
)

// GateConfig holds the global hard eligibility gates. All must pass,
// independent of tier.
type GateConfig struct {
	MinActiveWeeks          int     `yaml:"min_active_weeks" mapstructure:"min_active_weeks"`
	MinCurrentStreak        int     `yaml:"min_current_streak" mapstructure:"min_current_streak"`
	MaxWeeksSinceLastActive int     `yaml:"max_weeks_since_last_active" mapstructure:"max_weeks_since_last_active"`
	MinNetPayoutP10         float64 `yaml:"min_net_payout_p10" mapstructure:"min_net_payout_p10"`
	MaxCancelRate           float64 `yaml:"max_cancel_rate" mapstructure:"max_cancel_rate"`
}

// DecisionConfig holds forecast, sizing, and risk parameters.
type DecisionConfig struct {
	Product          string  `yaml:"product" mapstructure:"product"`
	SigmaHaircut     float64 `yaml:"sigma_haircut" mapstructure:"sigma_haircut"`
	RepaymentWeeks   int     `yaml:"repayment_weeks" mapstructure:"repayment_weeks"`
	BaseLimitHaircut float64 `yaml:"base_limit_haircut" mapstructure:"base_limit_haircut"`
	MinTicket        float64 `yaml:"min_ticket" mapstructure:"min_ticket"`
	RoundTo          int     `yaml:"round_to" mapstructure:"round_to"`
	LGD              float64 `yaml:"lgd" mapstructure:"lgd"`

	// DeductionShareCap is applied on top of the tier share in 3PL mode.
	DeductionShareCap float64 `yaml:"deduction_share_cap" mapstructure:"deduction_share_cap"`
}

// WorkingCapitalConfig holds the 3PL economics assumptions.
type WorkingCapitalConfig struct {
	TakeRate               float64 `yaml:"take_rate" mapstructure:"take_rate"`
	ReferralFeePerAdvance  float64 `yaml:"referral_fee_per_advance" mapstructure:"referral_fee_per_advance"`
	RevenueShareOfInterest float64 `yaml:"revenue_share_of_interest" mapstructure:"revenue_share_of_interest"`
}

// ServerConfig configures the read-only artifact server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UNDERWRITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "underwrite.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.net_payout_columns", []string{
		"final_with_gst_minus_settlement",
		"final_with_gst",
		"total_with_management_fee",
		"total_with_arrears_and_deductions",
		"total_with_arrears",
		"base_pay",
	})
	v.SetDefault("activity.rule", ActivityAnySignal)
	v.SetDefault("gates.min_active_weeks", 4)
	v.SetDefault("gates.min_current_streak", 2)
	v.SetDefault("gates.max_weeks_since_last_active", 0)
	v.SetDefault("gates.min_net_payout_p10", 1500.0)
	v.SetDefault("gates.max_cancel_rate", 0.08)
	v.SetDefault("decision.product", "salary_advance_lender")
	v.SetDefault("decision.sigma_haircut", 0.75)
	v.SetDefault("decision.repayment_weeks", 4)
	v.SetDefault("decision.base_limit_haircut", 0.90)
	v.SetDefault("decision.min_ticket", 500.0)
	v.SetDefault("decision.round_to", 100)
	v.SetDefault("decision.lgd", 0.35)
	v.SetDefault("decision.deduction_share_cap", 0.25)
	v.SetDefault("working_capital.take_rate", 0.40)
	v.SetDefault("working_capital.referral_fee_per_advance", 125.0)
	v.SetDefault("working_capital.revenue_share_of_interest", 0.20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.Tiers = DefaultTiers()
	cfg.Fallback = DefaultFallback()

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
