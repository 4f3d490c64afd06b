package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TierPolicy is one entry of the ordered risk-tier table. Entry thresholds
// gate admission into the tier; the economics fields govern sizing and pricing
// for riders assigned to it. The fallback tier uses only the economics fields.
type TierPolicy struct {
	Tier string `yaml:"tier"`

	// Entry thresholds. A rider matches when every predicate holds.
	MaxWeeksSinceActive int     `yaml:"max_weeks_since_active"`
	MinActiveWeeks      int     `yaml:"min_active_weeks"`
	MinStreak           int     `yaml:"min_streak"`
	MaxPayoutCV         float64 `yaml:"max_payout_cv"`

	// Economics.
	MaxDeductionShare float64 `yaml:"max_deduction_share"`
	LimitHaircut      float64 `yaml:"limit_haircut"`
	PD                float64 `yaml:"pd"`
	APR               float64 `yaml:"apr"`
}

// DefaultTiers returns the built-in tier table, highest priority first.
func DefaultTiers() []TierPolicy {
	return []TierPolicy{
		{Tier: "A", MaxWeeksSinceActive: 0, MinActiveWeeks: 10, MinStreak: 6, MaxPayoutCV: 0.45, MaxDeductionShare: 0.30, LimitHaircut: 0.95, PD: 0.010, APR: 0.35},
		{Tier: "B", MaxWeeksSinceActive: 0, MinActiveWeeks: 6, MinStreak: 3, MaxPayoutCV: 0.75, MaxDeductionShare: 0.27, LimitHaircut: 0.92, PD: 0.020, APR: 0.40},
		{Tier: "C", MaxWeeksSinceActive: 1, MinActiveWeeks: 4, MinStreak: 2, MaxPayoutCV: 1.10, MaxDeductionShare: 0.25, LimitHaircut: 0.88, PD: 0.045, APR: 0.45},
	}
}

// DefaultFallback returns the decline-leaning tier assigned when no table
// entry matches. It is sized and priced but never auto-disbursed.
func DefaultFallback() TierPolicy {
	return TierPolicy{Tier: "D", MaxDeductionShare: 0.22, LimitHaircut: 0.85, PD: 0.080, APR: 0.36}
}

// tierFile is the on-disk shape of a tier override file.
type tierFile struct {
	Tiers    []TierPolicy `yaml:"tiers"`
	Fallback *TierPolicy  `yaml:"fallback"`
}

// LoadTierFile replaces the config's tier table with the contents of a YAML
// override file. Entry order in the file is the evaluation order.
func (c *Config) LoadTierFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read tier file %s", path)
	}

	var tf tierFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return eris.Wrapf(err, "config: parse tier file %s", path)
	}
	if len(tf.Tiers) == 0 {
		return eris.Errorf("config: tier file %s defines no tiers", path)
	}

	c.Tiers = tf.Tiers
	if tf.Fallback != nil {
		c.Fallback = *tf.Fallback
	}
	return nil
}

// Validate checks the policy surface. Any violation is fatal at startup: a run
// must fail before producing output rather than build every offer on an
// invalid denominator.
func (c *Config) Validate() error {
	if c.Decision.RepaymentWeeks < 1 {
		return eris.Errorf("config: repayment_weeks must be >= 1, got %d", c.Decision.RepaymentWeeks)
	}
	if c.Decision.SigmaHaircut < 0 {
		return eris.Errorf("config: sigma_haircut must be >= 0, got %g", c.Decision.SigmaHaircut)
	}
	if c.Decision.BaseLimitHaircut <= 0 || c.Decision.BaseLimitHaircut > 1 {
		return eris.Errorf("config: base_limit_haircut must be in (0, 1], got %g", c.Decision.BaseLimitHaircut)
	}
	if c.Decision.MinTicket < 0 {
		return eris.Errorf("config: min_ticket must be >= 0, got %g", c.Decision.MinTicket)
	}
	if c.Decision.RoundTo < 0 {
		return eris.Errorf("config: round_to must be >= 0, got %d", c.Decision.RoundTo)
	}
	if c.Decision.LGD < 0 || c.Decision.LGD > 1 {
		return eris.Errorf("config: lgd must be in [0, 1], got %g", c.Decision.LGD)
	}
	if c.Decision.DeductionShareCap <= 0 || c.Decision.DeductionShareCap > 1 {
		return eris.Errorf("config: deduction_share_cap must be in (0, 1], got %g", c.Decision.DeductionShareCap)
	}
	if p := c.Decision.Product; p != "salary_advance_lender" && p != "3pl_operator" {
		return eris.Errorf("config: unknown product %q", p)
	}
	if r := c.Activity.Rule; r != ActivityAnySignal && r != ActivityOrdersOrAttendance {
		return eris.Errorf("config: unknown activity rule %q", r)
	}
	if c.Gates.MinActiveWeeks < 0 || c.Gates.MinCurrentStreak < 0 || c.Gates.MaxWeeksSinceLastActive < 0 {
		return eris.New("config: gate thresholds must be >= 0")
	}
	if c.Gates.MaxCancelRate < 0 || c.Gates.MaxCancelRate > 1 {
		return eris.Errorf("config: max_cancel_rate must be in [0, 1], got %g", c.Gates.MaxCancelRate)
	}

	if len(c.Tiers) == 0 {
		return eris.New("config: tier table is empty")
	}
	seen := make(map[string]bool, len(c.Tiers)+1)
	for _, t := range append(append([]TierPolicy{}, c.Tiers...), c.Fallback) {
		if t.Tier == "" {
			return eris.New("config: tier entry missing tier id")
		}
		if seen[t.Tier] {
			return eris.Errorf("config: duplicate tier %q", t.Tier)
		}
		seen[t.Tier] = true
		if err := validateTier(t); err != nil {
			return err
		}
	}
	return nil
}

// validateTier rejects entries whose thresholds can never be satisfied or
// whose economics would zero out every offer.
func validateTier(t TierPolicy) error {
	if t.MaxWeeksSinceActive < 0 || t.MinActiveWeeks < 0 || t.MinStreak < 0 || t.MaxPayoutCV < 0 {
		return eris.Errorf("config: tier %s has an unsatisfiable threshold", t.Tier)
	}
	if t.MaxDeductionShare <= 0 || t.MaxDeductionShare > 1 {
		return eris.Errorf("config: tier %s max_deduction_share must be in (0, 1], got %g", t.Tier, t.MaxDeductionShare)
	}
	if t.LimitHaircut <= 0 || t.LimitHaircut > 1 {
		return eris.Errorf("config: tier %s limit_haircut must be in (0, 1], got %g", t.Tier, t.LimitHaircut)
	}
	if t.PD < 0 || t.PD > 1 {
		return eris.Errorf("config: tier %s pd must be in [0, 1], got %g", t.Tier, t.PD)
	}
	if t.APR < 0 {
		return eris.Errorf("config: tier %s apr must be >= 0, got %g", t.Tier, t.APR)
	}
	return nil
}
