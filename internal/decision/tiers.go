package decision

import (
	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// AssignTier evaluates the tier table in strict priority order and returns the
// first entry whose threshold predicates all hold. Tiers are not mutually
// exclusive by construction, so entry order is the tie-break. No match returns
// the fallback tier.
func AssignTier(f model.RiderFeatureRecord, tiers []config.TierPolicy, fallback config.TierPolicy) config.TierPolicy {
	for _, t := range tiers {
		if matchesTier(f, t) {
			return t
		}
	}
	return fallback
}

func matchesTier(f model.RiderFeatureRecord, t config.TierPolicy) bool {
	return f.WeeksSinceLastActive <= t.MaxWeeksSinceActive &&
		f.ActiveWeeksWorked >= t.MinActiveWeeks &&
		f.CurrentStreak >= t.MinStreak &&
		f.NetPayoutCV <= t.MaxPayoutCV
}
