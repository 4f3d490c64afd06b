package aggregate

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/ingest"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// Result is the output of the rider-week aggregation stage.
type Result struct {
	// Facts holds exactly one row per (rider, period), sorted by period
	// then rider key.
	Facts []model.RiderWeekFact
	// Identities is the canonical identity table, sorted by rider key.
	Identities []model.RiderIdentity
	// Conflicts lists identity attributes that varied across periods.
	Conflicts []model.IdentityConflict
	// ExcludedNoIdentity counts rows per source file that carried no usable
	// rider identity and were excluded rather than merged into a wrong rider.
	ExcludedNoIdentity map[string]int
}

type factAcc struct {
	metrics     model.WeekMetrics
	sourceFiles map[string]bool
}

type identityAcc struct {
	ceeID        attributeVotes
	name         attributeVotes
	taxID        attributeVotes
	city         attributeVotes
	provider     attributeVotes
	deliveryMode attributeVotes
	periods      map[model.Period]bool
}

// Build deduplicates raw extract rows into the rider-week fact table and
// derives the canonical identity table plus the identity-conflict report.
// Numeric metrics for rows sharing a (rider, period) key are summed; rows
// without a usable identity are excluded and tallied.
func Build(rows []ingest.RawRow, cfg config.ActivityConfig) Result {
	facts := make(map[string]map[model.Period]*factAcc)
	identities := make(map[string]*identityAcc)
	excluded := make(map[string]int)

	for _, row := range rows {
		key := riderKey(row)
		if key == "" {
			excluded[row.SourceFile]++
			continue
		}

		byPeriod, ok := facts[key]
		if !ok {
			byPeriod = make(map[model.Period]*factAcc)
			facts[key] = byPeriod
		}
		acc, ok := byPeriod[row.Period]
		if !ok {
			acc = &factAcc{sourceFiles: make(map[string]bool)}
			byPeriod[row.Period] = acc
		}
		acc.metrics.Add(row.Metrics)
		acc.sourceFiles[row.SourceFile] = true

		id, ok := identities[key]
		if !ok {
			id = &identityAcc{periods: make(map[model.Period]bool)}
			identities[key] = id
		}
		id.periods[row.Period] = true
		id.ceeID.add(row.Period, cleanCEEID(row.CEEID), cleanCEEID(row.CEEID))
		id.name.add(row.Period, NormalizeName(row.Name), strings.TrimSpace(row.Name))
		id.taxID.add(row.Period, normalizeTaxID(row.TaxID), normalizeTaxID(row.TaxID))
		id.city.add(row.Period, normalizeCity(row.City), strings.TrimSpace(row.City))
		id.provider.add(row.Period, normalizeCity(row.Provider), strings.TrimSpace(row.Provider))
		id.deliveryMode.add(row.Period, normalizeCity(row.DeliveryMode), strings.TrimSpace(row.DeliveryMode))
	}

	res := Result{ExcludedNoIdentity: excluded}
	for key, byPeriod := range facts {
		for period, acc := range byPeriod {
			files := make([]string, 0, len(acc.sourceFiles))
			for f := range acc.sourceFiles {
				files = append(files, f)
			}
			sort.Strings(files)

			res.Facts = append(res.Facts, model.RiderWeekFact{
				RiderKey:        key,
				Period:          period,
				WeekMetrics:     acc.metrics,
				SourceFileCount: len(files),
				SourceFiles:     strings.Join(files, "|"),
				Active:          isActive(acc.metrics, cfg.Rule),
			})
		}
	}
	sort.Slice(res.Facts, func(i, j int) bool {
		a, b := res.Facts[i], res.Facts[j]
		if a.Period != b.Period {
			return a.Period.Less(b.Period)
		}
		return a.RiderKey < b.RiderKey
	})

	for key, id := range identities {
		res.Identities = append(res.Identities, model.RiderIdentity{
			RiderKey:      key,
			CEEID:         id.ceeID.canonical(),
			Name:          id.name.canonical(),
			TaxID:         id.taxID.canonical(),
			City:          id.city.canonical(),
			Provider:      id.provider.canonical(),
			DeliveryMode:  id.deliveryMode.canonical(),
			ObservedWeeks: len(id.periods),
			NameVariants:  len(id.name.variants()),
			TaxIDVariants: len(id.taxID.variants()),
			CityVariants:  len(id.city.variants()),
		})
		res.Conflicts = append(res.Conflicts, conflictsFor(key, id)...)
	}
	sort.Slice(res.Identities, func(i, j int) bool {
		return res.Identities[i].RiderKey < res.Identities[j].RiderKey
	})
	sort.Slice(res.Conflicts, func(i, j int) bool {
		a, b := res.Conflicts[i], res.Conflicts[j]
		if a.RiderKey != b.RiderKey {
			return a.RiderKey < b.RiderKey
		}
		return a.Field < b.Field
	})

	zap.L().Info("aggregate: built rider-week facts",
		zap.Int("facts", len(res.Facts)),
		zap.Int("riders", len(res.Identities)),
		zap.Int("identity_conflicts", len(res.Conflicts)),
	)
	return res
}

// riderKey derives the grouping key, preferring the platform id, then the tax
// id, then normalized name+city as a last resort. An empty key means the row
// cannot be attributed to any rider.
func riderKey(row ingest.RawRow) string {
	if id := cleanCEEID(row.CEEID); id != "" {
		return "cee_id:" + id
	}
	if pan := normalizeTaxID(row.TaxID); pan != "" {
		return "pan:" + pan
	}
	name := NormalizeName(row.Name)
	if name == "" {
		return ""
	}
	return "name_city:" + name + "|" + normalizeCity(row.City)
}

// cleanCEEID trims the float rendering some sheets give integer ids.
func cleanCEEID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	switch strings.ToLower(s) {
	case "", "none", "nan", "null":
		return ""
	}
	return s
}

// isActive applies the configured activity-qualification rule.
func isActive(m model.WeekMetrics, rule string) bool {
	switch rule {
	case config.ActivityOrdersOrAttendance:
		return m.DeliveredOrders > 0 || m.AttendanceDays > 0
	default: // any_signal
		return m.DeliveredOrders > 0 || m.AttendanceDays > 0 || m.BasePay > 0 || m.NetPayout > 0
	}
}

func conflictsFor(key string, id *identityAcc) []model.IdentityConflict {
	var out []model.IdentityConflict
	fields := []struct {
		name  string
		votes *attributeVotes
	}{
		{"name", &id.name},
		{"tax_id", &id.taxID},
		{"city", &id.city},
	}
	for _, f := range fields {
		variants := f.votes.variants()
		if len(variants) < 2 {
			continue
		}
		canonicalRaw := f.votes.canonical()
		canonicalNorm := canonicalRaw
		if f.name == "name" {
			canonicalNorm = NormalizeName(canonicalRaw)
		} else if f.name == "city" {
			canonicalNorm = normalizeCity(canonicalRaw)
		}
		out = append(out, model.IdentityConflict{
			RiderKey:      key,
			Field:         f.name,
			Canonical:     canonicalRaw,
			Variants:      variants,
			Periods:       f.votes.conflictPeriods(canonicalNorm),
			ObservedWeeks: len(id.periods),
		})
	}
	return out
}
