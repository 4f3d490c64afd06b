package aggregate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

var nameCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// foldMarks strips diacritics so "Náik" and "Naik" vote as the same name.
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds a display name for comparison: diacritics removed,
// lowercased, punctuation collapsed to single spaces.
func NormalizeName(s string) string {
	if folded, _, err := transform.String(foldMarks, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = nameCleanRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizeTaxID uppercases and rejects placeholder values.
func normalizeTaxID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch strings.ToLower(s) {
	case "", "none", "nan", "null", "na", "n/a":
		return ""
	}
	return s
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// observation is one per-period sighting of an identity attribute.
type observation struct {
	period model.Period
	value  string // normalized comparison form
	raw    string // display form for the canonical vote
}

// attributeVotes accumulates sightings of one identity attribute for a rider.
type attributeVotes struct {
	obs []observation
}

func (a *attributeVotes) add(p model.Period, normalized, raw string) {
	if normalized == "" {
		return
	}
	a.obs = append(a.obs, observation{period: p, value: normalized, raw: raw})
}

// canonical returns the most frequent raw value; ties break on the
// lexicographically smallest value so re-runs are deterministic.
func (a *attributeVotes) canonical() string {
	if len(a.obs) == 0 {
		return ""
	}
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, o := range a.obs {
		counts[o.value]++
		if _, ok := display[o.value]; !ok {
			display[o.value] = o.raw
		}
	}
	best := ""
	for v := range counts {
		if best == "" || counts[v] > counts[best] || (counts[v] == counts[best] && v < best) {
			best = v
		}
	}
	return display[best]
}

// variants returns the distinct normalized values observed.
func (a *attributeVotes) variants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range a.obs {
		if !seen[o.value] {
			seen[o.value] = true
			out = append(out, o.value)
		}
	}
	sort.Strings(out)
	return out
}

// conflictPeriods returns the period keys whose observed value disagrees with
// the canonical choice.
func (a *attributeVotes) conflictPeriods(canonicalNorm string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range a.obs {
		if o.value != canonicalNorm && !seen[o.period.Key()] {
			seen[o.period.Key()] = true
			out = append(out, o.period.Key())
		}
	}
	sort.Strings(out)
	return out
}
