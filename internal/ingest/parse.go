package ingest

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

var (
	headerCleanRe = regexp.MustCompile(`[^a-z0-9]+`)
	weekTokenRe   = regexp.MustCompile(`\bweek\s*(\d+)\b`)
	year4Re       = regexp.MustCompile(`\b(20\d{2})\b`)
	year2Re       = regexp.MustCompile(`\b(\d{2})\b`)
	wordRe        = regexp.MustCompile(`[a-z]+`)
)

// normalizeHeader folds a raw column header to canonical snake_case:
// "Delivered Orders " -> "delivered_orders".
func normalizeHeader(h string) string {
	s := strings.ToLower(strings.TrimSpace(h))
	s = headerCleanRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// headerAliases maps extract-specific column spellings to the canonical names
// the pipeline uses. The external normalizer guarantees the mapping is
// possible; this covers the spellings seen in real extracts.
var headerAliases = map[string]string{
	"attendance":     "attendance_days",
	"rider_city":     "city",
	"provider":       "lmd_provider",
	"tds":            "tax_withheld",
	"total_distance": "distance_km",
	"distance":       "distance_km",
}

func canonicalHeader(h string) string {
	s := normalizeHeader(h)
	if alias, ok := headerAliases[s]; ok {
		return alias
	}
	return s
}

// parsePeriodFromFilename extracts (year, month, week) from names like
// "ELERIDE IBBN Payout Sep 25 WEEK 4.xlsx". Any element it cannot find is
// returned as zero.
func parsePeriodFromFilename(path string) (year, month, week int) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s := strings.ToLower(stem)

	for _, w := range wordRe.FindAllString(s, -1) {
		if m, ok := monthNames[w]; ok {
			month = m
			break
		}
	}

	if m := weekTokenRe.FindStringSubmatch(s); m != nil {
		week, _ = strconv.Atoi(m[1])
	}

	if m := year4Re.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
	} else if m := year2Re.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		year = 2000 + y
	}

	return year, month, week
}

// parseFloat parses a numeric cell leniently: currency symbols, grouping
// commas, and surrounding space are stripped. The second return reports
// whether the cell held a usable number; blank cells are usable zeros.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, true
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseInt parses an integer cell with the same leniency as parseFloat.
func parseInt(s string) (int, bool) {
	v, ok := parseFloat(s)
	if !ok {
		return 0, false
	}
	return int(v), true
}
