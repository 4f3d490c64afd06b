package feature

import (
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

// Build folds the rider-week fact table into one RiderFeatureRecord per rider.
// The global latest period is reduced once before any per-rider work: every
// continuity and recency field is measured against it, not against the rider's
// own last row. workers > 1 fans the per-rider folds out concurrently; each
// rider's features depend only on that rider's own rows, so the result is
// identical to sequential execution.
func Build(facts []model.RiderWeekFact, workers int) []model.RiderFeatureRecord {
	if len(facts) == 0 {
		return nil
	}

	seqOf := periodIndex(facts)
	globalMax := len(seqOf) - 1

	byRider := make(map[string][]model.RiderWeekFact)
	for _, f := range facts {
		byRider[f.RiderKey] = append(byRider[f.RiderKey], f)
	}
	keys := make([]string, 0, len(byRider))
	for k := range byRider {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.RiderFeatureRecord, len(keys))
	if workers <= 1 {
		for i, k := range keys {
			out[i] = buildRider(k, byRider[k], seqOf, globalMax)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, k := range keys {
			g.Go(func() error {
				out[i] = buildRider(k, byRider[k], seqOf, globalMax)
				return nil
			})
		}
		_ = g.Wait() // buildRider cannot fail
	}

	zap.L().Info("feature: built rider features",
		zap.Int("riders", len(out)),
		zap.Int("periods", len(seqOf)),
	)
	return out
}

// periodIndex assigns a dense chronological index to every distinct period in
// the dataset so streak arithmetic spans month boundaries.
func periodIndex(facts []model.RiderWeekFact) map[model.Period]int {
	seen := make(map[model.Period]bool)
	var periods []model.Period
	for _, f := range facts {
		if !seen[f.Period] {
			seen[f.Period] = true
			periods = append(periods, f.Period)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Less(periods[j]) })

	seqOf := make(map[model.Period]int, len(periods))
	for i, p := range periods {
		seqOf[p] = i
	}
	return seqOf
}

// buildRider folds one rider's facts, already reduced to one row per period,
// into a feature record. The fold is an explicit reduction over the rider's
// totally ordered period sequence; raw row arrival order cannot influence it.
func buildRider(key string, facts []model.RiderWeekFact, seqOf map[model.Period]int, globalMax int) model.RiderFeatureRecord {
	sort.Slice(facts, func(i, j int) bool { return facts[i].Period.Less(facts[j].Period) })

	rec := model.RiderFeatureRecord{
		RiderKey:      key,
		WeeksObserved: len(facts),
	}

	activeSet := make(map[int]bool)
	var activeSeqs []int
	var payoutsActive []float64
	for _, f := range facts {
		seq := seqOf[f.Period]
		if f.Active {
			activeSet[seq] = true
			activeSeqs = append(activeSeqs, seq)
			if f.NetPayout != 0 {
				payoutsActive = append(payoutsActive, f.NetPayout)
			}
		}

		rec.TotalNetPayout += f.NetPayout
		rec.BasePaySum += f.BasePay
		rec.IncentiveSum += f.IncentiveTotal
		rec.DeliveredSum += f.DeliveredOrders
		rec.CancelledSum += f.CancelledOrders
		rec.WeekdaySum += f.WeekdayOrders
		rec.WeekendSum += f.WeekendOrders
		rec.AttendanceSum += f.AttendanceDays
	}

	rec.ActiveWeeksWorked = len(activeSeqs)
	rec.LongestStreak = longestRun(activeSeqs)
	rec.CurrentStreak = streakEndingAt(seqOf[facts[len(facts)-1].Period], activeSet)
	rec.GapCount, rec.MaxGapWeeks = gaps(activeSeqs)
	if len(activeSeqs) > 0 {
		rec.WeeksSinceLastActive = globalMax - activeSeqs[len(activeSeqs)-1]
	} else {
		rec.WeeksSinceLastActive = globalMax + 1
	}

	rec.NetPayoutMean = Mean(payoutsActive)
	rec.NetPayoutStd = PopStd(payoutsActive)
	rec.NetPayoutCV = SafeRatio(rec.NetPayoutStd, rec.NetPayoutMean)
	rec.NetPayoutMedian = Percentile(payoutsActive, 0.50)
	rec.NetPayoutP10 = Percentile(payoutsActive, 0.10)
	rec.NetPayoutP90 = Percentile(payoutsActive, 0.90)
	rec.NetPayoutMin = Percentile(payoutsActive, 0)
	rec.NetPayoutMax = Percentile(payoutsActive, 1)

	last4 := facts
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	var last4Payouts []float64
	for _, f := range last4 {
		if f.Active {
			rec.ActiveWeeksLast4++
			last4Payouts = append(last4Payouts, f.NetPayout)
		}
	}
	rec.Last4PayoutMean = Mean(last4Payouts)

	rec.IncentiveShare = SafeRatio(rec.IncentiveSum, rec.BasePaySum+rec.IncentiveSum)
	rec.CancelRate = SafeRatio(rec.CancelledSum, rec.DeliveredSum+rec.CancelledSum)
	rec.WeekendShare = SafeRatio(rec.WeekendSum, rec.WeekdaySum+rec.WeekendSum)

	return rec
}

// streakEndingAt counts consecutive active periods walking backwards from the
// rider's latest observed period. An inactive or unobserved week breaks it.
func streakEndingAt(latestSeq int, activeSet map[int]bool) int {
	streak := 0
	for s := latestSeq; s >= 0 && activeSet[s]; s-- {
		streak++
	}
	return streak
}

// longestRun returns the longest run of consecutive values in an ascending
// sequence of distinct ints.
func longestRun(seqs []int) int {
	if len(seqs) == 0 {
		return 0
	}
	longest, cur := 1, 1
	for i := 1; i < len(seqs); i++ {
		if seqs[i] == seqs[i-1]+1 {
			cur++
		} else {
			cur = 1
		}
		if cur > longest {
			longest = cur
		}
	}
	return longest
}

// gaps returns the count of gaps between consecutive active weeks and the
// widest gap in weeks.
func gaps(seqs []int) (count, maxGap int) {
	for i := 1; i < len(seqs); i++ {
		if g := seqs[i] - seqs[i-1] - 1; g > 0 {
			count++
			if g > maxGap {
				maxGap = g
			}
		}
	}
	return count, maxGap
}
