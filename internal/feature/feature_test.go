package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

func fact(key string, year, month, week int, active bool, net float64) model.RiderWeekFact {
	f := model.RiderWeekFact{
		RiderKey: key,
		Period:   model.Period{Year: year, Month: month, Week: week},
		Active:   active,
	}
	f.NetPayout = net
	return f
}

func featureByKey(t *testing.T, recs []model.RiderFeatureRecord, key string) model.RiderFeatureRecord {
	t.Helper()
	for _, r := range recs {
		if r.RiderKey == key {
			return r
		}
	}
	t.Fatalf("no feature record for %s", key)
	return model.RiderFeatureRecord{}
}

func TestBuildEmpty(t *testing.T) {
	assert.Nil(t, Build(nil, 1))
}

func TestBuildStreakSpansMonthBoundary(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 8, 3, true, 4000),
		fact("r1", 2025, 8, 4, true, 4100),
		fact("r1", 2025, 9, 1, true, 3900),
	}

	recs := Build(facts, 1)
	require.Len(t, recs, 1)
	r := recs[0]

	assert.Equal(t, 3, r.ActiveWeeksWorked)
	assert.Equal(t, 3, r.CurrentStreak)
	assert.Equal(t, 3, r.LongestStreak)
	assert.Equal(t, 0, r.WeeksSinceLastActive)
	assert.Equal(t, 0, r.GapCount)
}

func TestBuildInactiveLatestWeekBreaksStreak(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 9, 1, true, 4000),
		fact("r1", 2025, 9, 2, true, 4000),
		fact("r1", 2025, 9, 3, false, 0),
	}

	r := Build(facts, 1)[0]
	assert.Equal(t, 0, r.CurrentStreak)
	assert.Equal(t, 2, r.LongestStreak)
	// last active is seq 1, global max seq is 2
	assert.Equal(t, 1, r.WeeksSinceLastActive)
}

func TestBuildRecencyAgainstGlobalLatest(t *testing.T) {
	// r2's extract rows stop two weeks before the dataset's latest period.
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 9, 1, true, 4000),
		fact("r1", 2025, 9, 2, true, 4000),
		fact("r1", 2025, 9, 3, true, 4000),
		fact("r2", 2025, 9, 1, true, 3500),
	}

	recs := Build(facts, 1)
	require.Len(t, recs, 2)

	r1 := featureByKey(t, recs, "r1")
	r2 := featureByKey(t, recs, "r2")

	assert.Equal(t, 0, r1.WeeksSinceLastActive)
	assert.Equal(t, 2, r2.WeeksSinceLastActive)
	// r2's own latest row is active, so its streak is intact even though the
	// rider has since gone quiet relative to the dataset.
	assert.Equal(t, 1, r2.CurrentStreak)
}

func TestBuildNeverActiveRider(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 9, 1, true, 4000),
		fact("r1", 2025, 9, 2, true, 4000),
		fact("r2", 2025, 9, 1, false, 0),
	}

	r2 := featureByKey(t, Build(facts, 1), "r2")
	assert.Equal(t, 0, r2.ActiveWeeksWorked)
	assert.Equal(t, 0, r2.CurrentStreak)
	// one past the observation window: worse than any observed rider
	assert.Equal(t, 2, r2.WeeksSinceLastActive)
	assert.Equal(t, 0.0, r2.NetPayoutMean)
	assert.Equal(t, 0.0, r2.NetPayoutP10)
}

func TestBuildPayoutStatsOverActiveNonzeroWeeksOnly(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 9, 1, true, 3000),
		fact("r1", 2025, 9, 2, true, 0), // active but zero payout: excluded from stats
		fact("r1", 2025, 9, 3, false, 500),
		fact("r1", 2025, 9, 4, true, 5000),
	}

	r := Build(facts, 1)[0]
	assert.InDelta(t, 4000, r.NetPayoutMean, 1e-9)
	assert.InDelta(t, 1000, r.NetPayoutStd, 1e-9)
	assert.InDelta(t, 3000, r.NetPayoutMin, 1e-9)
	assert.InDelta(t, 5000, r.NetPayoutMax, 1e-9)
	// total still sums every observed row
	assert.InDelta(t, 8500, r.TotalNetPayout, 1e-9)
}

func TestBuildGaps(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 8, 1, true, 4000),
		fact("r1", 2025, 8, 2, false, 0),
		fact("r1", 2025, 8, 3, true, 4000),
		fact("r1", 2025, 8, 4, false, 0),
		fact("r1", 2025, 9, 1, false, 0),
		fact("r1", 2025, 9, 2, true, 4000),
	}

	r := Build(facts, 1)[0]
	assert.Equal(t, 2, r.GapCount)
	assert.Equal(t, 2, r.MaxGapWeeks)
	assert.Equal(t, 1, r.LongestStreak)
}

func TestBuildLastFourWindow(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("r1", 2025, 8, 1, true, 1000),
		fact("r1", 2025, 8, 2, true, 2000),
		fact("r1", 2025, 8, 3, true, 3000),
		fact("r1", 2025, 8, 4, true, 4000),
		fact("r1", 2025, 9, 1, false, 0),
		fact("r1", 2025, 9, 2, true, 5000),
	}

	r := Build(facts, 1)[0]
	// window is the last 4 observed weeks: W3, W4, 9-W1 (inactive), 9-W2
	assert.Equal(t, 3, r.ActiveWeeksLast4)
	assert.InDelta(t, 4000, r.Last4PayoutMean, 1e-9)
}

func TestBuildDerivedRatios(t *testing.T) {
	f := fact("r1", 2025, 9, 1, true, 4000)
	f.BasePay = 3000
	f.IncentiveTotal = 1000
	f.DeliveredOrders = 92
	f.CancelledOrders = 8
	f.WeekdayOrders = 60
	f.WeekendOrders = 40

	r := Build([]model.RiderWeekFact{f}, 1)[0]
	assert.InDelta(t, 0.25, r.IncentiveShare, 1e-9)
	assert.InDelta(t, 0.08, r.CancelRate, 1e-9)
	assert.InDelta(t, 0.40, r.WeekendShare, 1e-9)
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	var facts []model.RiderWeekFact
	riders := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	for i, key := range riders {
		for w := 1; w <= 4; w++ {
			facts = append(facts, fact(key, 2025, 9, w, w%2 == 0 || i%3 == 0, float64(1000*(i+w))))
		}
	}

	sequential := Build(facts, 1)
	parallel := Build(facts, 4)
	assert.Equal(t, sequential, parallel)
}

func TestBuildOutputSortedByRiderKey(t *testing.T) {
	facts := []model.RiderWeekFact{
		fact("zz", 2025, 9, 1, true, 1000),
		fact("aa", 2025, 9, 1, true, 1000),
		fact("mm", 2025, 9, 1, true, 1000),
	}

	recs := Build(facts, 1)
	require.Len(t, recs, 3)
	assert.Equal(t, "aa", recs[0].RiderKey)
	assert.Equal(t, "mm", recs[1].RiderKey)
	assert.Equal(t, "zz", recs[2].RiderKey)
}
