package overtime_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: expected %s, got %s", msg, want, got)
}

// 2025-06-12 is a Thursday; 2025-06-14 is a Saturday.
func testCalendar() *overtime.StaticCalendar {
	return overtime.NewStaticCalendar(time.Saturday, time.Sunday).
		AddHoliday(date(2025, time.June, 12), "Independence Day").
		AddHoliday(date(2025, time.June, 20), "Test Holiday").
		AddScheduledRestDay(date(2025, time.June, 17))
}

func TestRateTable(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())

	tests := []struct {
		name       string
		day        time.Time
		start, end string
		next       bool
		multiplier string
		dayType    overtime.DayType
	}{
		{"ordinary day", date(2025, time.June, 11), "17:00", "19:00", false, "1.25", overtime.Ordinary},
		{"ordinary night", date(2025, time.June, 11), "22:00", "23:00", false, "1.375", overtime.Ordinary},
		{"rest day", date(2025, time.June, 14), "09:00", "12:00", false, "1.69", overtime.RestDay},
		{"rest day night", date(2025, time.June, 14), "04:00", "05:00", false, "1.859", overtime.RestDay},
		{"scheduled rest day", date(2025, time.June, 17), "09:00", "10:00", false, "1.95", overtime.ScheduledRestDay},
		{"scheduled rest night", date(2025, time.June, 17), "22:30", "23:30", false, "2.145", overtime.ScheduledRestDay},
		{"holiday", date(2025, time.June, 12), "08:00", "12:00", false, "2.60", overtime.Holiday},
		{"holiday night", date(2025, time.June, 12), "22:00", "23:30", false, "2.86", overtime.Holiday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Compute(tt.day, overtime.MustClock(tt.start), overtime.MustClock(tt.end), tt.next, nil)
			require.NoError(t, err)
			require.Len(t, res.Segments, 1)
			assertDecimal(t, tt.multiplier, res.Multiplier, "multiplier")
			assert.Equal(t, tt.dayType, res.Segments[0].DayType)
		})
	}
}

func TestClassify_HolidayBeatsRestDay(t *testing.T) {
	cal := overtime.NewStaticCalendar(time.Saturday, time.Sunday).
		AddHoliday(date(2025, time.June, 14), "Saturday holiday")

	assert.Equal(t, overtime.Holiday, overtime.Classify(cal, date(2025, time.June, 14)))
	assert.Equal(t, overtime.RestDay, overtime.Classify(cal, date(2025, time.June, 15)))
	assert.Equal(t, overtime.Ordinary, overtime.Classify(cal, date(2025, time.June, 16)))
}

func TestSplit_OrdinaryIntoHoliday(t *testing.T) {
	// GIVEN: 2025-06-19 is an ordinary Thursday, 2025-06-20 a holiday
	calc := overtime.NewCalculator(testCalendar())

	// WHEN: a shift runs 20:00 → 07:00 next day
	res, err := calc.Compute(date(2025, time.June, 19), overtime.MustClock("20:00"), overtime.MustClock("07:00"), true, nil)
	require.NoError(t, err)

	// THEN: two segments summing to 11 hours
	require.True(t, res.Split)
	require.Len(t, res.Segments, 2)
	first, second := res.Segments[0], res.Segments[1]
	assertDecimal(t, "11", first.Hours.Add(second.Hours), "total hours")
	assertDecimal(t, "11", res.TotalHours, "result total")

	// AND: segment 1 uses the weekday table, segment 2 the holiday table
	assert.Equal(t, overtime.Ordinary, first.DayType)
	assertDecimal(t, "1.25", first.BaseMultiplier, "segment 1 base")
	assert.Equal(t, overtime.Holiday, second.DayType)
	assertDecimal(t, "2.60", second.BaseMultiplier, "segment 2 base")

	// AND: the night flag is set on the portions overlapping 22:00-06:00
	assert.True(t, first.NightDiff)
	assertDecimal(t, "2", first.NightHours, "segment 1 night")
	assert.True(t, second.NightDiff)
	assertDecimal(t, "6", second.NightHours, "segment 2 night")

	// AND: night hours are paid at the night rate, the rest at base
	assertDecimal(t, "5.25", first.EffectiveHours, "2×1.25 + 2×1.375")
	assertDecimal(t, "19.76", second.EffectiveHours, "1×2.60 + 6×2.86")
	assertDecimal(t, "25.01", res.EffectiveHours, "total effective")
}

func TestSplit_HolidayIntoOrdinary_NightShift(t *testing.T) {
	// GIVEN: 2025-06-12 is a holiday, 2025-06-13 is not
	calc := overtime.NewCalculator(testCalendar())

	// WHEN: 23:00 → 05:00 next day, no override
	res, err := calc.Compute(date(2025, time.June, 12), overtime.MustClock("23:00"), overtime.MustClock("05:00"), true, nil)
	require.NoError(t, err)

	// THEN: ~1h at the holiday night rate and ~5h at the ordinary night rate
	require.Len(t, res.Segments, 2)
	assertDecimal(t, "1", res.Segments[0].Hours, "segment 1 hours")
	assertDecimal(t, "2.86", res.Segments[0].Multiplier, "segment 1 multiplier")
	assert.Equal(t, overtime.Holiday, res.Segments[0].DayType)
	assertDecimal(t, "5", res.Segments[1].Hours, "segment 2 hours")
	assertDecimal(t, "1.375", res.Segments[1].Multiplier, "segment 2 multiplier")
	assert.Equal(t, overtime.Ordinary, res.Segments[1].DayType)
	assertDecimal(t, "2.86", res.Multiplier, "start-day multiplier")
	assertDecimal(t, "9.735", res.EffectiveHours, "2.86 + 5×1.375")
}

func TestNoSplit_WhenNextDayHasSameClassification(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())

	// Tue → Wed, both ordinary
	res, err := calc.Compute(date(2025, time.June, 10), overtime.MustClock("21:00"), overtime.MustClock("02:00"), true, nil)
	require.NoError(t, err)

	assert.False(t, res.Split)
	require.Len(t, res.Segments, 1)
	assertDecimal(t, "5", res.TotalHours, "hours")
	assertDecimal(t, "4", res.NightHours, "night overlap 22:00-02:00")
}

func TestPartialNightOverlap_IsMeasuredInSeconds(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())

	res, err := calc.Compute(date(2025, time.June, 11), overtime.MustClock("05:15"), overtime.MustClock("08:00"), false, nil)
	require.NoError(t, err)

	assertDecimal(t, "0.75", res.NightHours, "05:15-06:00")
	assertDecimal(t, "2.75", res.TotalHours, "hours")
	assert.True(t, res.Segments[0].NightDiff)
}

func TestOverride_IsHonoredVerbatim(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())
	override := dec("3.00")

	res, err := calc.Compute(date(2025, time.June, 12), overtime.MustClock("20:00"), overtime.MustClock("07:00"), true, &override)
	require.NoError(t, err)

	assert.True(t, res.Overridden)
	assert.False(t, res.Split)
	assertDecimal(t, "3", res.Multiplier, "override")
	assertDecimal(t, "33", res.EffectiveHours, "11h × 3")
}

func TestOverride_EqualToDefaultIsStillAnOverride(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())
	override := overtime.DefaultMultiplier

	// A holiday would classify at 2.60; an explicit 1.25 wins.
	res, err := calc.Compute(date(2025, time.June, 12), overtime.MustClock("08:00"), overtime.MustClock("10:00"), false, &override)
	require.NoError(t, err)

	assert.True(t, res.Overridden)
	assertDecimal(t, "1.25", res.Multiplier, "override")
}

func TestCompute_RejectsBadIntervals(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())
	day := date(2025, time.June, 11)
	zero := decimal.Zero

	tests := []struct {
		name       string
		start, end string
		next       bool
		override   *decimal.Decimal
	}{
		{"end before start same day", "20:00", "07:00", false, nil},
		{"zero length", "09:00", "09:00", false, nil},
		{"longer than 24h", "08:00", "09:00", true, nil},
		{"non-positive override", "08:00", "09:00", false, &zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Compute(day, overtime.MustClock(tt.start), overtime.MustClock(tt.end), tt.next, tt.override)
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

func TestCompute_Exactly24Hours(t *testing.T) {
	calc := overtime.NewCalculator(testCalendar())

	res, err := calc.Compute(date(2025, time.June, 10), overtime.MustClock("08:00"), overtime.MustClock("08:00"), true, nil)

	require.NoError(t, err)
	assertDecimal(t, "24", res.TotalHours, "hours")
	assertDecimal(t, "8", res.NightHours, "one full night window")
}

func TestParseClock(t *testing.T) {
	c, err := overtime.ParseClock("07:30")
	require.NoError(t, err)
	assert.Equal(t, overtime.Clock{Hour: 7, Minute: 30}, c)

	_, err = overtime.ParseClock("25:00")
	assert.ErrorIs(t, err, generic.ErrValidation)
}
