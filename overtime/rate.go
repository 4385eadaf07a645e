/*
rate.go - RateCalculator

PURPOSE:
  Given the day an overtime shift starts, its start and end clock times,
  and an optional manual multiplier, returns the multiplier that applies
  and a per-segment breakdown of effective hours.

CLASSIFICATION:
  The start day is classified through the Calendar (holiday, scheduled
  rest day, rest day, ordinary). A shift that crosses midnight is split at
  midnight only when the next day classifies differently; otherwise it is
  one segment.

NIGHT DIFFERENTIAL:
  Night windows are [22:00, 06:00 next day). Overlap with each segment is
  measured in elapsed seconds by clamping the two intervals to their
  intersection. A segment with any overlap is flagged NightDiff and
  reports the night multiplier; its effective hours are
      (hours - night_hours) × base + night_hours × night
  so a partial overlap is paid exactly for its night portion.

OVERRIDE:
  A non-nil override bypasses classification: one segment over the whole
  interval at the override multiplier. The override is explicit; a value
  equal to the ordinary rate is still an override.

EXAMPLE:
  calc := overtime.NewCalculator(cal)
  res, err := calc.Compute(day, overtime.MustClock("20:00"), overtime.MustClock("07:00"), true, nil)
  // res.Segments[0]: 20:00-24:00 ordinary, night 2h
  // res.Segments[1]: 00:00-07:00 holiday,  night 6h
*/
package overtime

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

const (
	nightStartHour = 22
	nightEndHour   = 6
	maxShift       = 24 * time.Hour
	hourPlaces     = 4
)

var secondsPerHour = decimal.NewFromInt(3600)

// =============================================================================
// CLOCK - Time of day
// =============================================================================

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock reads "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, &generic.ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not HH:MM", s)}
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// =============================================================================
// RESULT
// =============================================================================

// Segment is one differently-rated slice of a shift.
type Segment struct {
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	DayType        DayType         `json:"day_type"`
	Hours          decimal.Decimal `json:"hours"`
	NightHours     decimal.Decimal `json:"night_hours"`
	NightDiff      bool            `json:"night_diff"`
	BaseMultiplier decimal.Decimal `json:"base_multiplier"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	EffectiveHours decimal.Decimal `json:"effective_hours"`
}

// Result is the calculator's answer.
type Result struct {
	// Multiplier of the first segment: the rate of the day the shift starts on,
	// or the override.
	Multiplier     decimal.Decimal `json:"multiplier"`
	Overridden     bool            `json:"overridden"`
	Split          bool            `json:"split"`
	Segments       []Segment       `json:"segments"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	NightHours     decimal.Decimal `json:"night_hours"`
	EffectiveHours decimal.Decimal `json:"effective_hours"`
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes overtime rates against a Calendar.
type Calculator struct {
	cal Calendar
}

func NewCalculator(cal Calendar) *Calculator {
	return &Calculator{cal: cal}
}

// Compute rates the interval [date start, date|date+1 end). endsNextDay
// must be set for a shift that ends after midnight; an end at or before
// the start without it is rejected rather than read as a 24-hour shift.
func (c *Calculator) Compute(date time.Time, start, end Clock, endsNextDay bool, override *decimal.Decimal) (Result, error) {
	if err := validateClock(start, "start"); err != nil {
		return Result{}, err
	}
	if err := validateClock(end, "end"); err != nil {
		return Result{}, err
	}
	if override != nil && !override.IsPositive() {
		return Result{}, &generic.ValidationError{Field: "multiplier", Reason: fmt.Sprintf("override must be positive, got %s", override)}
	}

	day := startOfDay(date)
	from := start.on(day)
	endDay := day
	if endsNextDay {
		endDay = day.AddDate(0, 0, 1)
	}
	to := end.on(endDay)

	if !to.After(from) {
		return Result{}, &generic.ValidationError{Field: "end", Reason: fmt.Sprintf("end %s is not after start %s", end, start)}
	}
	if to.Sub(from) > maxShift {
		return Result{}, &generic.ValidationError{Field: "end", Reason: "shift longer than 24 hours"}
	}

	if override != nil {
		seg := c.segment(from, to, Classify(c.cal, day), Rate{Base: *override, Night: *override})
		return summarize([]Segment{seg}, true), nil
	}

	firstType := Classify(c.cal, day)
	midnight := day.AddDate(0, 0, 1)
	if to.After(midnight) {
		if nextType := Classify(c.cal, midnight); nextType != firstType {
			return summarize([]Segment{
				c.segment(from, midnight, firstType, Rates[firstType]),
				c.segment(midnight, to, nextType, Rates[nextType]),
			}, false), nil
		}
	}
	return summarize([]Segment{c.segment(from, to, firstType, Rates[firstType])}, false), nil
}

func (c *Calculator) segment(from, to time.Time, dt DayType, rate Rate) Segment {
	totalSecs := int64(to.Sub(from) / time.Second)
	nightSecs := nightOverlapSeconds(from, to)

	hours := secondsToHours(totalSecs)
	night := secondsToHours(nightSecs)
	day := hours.Sub(night)

	seg := Segment{
		Start:          from,
		End:            to,
		DayType:        dt,
		Hours:          hours,
		NightHours:     night,
		NightDiff:      nightSecs > 0,
		BaseMultiplier: rate.Base,
		Multiplier:     rate.Base,
		EffectiveHours: day.Mul(rate.Base).Add(night.Mul(rate.Night)).Round(hourPlaces),
	}
	if seg.NightDiff {
		seg.Multiplier = rate.Night
	}
	return seg
}

func summarize(segs []Segment, overridden bool) Result {
	res := Result{
		Multiplier:     segs[0].Multiplier,
		Overridden:     overridden,
		Split:          len(segs) > 1,
		Segments:       segs,
		TotalHours:     decimal.Zero,
		NightHours:     decimal.Zero,
		EffectiveHours: decimal.Zero,
	}
	for _, s := range segs {
		res.TotalHours = res.TotalHours.Add(s.Hours)
		res.NightHours = res.NightHours.Add(s.NightHours)
		res.EffectiveHours = res.EffectiveHours.Add(s.EffectiveHours)
	}
	return res
}

// nightOverlapSeconds sums the overlap of [from, to) with every night
// window that can touch it.
func nightOverlapSeconds(from, to time.Time) int64 {
	var total time.Duration
	day := startOfDay(from).AddDate(0, 0, -1)
	for !day.After(to) {
		ws := time.Date(day.Year(), day.Month(), day.Day(), nightStartHour, 0, 0, 0, day.Location())
		we := time.Date(day.Year(), day.Month(), day.Day()+1, nightEndHour, 0, 0, 0, day.Location())
		total += overlap(from, to, ws, we)
		day = day.AddDate(0, 0, 1)
	}
	return int64(total / time.Second)
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func secondsToHours(secs int64) decimal.Decimal {
	return decimal.NewFromInt(secs).DivRound(secondsPerHour, hourPlaces)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func validateClock(c Clock, field string) error {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return &generic.ValidationError{Field: field, Reason: fmt.Sprintf("invalid time of day %s", c)}
	}
	return nil
}
