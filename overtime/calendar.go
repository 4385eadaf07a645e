package overtime

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Calendar answers day-type questions. Implementations must be pure for
// the duration of one calculation; backends load a StaticCalendar
// snapshot before calling the calculator.
type Calendar interface {
	IsHoliday(day time.Time) bool
	IsRestDay(day time.Time) bool
}

// ScheduledRestDayCalendar is implemented by calendars that also know
// per-employee scheduled rest days.
type ScheduledRestDayCalendar interface {
	IsScheduledRestDay(day time.Time) bool
}

// Classify returns the day type. Holiday wins over scheduled rest, which
// wins over a plain rest day.
func Classify(cal Calendar, day time.Time) DayType {
	switch {
	case cal.IsHoliday(day):
		return Holiday
	case isScheduledRest(cal, day):
		return ScheduledRestDay
	case cal.IsRestDay(day):
		return RestDay
	default:
		return Ordinary
	}
}

func isScheduledRest(cal Calendar, day time.Time) bool {
	s, ok := cal.(ScheduledRestDayCalendar)
	return ok && s.IsScheduledRestDay(day)
}

// =============================================================================
// STATIC CALENDAR
// =============================================================================

// StaticCalendar is an in-memory Calendar keyed by YYYY-MM-DD.
type StaticCalendar struct {
	mu           sync.RWMutex
	restWeekdays []time.Weekday
	holidays     map[string]string // date → name
	restDays     map[string]struct{}
	scheduled    map[string]struct{}
}

var (
	_ Calendar                 = (*StaticCalendar)(nil)
	_ ScheduledRestDayCalendar = (*StaticCalendar)(nil)
)

// NewStaticCalendar treats restWeekdays as rest days every week.
func NewStaticCalendar(restWeekdays ...time.Weekday) *StaticCalendar {
	return &StaticCalendar{
		restWeekdays: slices.Clone(restWeekdays),
		holidays:     make(map[string]string),
		restDays:     make(map[string]struct{}),
		scheduled:    make(map[string]struct{}),
	}
}

func DayKey(day time.Time) string { return day.Format(time.DateOnly) }

func (c *StaticCalendar) AddHoliday(day time.Time, name string) *StaticCalendar {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays[DayKey(day)] = name
	return c
}

func (c *StaticCalendar) AddRestDay(day time.Time) *StaticCalendar {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restDays[DayKey(day)] = struct{}{}
	return c
}

func (c *StaticCalendar) AddScheduledRestDay(day time.Time) *StaticCalendar {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled[DayKey(day)] = struct{}{}
	return c
}

func (c *StaticCalendar) IsHoliday(day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.holidays[DayKey(day)]
	return ok
}

func (c *StaticCalendar) IsRestDay(day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.restDays[DayKey(day)]; ok {
		return true
	}
	return slices.Contains(c.restWeekdays, day.Weekday())
}

func (c *StaticCalendar) IsScheduledRestDay(day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.scheduled[DayKey(day)]
	return ok
}

// HolidayName returns the holiday's name, or "" when day is not a holiday.
func (c *StaticCalendar) HolidayName(day time.Time) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidays[DayKey(day)]
}

// ApplyDay marks a stored calendar row (YYYY-MM-DD, kind, name) on cal.
func ApplyDay(cal *StaticCalendar, dayKey string, kind DayType, name string) error {
	day, err := time.Parse(time.DateOnly, dayKey)
	if err != nil {
		return fmt.Errorf("calendar day %q: %w", dayKey, err)
	}
	switch kind {
	case Holiday:
		cal.AddHoliday(day, name)
	case RestDay:
		cal.AddRestDay(day)
	case ScheduledRestDay:
		cal.AddScheduledRestDay(day)
	default:
		return fmt.Errorf("calendar day %s: unknown kind %q", dayKey, kind)
	}
	return nil
}
