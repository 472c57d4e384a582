package busboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/busboard/busboard/storage"
)

// Returned when a trip referenced from stop_times has no row in the
// trips table. This indicates a corrupt dataset, not a trip that
// simply isn't running.
var ErrNoServiceBinding = errors.New("trip has no service binding")

// Shown for departures whose service exists only as a calendar_dates
// ADDED exception, with no weekly pattern to describe.
const holidaySchedule = "Special Schedule (Holiday)"

var weekdayAbbrev = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// ServiceCalendar decides whether a trip's service runs on a given
// date, and renders the days of week it operates.
//
// Results are memoized per (service, date) to save store lookups, as
// a departure query tends to hit the same handful of services over
// and over. The caches are scoped to one open dataset and are never
// invalidated; throw the whole ServiceCalendar away when switching
// datasets. Lookups are not safe for concurrent use; callers
// serialize query invocations.
type ServiceCalendar struct {
	reader storage.DatasetReader
	logger *slog.Logger

	limitedDays  map[string]dayCacheEntry
	patternDays  map[string]dayCacheEntry
	tripServices map[string]string
}

type dayCacheEntry struct {
	days string
	runs bool
}

func NewServiceCalendar(reader storage.DatasetReader, logger *slog.Logger) *ServiceCalendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceCalendar{
		reader:       reader,
		logger:       logger,
		limitedDays:  map[string]dayCacheEntry{},
		patternDays:  map[string]dayCacheEntry{},
		tripServices: map[string]string{},
	}
}

// WeekdayPattern builds a storage.Calendar weekday bitmask from day
// abbreviations ("Sun" through "Sat"). Unknown names are ignored.
func WeekdayPattern(days ...string) int8 {
	var pattern int8
	for _, day := range days {
		for wd, abbrev := range weekdayAbbrev {
			if day == abbrev {
				pattern |= 1 << wd
			}
		}
	}
	return pattern
}

// Renders a calendar's weekly pattern, e.g. "Mon Wed Fri ".
func daysString(weekday int8) string {
	days := ""
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if weekday&(1<<wd) != 0 {
			days += weekdayAbbrev[wd] + " "
		}
	}
	return days
}

// OperatingDays reports the days of week a trip's service operates,
// or whether it runs on the given date.
//
// With limitToDate set, runs is true iff the service operates on date
// (weekly pattern, overridden by any calendar_dates exception), and
// days describes the pattern. With limitToDate unset, days is simply
// the full weekly pattern regardless of date, for informational
// display.
//
// A trip with no entry in the trips table yields ErrNoServiceBinding;
// callers can skip that row and keep going. Any other error means the
// store failed and the whole query should abort.
func (c *ServiceCalendar) OperatingDays(ctx context.Context, tripID string, date string, limitToDate bool) (days string, runs bool, err error) {
	serviceID, err := c.serviceForTrip(ctx, tripID)
	if err != nil {
		return "", false, err
	}

	cache := c.patternDays
	if limitToDate {
		cache = c.limitedDays
	}

	if entry, ok := cache[serviceID+date]; ok {
		return entry.days, entry.runs, nil
	}

	days, runs, err = c.resolve(ctx, serviceID, date, limitToDate)
	if err != nil {
		return "", false, err
	}

	// Negative results are cached too; "doesn't run today" is just
	// as expensive to recompute.
	cache[serviceID+date] = dayCacheEntry{days: days, runs: runs}

	return days, runs, nil
}

func (c *ServiceCalendar) serviceForTrip(ctx context.Context, tripID string) (string, error) {
	if serviceID, ok := c.tripServices[tripID]; ok {
		return serviceID, nil
	}

	serviceID, err := c.reader.TripServiceID(ctx, tripID)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Error("stop_times references unknown trip, dataset is likely corrupt",
			slog.String("trip_id", tripID))
		return "", fmt.Errorf("trip %s: %w", tripID, ErrNoServiceBinding)
	}
	if err != nil {
		return "", fmt.Errorf("resolving service for trip %s: %w", tripID, err)
	}

	c.tripServices[tripID] = serviceID

	return serviceID, nil
}

func (c *ServiceCalendar) resolve(ctx context.Context, serviceID string, date string, limitToDate bool) (string, bool, error) {
	cal, err := c.reader.Calendar(ctx, serviceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", false, fmt.Errorf("loading calendar for %s: %w", serviceID, err)
	}

	if !limitToDate {
		// Informational display of the weekly pattern. The
		// validity range and exceptions don't apply here, but a
		// service defined purely through calendar_dates still
		// falls through to the holiday check below.
		if cal != nil {
			return daysString(cal.Weekday), true, nil
		}
		return c.holidayFallback(ctx, serviceID, date)
	}

	if cal != nil && cal.StartDate <= date && date <= cal.EndDate {
		days, runs, decided, err := c.resolveInRange(ctx, cal, date)
		if err != nil {
			return "", false, err
		}
		if decided {
			return days, runs, nil
		}
	}

	// The base calendar had nothing to say: no row, date outside
	// the validity range, or the weekday flag unset. An ADDED
	// exception can still put the service on the road.
	return c.holidayFallback(ctx, serviceID, date)
}

// Resolves against an in-range calendar row: exception override
// first, then the weekday flag. decided is false when neither grants
// service, leaving the holiday fallback to have the final word.
func (c *ServiceCalendar) resolveInRange(ctx context.Context, cal *storage.Calendar, date string) (string, bool, bool, error) {
	cd, err := c.reader.CalendarDate(ctx, cal.ServiceID, date)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", false, false, fmt.Errorf("loading exception for %s: %w", cal.ServiceID, err)
	}

	if cd != nil {
		switch cd.ExceptionType {
		case storage.ExceptionRemoved:
			return "", false, true, nil
		case storage.ExceptionAdded:
			return daysString(cal.Weekday), true, true, nil
		default:
			c.logger.Error("bogus exception type",
				slog.Int("exception_type", int(cd.ExceptionType)),
				slog.String("service_id", cal.ServiceID),
				slog.String("date", date))
			return "", false, true, nil
		}
	}

	t, err := time.Parse("20060102", date)
	if err != nil {
		c.logger.Error("got bogus date",
			slog.String("date", date),
			slog.String("error", err.Error()))
		return "", false, true, nil
	}

	if cal.Weekday&(1<<t.Weekday()) != 0 {
		return daysString(cal.Weekday), true, true, nil
	}

	return "", false, false, nil
}

// Some datasets list services in calendar_dates without any calendar
// row. An ADDED exception on the date means the service runs even
// though there is no weekly pattern to render.
func (c *ServiceCalendar) holidayFallback(ctx context.Context, serviceID string, date string) (string, bool, error) {
	cd, err := c.reader.CalendarDate(ctx, serviceID, date)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading exception for %s: %w", serviceID, err)
	}

	switch cd.ExceptionType {
	case storage.ExceptionAdded:
		return holidaySchedule, true, nil
	case storage.ExceptionRemoved:
		return "", false, nil
	default:
		c.logger.Error("bogus exception type",
			slog.Int("exception_type", int(cd.ExceptionType)),
			slog.String("service_id", serviceID),
			slog.String("date", date))
		return "", false, nil
	}
}
