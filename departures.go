package busboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/busboard/busboard/storage"
)

var ErrNoStops = errors.New("no stops given")

// Departure is one upcoming departure from a stop, enriched with
// everything a departure board needs to draw a row.
type Departure struct {
	TripID         string
	StopID         string
	Time           string // raw HHMMSS, hour may exceed 23
	Days           string
	RouteShortName string
	Destination    string
	DepartsIn      string
}

// Label is the headline for the departure: the route's short name
// when the feed has one and the caller wants it, else the stop id.
func (d Departure) Label(preferRouteNo bool) string {
	if preferRouteNo && d.RouteShortName != "" {
		return d.RouteShortName
	}
	return d.StopID
}

// Schedule answers "what departs soon" against one open dataset.
//
// A Schedule owns a ServiceCalendar and shares its lifetime rules:
// scoped to a single dataset, not safe for concurrent queries. Run
// one query at a time and cancel through ctx rather than overlapping
// invocations.
type Schedule struct {
	reader   storage.DatasetReader
	calendar *ServiceCalendar
	logger   *slog.Logger

	// OnProgress, when set, receives coarse progress (0 to 100)
	// while a multi-stop query runs. Called from the querying
	// goroutine.
	OnProgress func(pct int)
}

func NewSchedule(reader storage.DatasetReader, logger *slog.Logger) *Schedule {
	if logger == nil {
		logger = slog.Default()
	}
	return &Schedule{
		reader:   reader,
		calendar: NewServiceCalendar(reader, logger),
		logger:   logger,
	}
}

// Calendar exposes the schedule's day-of-operation resolver for
// callers that want pattern strings without a departure query.
func (s *Schedule) Calendar() *ServiceCalendar {
	return s.calendar
}

// Departures lists up to maxResults departures from a single stop
// within the next lookAheadHours of now.
func (s *Schedule) Departures(ctx context.Context, now time.Time, stopID string, maxResults int, lookAheadHours int, earlyMorning bool) ([]Departure, error) {
	return s.MultiStopDepartures(ctx, now, []string{stopID}, maxResults, lookAheadHours, earlyMorning)
}

// MultiStopDepartures lists upcoming departures across a set of
// stops, at most maxResultsPerStop surviving rows per stop, merged
// into a single chronological sequence anchored at now.
//
// An empty result with a nil error means no buses in the window;
// a non-nil error means the query itself failed.
func (s *Schedule) MultiStopDepartures(ctx context.Context, now time.Time, stopIDs []string, maxResultsPerStop int, lookAheadHours int, earlyMorning bool) ([]Departure, error) {
	if len(stopIDs) == 0 {
		return nil, ErrNoStops
	}
	if now.IsZero() {
		return nil, fmt.Errorf("no query time given")
	}
	if maxResultsPerStop < 1 {
		return nil, fmt.Errorf("maxResultsPerStop must be positive, got %d", maxResultsPerStop)
	}
	if lookAheadHours < 1 {
		return nil, fmt.Errorf("lookAheadHours must be positive, got %d", lookAheadHours)
	}

	w := queryWindow(now, lookAheadHours, earlyMorning)

	s.progress(0)

	rows, err := s.reader.StopDepartures(ctx, stopIDs, w.first, w.last)
	if err != nil {
		return nil, fmt.Errorf("querying departures: %w", err)
	}

	// Filter rows through the calendar, at most maxResultsPerStop
	// survivors per stop. A stop that hits its cap is done; once
	// every requested stop is done the remaining rows can't
	// contribute anything.
	counts := map[string]int{}
	exhausted := 0
	departures := []Departure{}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if counts[row.StopID] >= maxResultsPerStop {
			continue
		}

		days, runs, err := s.calendar.OperatingDays(ctx, row.TripID, w.date, true)
		if errors.Is(err, ErrNoServiceBinding) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !runs {
			continue
		}

		departures = append(departures, Departure{
			TripID: row.TripID,
			StopID: row.StopID,
			Time:   row.Departure,
			Days:   days,
		})

		counts[row.StopID]++
		if counts[row.StopID] == maxResultsPerStop {
			exhausted++
			s.progress(exhausted * 100 / len(stopIDs))
			if exhausted == len(stopIDs) {
				break
			}
		}
	}

	// Stored times past midnight run beyond "24", so raw order can
	// put tomorrow's small hours ahead of tonight. Order by
	// distance from the window's start instead.
	sort.SliceStable(departures, func(i, j int) bool {
		return sinceWindowStart(departures[i].Time, w.first) < sinceWindowStart(departures[j].Time, w.first)
	})

	// counts only holds stops that contributed a surviving row.
	if limit := maxResultsPerStop * len(counts); len(departures) > limit {
		departures = departures[:limit]
	}

	// Join display fields only for rows that made the cut. The
	// countdown depends only on the stored time, so a trip with no
	// route info still gets one.
	for i := range departures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		departures[i].DepartsIn = Countdown(now, departures[i].Time)

		display, err := s.reader.TripDisplay(ctx, departures[i].TripID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("no route info for trip", slog.String("trip_id", departures[i].TripID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading display info for trip %s: %w", departures[i].TripID, err)
		}

		departures[i].RouteShortName = display.RouteShortName
		departures[i].Destination = display.Headsign
		if departures[i].Destination == "" {
			departures[i].Destination = display.RouteLongName
		}
	}

	s.progress(100)

	return departures, nil
}

func (s *Schedule) progress(pct int) {
	if s.OnProgress != nil {
		s.OnProgress(pct)
	}
}

// window is a raw departure_time range plus the calendar date the
// range's trips should be checked against. Bounds use the same
// zero-padded hour-overflow notation as stored times, which is what
// makes lexicographic range comparison sound.
type window struct {
	first string
	last  string
	date  string
}

func queryWindow(now time.Time, lookAheadHours int, earlyMorning bool) window {
	switch {
	case earlyMorning:
		return window{
			first: fmt.Sprintf("%02d%02d%02d", now.Hour(), now.Minute()+1, now.Second()),
			last:  fmt.Sprintf("%02d%02d%02d", now.Hour()+lookAheadHours, now.Minute(), now.Second()),
			date:  now.Format("20060102"),
		}
	case now.Hour() <= lookAheadHours:
		// Trips that left before midnight are numbered past hour
		// 24 and belong to yesterday's service day.
		return window{
			first: fmt.Sprintf("%02d%02d%02d", now.Hour()+24, now.Minute()+1, now.Second()),
			last:  fmt.Sprintf("%02d%02d%02d", now.Hour()+lookAheadHours+24, now.Minute(), now.Second()),
			date:  now.AddDate(0, 0, -1).Format("20060102"),
		}
	default:
		return window{
			first: "000000",
			last:  fmt.Sprintf("%02d%02d%02d", now.Hour()+lookAheadHours-24, now.Minute(), now.Second()),
			date:  now.AddDate(0, 0, 1).Format("20060102"),
		}
	}
}

// sinceWindowStart is the number of seconds from the window's lower
// bound to a departure, wrapped forward across midnight so chronology
// survives the 0-24 rollover.
func sinceWindowStart(departure, first string) int {
	delta := rawSeconds(departure) - rawSeconds(first)
	if delta < 0 {
		delta += 24 * 3600
	}
	return delta
}

func rawSeconds(raw string) int {
	if len(raw) < 6 {
		return 0
	}
	h, _ := strconv.Atoi(raw[0:2])
	m, _ := strconv.Atoi(raw[2:4])
	s, _ := strconv.Atoi(raw[4:6])
	return h*3600 + m*60 + s
}
