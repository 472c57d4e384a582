package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by single-record lookups when no matching
// record exists. Callers should test with errors.Is, since readers
// wrap it with context.
var ErrNotFound = errors.New("record not found")

// Storage holds transit datasets. Each dataset is a complete,
// immutable GTFS snapshot identified by name. A dataset written
// through a DatasetWriter must be Close()d before readers can rely on
// it.
type Storage interface {
	// Names of all datasets present in storage.
	ListDatasets() ([]string, error)

	// Gets a reader for the named dataset.
	GetReader(dataset string) (DatasetReader, error)

	// Gets a writer for the named dataset. Any existing dataset
	// records under the same name are discarded.
	GetWriter(dataset string) (DatasetWriter, error)

	Close() error
}

// Writes GTFS records for a single dataset.
//
// As stop_times.txt tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou.
type DatasetWriter interface {
	WriteStop(stop *Stop) error
	WriteRoute(route *Route) error
	WriteTrip(trip *Trip) error
	WriteCalendar(cal *Calendar) error
	WriteCalendarDate(cd *CalendarDate) error
	BeginStopTimes() error
	WriteStopTime(st *StopTime) error
	EndStopTimes() error
	Close() error
}

// Read access to a single dataset. Blocking is bounded only by the
// backing store, so every method takes a context for cancellation.
type DatasetReader interface {
	// The service a trip is bound to. ErrNotFound if the trip does
	// not exist in the trips table.
	TripServiceID(ctx context.Context, tripID string) (string, error)

	// The weekly pattern for a service. ErrNotFound if the service
	// has no calendar row (a service may exist purely through
	// calendar_dates exceptions).
	Calendar(ctx context.Context, serviceID string) (*Calendar, error)

	// The exception for (service, date), if any. Dates are
	// YYYYMMDD. ErrNotFound when no exception exists.
	CalendarDate(ctx context.Context, serviceID string, date string) (*CalendarDate, error)

	// Distinct (trip, departure_time, stop) rows for the given
	// stops with first <= departure_time <= last, ordered by
	// departure_time. Bounds are zero-padded HHMMSS strings in the
	// same hour-overflow notation the stop_times table uses, so
	// lexicographic containment is exact.
	StopDepartures(ctx context.Context, stopIDs []string, first string, last string) ([]*StopTime, error)

	// Route and trip display fields for one trip, joined through
	// trips → routes. ErrNotFound if the trip or its route is
	// missing.
	TripDisplay(ctx context.Context, tripID string) (*TripDisplay, error)

	// All stops in the dataset.
	Stops(ctx context.Context) ([]*Stop, error)

	// Stops ordered by distance from lat/lon. At most limit
	// results (pass 0 for no limit.)
	NearbyStops(ctx context.Context, lat float64, lon float64, limit int) ([]Stop, error)

	// Releases resources owned by the reader. Backing connections
	// shared with the Storage stay open until Storage.Close.
	Close() error
}

// Calendar exception types, as encoded in calendar_dates.
type ExceptionType int8

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

// A weekly service pattern with its validity range. Weekday is a
// bitmask indexed by time.Weekday (bit 1<<time.Sunday and so on).
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

// A date-specific override adding or removing service.
type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
}

type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	Headsign  string
}

// A single departure event. Departure uses the GTFS HHMMSS encoding
// where the hour may exceed 23 for trips running past midnight of
// their service day.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Departure    string
}

// Display fields for one trip, joined from routes and trips.
type TripDisplay struct {
	RouteLongName  string
	RouteShortName string
	Headsign       string
}
