package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const (
	PSQLStopTimeBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLDatasetWriter struct {
	id          string
	db          *sql.DB
	stopTimeBuf []StopTime
}

type PSQLDatasetReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS calendar;
DROP TABLE IF EXISTS calendar_dates;
DROP TABLE IF EXISTS stops;
DROP TABLE IF EXISTS stop_times;
DROP TABLE IF EXISTS routes;
DROP TABLE IF EXISTS trips;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) ListDatasets() ([]string, error) {
	rows, err := s.db.Query(`
SELECT DISTINCT dataset FROM trips`)
	if err != nil {
		// Dataset tables are created lazily by GetWriter.
		return []string{}, nil
	}
	defer rows.Close()

	datasets := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning dataset name: %w", err)
		}
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)

	return datasets, nil
}

func (s *PSQLStorage) GetReader(dataset string) (DatasetReader, error) {
	return &PSQLDatasetReader{
		id: dataset,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(dataset string) (DatasetWriter, error) {
	tables := map[string]string{
		"stops": `
CREATE TABLE IF NOT EXISTS stops (
    dataset TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_name TEXT NOT NULL,
    stop_lat DOUBLE PRECISION NOT NULL,
    stop_lon DOUBLE PRECISION NOT NULL,
    PRIMARY KEY(dataset, stop_id)
);`,
		"routes": `
CREATE TABLE IF NOT EXISTS routes (
    dataset TEXT NOT NULL,
    route_id TEXT NOT NULL,
    route_short_name TEXT,
    route_long_name TEXT NOT NULL,
    PRIMARY KEY(dataset, route_id)
);`,
		"trips": `
CREATE TABLE IF NOT EXISTS trips (
    dataset TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_headsign TEXT,
    PRIMARY KEY(dataset, trip_id)
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (route_id);
CREATE INDEX IF NOT EXISTS trips_service_id ON trips (service_id);
`,
		"stop_times": `
CREATE TABLE IF NOT EXISTS stop_times (
    dataset TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    departure_time TEXT NOT NULL,
    PRIMARY KEY(dataset, trip_id, stop_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_stop_id ON stop_times (stop_id);
CREATE INDEX IF NOT EXISTS stop_times_departure_time ON stop_times (departure_time);
`,
		"calendar": `
CREATE TABLE IF NOT EXISTS calendar (
    dataset TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY(dataset, service_id)
);`,
		"calendar_dates": `
CREATE TABLE IF NOT EXISTS calendar_dates (
    dataset TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY(dataset, service_id, date)
);`,
	}

	// Create tables if they don't exist
	for name, query := range tables {
		_, err := s.db.Exec(query)
		if err != nil {
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	// In case the dataset already exists, delete all records
	for name := range tables {
		_, err := s.db.Exec(`DELETE FROM `+name+` WHERE dataset = $1`, dataset)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %s", name, err)
		}
	}

	return &PSQLDatasetWriter{
		id: dataset,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (w *PSQLDatasetWriter) WriteStop(stop *Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (dataset, stop_id, stop_name, stop_lat, stop_lon)
VALUES ($1, $2, $3, $4, $5)`,
		w.id,
		stop.ID,
		stop.Name,
		stop.Lat,
		stop.Lon,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *PSQLDatasetWriter) WriteRoute(route *Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (dataset, route_id, route_short_name, route_long_name)
VALUES ($1, $2, $3, $4)`,
		w.id,
		route.ID,
		route.ShortName,
		route.LongName,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *PSQLDatasetWriter) WriteTrip(trip *Trip) error {
	_, err := w.db.Exec(`
INSERT INTO trips (dataset, trip_id, route_id, service_id, trip_headsign)
VALUES ($1, $2, $3, $4, $5)`,
		w.id,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *PSQLDatasetWriter) WriteCalendar(cal *Calendar) error {
	mon, tue, wed, thu, fri, sat, sun := 0, 0, 0, 0, 0, 0, 0
	if cal.Weekday&(1<<time.Monday) != 0 {
		mon = 1
	}
	if cal.Weekday&(1<<time.Tuesday) != 0 {
		tue = 1
	}
	if cal.Weekday&(1<<time.Wednesday) != 0 {
		wed = 1
	}
	if cal.Weekday&(1<<time.Thursday) != 0 {
		thu = 1
	}
	if cal.Weekday&(1<<time.Friday) != 0 {
		fri = 1
	}
	if cal.Weekday&(1<<time.Saturday) != 0 {
		sat = 1
	}
	if cal.Weekday&(1<<time.Sunday) != 0 {
		sun = 1
	}

	_, err := w.db.Exec(`
INSERT INTO calendar (dataset, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		mon, tue, wed, thu, fri, sat, sun,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}

	return nil
}

func (w *PSQLDatasetWriter) WriteCalendarDate(cd *CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (dataset, service_id, date, exception_type)
VALUES ($1, $2, $3, $4)`,
		w.id,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}

	return nil
}

func (w *PSQLDatasetWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLDatasetWriter) WriteStopTime(st *StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, *st)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}

	return nil
}

func (w *PSQLDatasetWriter) EndStopTimes() error {
	err := w.flushStopTimes()
	if err != nil {
		return fmt.Errorf("flushing stop_times: %w", err)
	}

	return nil
}

func (w *PSQLDatasetWriter) flushStopTimes() error {
	if len(w.stopTimeBuf) == 0 {
		return nil
	}

	placeholders := []string{}
	values := []interface{}{}
	for i, st := range w.stopTimeBuf {
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5,
		))
		values = append(values, w.id, st.TripID, st.StopID, st.StopSequence, st.Departure)
	}

	_, err := w.db.Exec(`
INSERT INTO stop_times (dataset, trip_id, stop_id, stop_sequence, departure_time)
VALUES `+strings.Join(placeholders, ", "), values...)
	if err != nil {
		return fmt.Errorf("inserting stop_times: %w", err)
	}

	w.stopTimeBuf = w.stopTimeBuf[:0]

	return nil
}

func (w *PSQLDatasetWriter) Close() error {
	return nil
}

func (r *PSQLDatasetReader) TripServiceID(ctx context.Context, tripID string) (string, error) {
	var serviceID string
	err := r.db.QueryRowContext(ctx, `
SELECT service_id
FROM trips
WHERE dataset = $1 AND trip_id = $2`, r.id, tripID).Scan(&serviceID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("trip %s: %w", tripID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying trip service: %w", err)
	}

	return serviceID, nil
}

func (r *PSQLDatasetReader) Calendar(ctx context.Context, serviceID string) (*Calendar, error) {
	var startDate, endDate string
	var monday, tuesday, wednesday, thursday, friday, saturday, sunday int
	err := r.db.QueryRowContext(ctx, `
SELECT start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar
WHERE dataset = $1 AND service_id = $2`, r.id, serviceID).Scan(
		&startDate,
		&endDate,
		&monday,
		&tuesday,
		&wednesday,
		&thursday,
		&friday,
		&saturday,
		&sunday,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}

	weekday := int8(0)
	if monday == 1 {
		weekday |= 1 << time.Monday
	}
	if tuesday == 1 {
		weekday |= 1 << time.Tuesday
	}
	if wednesday == 1 {
		weekday |= 1 << time.Wednesday
	}
	if thursday == 1 {
		weekday |= 1 << time.Thursday
	}
	if friday == 1 {
		weekday |= 1 << time.Friday
	}
	if saturday == 1 {
		weekday |= 1 << time.Saturday
	}
	if sunday == 1 {
		weekday |= 1 << time.Sunday
	}

	return &Calendar{
		ServiceID: serviceID,
		StartDate: startDate,
		EndDate:   endDate,
		Weekday:   weekday,
	}, nil
}

func (r *PSQLDatasetReader) CalendarDate(ctx context.Context, serviceID string, date string) (*CalendarDate, error) {
	cd := &CalendarDate{ServiceID: serviceID, Date: date}
	err := r.db.QueryRowContext(ctx, `
SELECT exception_type
FROM calendar_dates
WHERE dataset = $1 AND service_id = $2 AND date = $3`, r.id, serviceID, date).Scan(&cd.ExceptionType)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exception for %s on %s: %w", serviceID, date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar date: %w", err)
	}

	return cd, nil
}

func (r *PSQLDatasetReader) StopDepartures(ctx context.Context, stopIDs []string, first string, last string) ([]*StopTime, error) {
	placeholders := []string{}
	queryValues := []interface{}{r.id}
	for i, stopID := range stopIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		queryValues = append(queryValues, stopID)
	}
	queryValues = append(queryValues,
		first,
		last,
	)
	firstParam := fmt.Sprintf("$%d", len(stopIDs)+2)
	lastParam := fmt.Sprintf("$%d", len(stopIDs)+3)

	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT trip_id, departure_time, stop_id
FROM stop_times
WHERE dataset = $1 AND
      stop_id IN (`+strings.Join(placeholders, ", ")+`) AND
      departure_time >= `+firstParam+` AND departure_time <= `+lastParam+`
ORDER BY departure_time`, queryValues...)
	if err != nil {
		return nil, fmt.Errorf("querying stop departures: %w", err)
	}
	defer rows.Close()

	stopTimes := []*StopTime{}
	for rows.Next() {
		st := &StopTime{}
		err = rows.Scan(&st.TripID, &st.Departure, &st.StopID)
		if err != nil {
			return nil, fmt.Errorf("scanning stop departure: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}

	return stopTimes, rows.Err()
}

func (r *PSQLDatasetReader) TripDisplay(ctx context.Context, tripID string) (*TripDisplay, error) {
	td := &TripDisplay{}
	err := r.db.QueryRowContext(ctx, `
SELECT route_long_name, route_short_name, trip_headsign
FROM routes
JOIN trips ON routes.route_id = trips.route_id AND routes.dataset = trips.dataset
WHERE trips.dataset = $1 AND trip_id = $2`, r.id, tripID).Scan(
		&td.RouteLongName,
		&td.RouteShortName,
		&td.Headsign,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("display info for trip %s: %w", tripID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying trip display: %w", err)
	}

	return td, nil
}

func (r *PSQLDatasetReader) Stops(ctx context.Context) ([]*Stop, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT stop_id, stop_name, stop_lat, stop_lon
FROM stops
WHERE dataset = $1`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []*Stop{}
	for rows.Next() {
		s := &Stop{}
		err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}

	return stops, rows.Err()
}

func (r *PSQLDatasetReader) NearbyStops(ctx context.Context, lat float64, lon float64, limit int) ([]Stop, error) {
	stops, err := r.Stops(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting all stops: %w", err)
	}

	sort.Slice(stops, func(i, j int) bool {
		di := HaversineDistance(lat, lon, stops[i].Lat, stops[i].Lon)
		dj := HaversineDistance(lat, lon, stops[j].Lat, stops[j].Lon)
		return di < dj
	})

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	res := []Stop{}
	for _, s := range stops {
		res = append(res, *s)
	}

	return res, nil
}

// The backing connection is shared with Storage and stays open until
// Storage.Close.
func (r *PSQLDatasetReader) Close() error {
	return nil
}
