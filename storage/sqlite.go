package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	datasets map[string]*sql.DB
}

type SQLiteDatasetWriter struct {
	db                  *sql.DB
	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
}

type SQLiteDatasetReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		datasets: map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListDatasets() ([]string, error) {
	names := map[string]bool{}
	for name := range s.datasets {
		names[name] = true
	}

	if s.OnDisk {
		matches, err := filepath.Glob(s.Directory + "/*.db")
		if err != nil {
			return nil, fmt.Errorf("listing dataset files: %w", err)
		}
		for _, m := range matches {
			names[strings.TrimSuffix(filepath.Base(m), ".db")] = true
		}
	}

	datasets := []string{}
	for name := range names {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)

	return datasets, nil
}

func (s *SQLiteStorage) GetReader(dataset string) (DatasetReader, error) {
	db, found := s.datasets[dataset]
	if found {
		return &SQLiteDatasetReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("dataset %s does not exist", dataset)
	}

	sourceName := s.Directory + "/" + dataset + ".db"
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("dataset %s does not exist at %s", dataset, sourceName)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s.datasets[dataset] = db

	return &SQLiteDatasetReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(dataset string) (DatasetWriter, error) {
	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.Directory + "/" + dataset + ".db"
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for name, query := range map[string]string{
		"stops": `
CREATE TABLE stops (
    stop_id TEXT PRIMARY KEY,
    stop_name TEXT NOT NULL,
    stop_lat REAL NOT NULL,
    stop_lon REAL NOT NULL
);`,
		"routes": `
CREATE TABLE routes (
    route_id TEXT PRIMARY KEY,
    route_short_name TEXT,
    route_long_name TEXT NOT NULL
);`,
		"trips": `
CREATE TABLE trips (
    trip_id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    trip_headsign TEXT
);
CREATE INDEX trips_route_id ON trips (route_id);
CREATE INDEX trips_service_id ON trips (service_id);
`,
		"stop_times": `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    departure_time TEXT NOT NULL
);
CREATE INDEX stop_times_trip_id ON stop_times (trip_id);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);
CREATE INDEX stop_times_departure_time ON stop_times (departure_time);
`,
		"calendar": `
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday integer NOT NULL,
    tuesday integer NOT NULL,
    wednesday integer NOT NULL,
    thursday integer NOT NULL,
    friday integer NOT NULL,
    saturday integer NOT NULL,
    sunday integer NOT NULL
);`,
		"calendar_dates": `
CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);
CREATE INDEX calendar_dates_service_id_date ON calendar_dates (service_id, date);
`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	s.datasets[dataset] = db

	return &SQLiteDatasetWriter{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	for name, db := range s.datasets {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing dataset %s: %w", name, err)
		}
	}
	s.datasets = map[string]*sql.DB{}
	return nil
}

func (w *SQLiteDatasetWriter) WriteStop(stop *Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon)
VALUES (?, ?, ?, ?)`,
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

func (w *SQLiteDatasetWriter) WriteRoute(route *Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (route_id, route_short_name, route_long_name)
VALUES (?, ?, ?)`,
		route.ID,
		route.ShortName,
		route.LongName,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *SQLiteDatasetWriter) WriteTrip(trip *Trip) error {
	_, err := w.db.Exec(`
INSERT INTO trips (trip_id, route_id, service_id, trip_headsign)
VALUES (?, ?, ?, ?)`,
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

func (w *SQLiteDatasetWriter) WriteCalendar(cal *Calendar) error {
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
INSERT INTO calendar (service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (w *SQLiteDatasetWriter) WriteCalendarDate(cd *CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}

	return nil
}

func (w *SQLiteDatasetWriter) BeginStopTimes() error {
	// transaction with prepared statement.
	var err error
	w.stopTimeInsertTx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	w.stopTimeInsertQuery, err = w.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, departure_time)
VALUES (?, ?, ?, ?)`)
	if err != nil {
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (w *SQLiteDatasetWriter) WriteStopTime(st *StopTime) error {
	_, err := w.stopTimeInsertQuery.Exec(
		st.TripID,
		st.StopID,
		st.StopSequence,
		st.Departure,
	)
	if err != nil {
		w.stopTimeInsertQuery.Close()
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		w.stopTimeInsertQuery = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}

	return nil
}

func (w *SQLiteDatasetWriter) EndStopTimes() error {
	// commit transaction and clean up
	w.stopTimeInsertQuery.Close()
	err := w.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	w.stopTimeInsertTx = nil
	w.stopTimeInsertQuery = nil

	return nil
}

func (w *SQLiteDatasetWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE;`)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("analyzing database: %s", err)
	}

	return nil
}

func (r *SQLiteDatasetReader) TripServiceID(ctx context.Context, tripID string) (string, error) {
	var serviceID string
	err := r.db.QueryRowContext(ctx, `
SELECT service_id
FROM trips
WHERE trip_id = ?`, tripID).Scan(&serviceID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("trip %s: %w", tripID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying trip service: %w", err)
	}

	return serviceID, nil
}

func (r *SQLiteDatasetReader) Calendar(ctx context.Context, serviceID string) (*Calendar, error) {
	var startDate, endDate string
	var monday, tuesday, wednesday, thursday, friday, saturday, sunday bool
	err := r.db.QueryRowContext(ctx, `
SELECT start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar
WHERE service_id = ?`, serviceID).Scan(
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
	if monday {
		weekday |= 1 << time.Monday
	}
	if tuesday {
		weekday |= 1 << time.Tuesday
	}
	if wednesday {
		weekday |= 1 << time.Wednesday
	}
	if thursday {
		weekday |= 1 << time.Thursday
	}
	if friday {
		weekday |= 1 << time.Friday
	}
	if saturday {
		weekday |= 1 << time.Saturday
	}
	if sunday {
		weekday |= 1 << time.Sunday
	}

	return &Calendar{
		ServiceID: serviceID,
		StartDate: startDate,
		EndDate:   endDate,
		Weekday:   weekday,
	}, nil
}

func (r *SQLiteDatasetReader) CalendarDate(ctx context.Context, serviceID string, date string) (*CalendarDate, error) {
	cd := &CalendarDate{ServiceID: serviceID, Date: date}
	err := r.db.QueryRowContext(ctx, `
SELECT exception_type
FROM calendar_dates
WHERE service_id = ? AND date = ?`, serviceID, date).Scan(&cd.ExceptionType)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exception for %s on %s: %w", serviceID, date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar date: %w", err)
	}

	return cd, nil
}

func (r *SQLiteDatasetReader) StopDepartures(ctx context.Context, stopIDs []string, first string, last string) ([]*StopTime, error) {
	placeholders := []string{}
	queryValues := []interface{}{}
	for _, stopID := range stopIDs {
		placeholders = append(placeholders, "?")
		queryValues = append(queryValues, stopID)
	}
	queryValues = append(queryValues, first, last)

	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT trip_id, departure_time, stop_id
FROM stop_times
WHERE stop_id IN (`+strings.Join(placeholders, ", ")+`) AND
      departure_time >= ? AND departure_time <= ?
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

func (r *SQLiteDatasetReader) TripDisplay(ctx context.Context, tripID string) (*TripDisplay, error) {
	td := &TripDisplay{}
	err := r.db.QueryRowContext(ctx, `
SELECT route_long_name, route_short_name, trip_headsign
FROM routes
JOIN trips ON routes.route_id = trips.route_id
WHERE trip_id = ?`, tripID).Scan(
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

func (r *SQLiteDatasetReader) Stops(ctx context.Context) ([]*Stop, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT stop_id, stop_name, stop_lat, stop_lon
FROM stops`)
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

func (r *SQLiteDatasetReader) NearbyStops(ctx context.Context, lat float64, lon float64, limit int) ([]Stop, error) {
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
func (r *SQLiteDatasetReader) Close() error {
	return nil
}
