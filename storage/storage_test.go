package storage_test

// Tests of the storage implementations. The in-memory and sqlite
// implementations always run; postgres requires a reachable server
// and is gated behind BUSBOARD_TEST_POSTGRES.

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busboard/busboard/storage"
)

func buildStorage(t *testing.T, backend string) storage.Storage {
	switch backend {
	case "memory":
		return storage.NewMemoryStorage()
	case "sqlite":
		s, err := storage.NewSQLiteStorage()
		require.NoError(t, err)
		return s
	case "postgres":
		connStr := os.Getenv("BUSBOARD_TEST_POSTGRES")
		if connStr == "" {
			t.Skip("BUSBOARD_TEST_POSTGRES not set")
		}
		s, err := storage.NewPSQLStorage(connStr, true)
		require.NoError(t, err)
		return s
	}
	t.Fatalf("unknown backend %q", backend)
	return nil
}

func writeFixture(t *testing.T, w storage.DatasetWriter) {
	weekdays := int8(1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday |
		1<<time.Thursday | 1<<time.Friday)

	require.NoError(t, w.WriteCalendar(&storage.Calendar{
		ServiceID: "weekday",
		StartDate: "20230101",
		EndDate:   "20231231",
		Weekday:   weekdays,
	}))
	require.NoError(t, w.WriteCalendarDate(&storage.CalendarDate{
		ServiceID:     "weekday",
		Date:          "20230704",
		ExceptionType: storage.ExceptionRemoved,
	}))
	require.NoError(t, w.WriteRoute(&storage.Route{ID: "R10", ShortName: "10", LongName: "Main Street Line"}))
	require.NoError(t, w.WriteTrip(&storage.Trip{ID: "T1", RouteID: "R10", ServiceID: "weekday", Headsign: "Downtown"}))
	require.NoError(t, w.WriteTrip(&storage.Trip{ID: "T2", RouteID: "R10", ServiceID: "weekday", Headsign: "Uptown"}))
	require.NoError(t, w.WriteStop(&storage.Stop{ID: "S1", Name: "First & Main", Lat: 45.10, Lon: -75.50}))
	require.NoError(t, w.WriteStop(&storage.Stop{ID: "S2", Name: "Harbor", Lat: 45.20, Lon: -75.60}))
	require.NoError(t, w.WriteStop(&storage.Stop{ID: "S3", Name: "Airport", Lat: 46.00, Lon: -76.00}))

	require.NoError(t, w.BeginStopTimes())
	require.NoError(t, w.WriteStopTime(&storage.StopTime{TripID: "T1", StopID: "S1", StopSequence: 1, Departure: "082000"}))
	require.NoError(t, w.WriteStopTime(&storage.StopTime{TripID: "T1", StopID: "S2", StopSequence: 2, Departure: "083500"}))
	require.NoError(t, w.WriteStopTime(&storage.StopTime{TripID: "T2", StopID: "S1", StopSequence: 1, Departure: "250500"}))
	require.NoError(t, w.EndStopTimes())
}

func testInitiallyEmpty(t *testing.T, backend string) {
	s := buildStorage(t, backend)
	defer s.Close()

	datasets, err := s.ListDatasets()
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func testReadingAndWriting(t *testing.T, backend string) {
	ctx := context.Background()

	s := buildStorage(t, backend)
	defer s.Close()

	w, err := s.GetWriter("ds")
	require.NoError(t, err)
	writeFixture(t, w)
	require.NoError(t, w.Close())

	r, err := s.GetReader("ds")
	require.NoError(t, err)
	defer r.Close()

	// trip -> service
	serviceID, err := r.TripServiceID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "weekday", serviceID)

	_, err = r.TripServiceID(ctx, "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// calendar roundtrips including the weekday bitmask
	cal, err := r.Calendar(ctx, "weekday")
	require.NoError(t, err)
	assert.Equal(t, &storage.Calendar{
		ServiceID: "weekday",
		StartDate: "20230101",
		EndDate:   "20231231",
		Weekday: int8(1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday |
			1<<time.Thursday | 1<<time.Friday),
	}, cal)

	_, err = r.Calendar(ctx, "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// exceptions
	cd, err := r.CalendarDate(ctx, "weekday", "20230704")
	require.NoError(t, err)
	assert.Equal(t, storage.ExceptionRemoved, cd.ExceptionType)

	_, err = r.CalendarDate(ctx, "weekday", "20230705")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// display join
	display, err := r.TripDisplay(ctx, "T2")
	require.NoError(t, err)
	assert.Equal(t, &storage.TripDisplay{
		RouteLongName:  "Main Street Line",
		RouteShortName: "10",
		Headsign:       "Uptown",
	}, display)

	_, err = r.TripDisplay(ctx, "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stops, err := r.Stops(ctx)
	require.NoError(t, err)
	assert.Len(t, stops, 3)
}

func testStopDepartures(t *testing.T, backend string) {
	ctx := context.Background()

	s := buildStorage(t, backend)
	defer s.Close()

	w, err := s.GetWriter("ds")
	require.NoError(t, err)
	writeFixture(t, w)
	require.NoError(t, w.Close())

	r, err := s.GetReader("ds")
	require.NoError(t, err)
	defer r.Close()

	// Full range, one stop, ordered by departure. The bounds are
	// inclusive on both ends.
	stopTimes, err := r.StopDepartures(ctx, []string{"S1"}, "082000", "250500")
	require.NoError(t, err)
	require.Len(t, stopTimes, 2)
	assert.Equal(t, "T1", stopTimes[0].TripID)
	assert.Equal(t, "082000", stopTimes[0].Departure)
	assert.Equal(t, "T2", stopTimes[1].TripID)
	assert.Equal(t, "250500", stopTimes[1].Departure)

	// Tight range cuts the overflow-hour departure
	stopTimes, err = r.StopDepartures(ctx, []string{"S1"}, "080000", "090000")
	require.NoError(t, err)
	require.Len(t, stopTimes, 1)
	assert.Equal(t, "T1", stopTimes[0].TripID)

	// Multiple stops merge, still ordered by departure
	stopTimes, err = r.StopDepartures(ctx, []string{"S1", "S2"}, "080000", "090000")
	require.NoError(t, err)
	require.Len(t, stopTimes, 2)
	assert.Equal(t, "S1", stopTimes[0].StopID)
	assert.Equal(t, "S2", stopTimes[1].StopID)

	// Empty range is an empty result
	stopTimes, err = r.StopDepartures(ctx, []string{"S1"}, "100000", "110000")
	require.NoError(t, err)
	assert.Empty(t, stopTimes)
}

func testNearbyStops(t *testing.T, backend string) {
	ctx := context.Background()

	s := buildStorage(t, backend)
	defer s.Close()

	w, err := s.GetWriter("ds")
	require.NoError(t, err)
	writeFixture(t, w)
	require.NoError(t, w.Close())

	r, err := s.GetReader("ds")
	require.NoError(t, err)
	defer r.Close()

	// From right next to S2
	stops, err := r.NearbyStops(ctx, 45.21, -75.61, 0)
	require.NoError(t, err)
	require.Len(t, stops, 3)
	assert.Equal(t, "S2", stops[0].ID)
	assert.Equal(t, "S1", stops[1].ID)
	assert.Equal(t, "S3", stops[2].ID)

	stops, err = r.NearbyStops(ctx, 45.21, -75.61, 2)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "S2", stops[0].ID)
}

func testDatasetLifecycle(t *testing.T, backend string) {
	ctx := context.Background()

	s := buildStorage(t, backend)
	defer s.Close()

	_, err := s.GetWriter("first")
	require.NoError(t, err)

	w, err := s.GetWriter("second")
	require.NoError(t, err)
	writeFixture(t, w)
	require.NoError(t, w.Close())

	r, err := s.GetReader("second")
	require.NoError(t, err)
	_, err = r.TripServiceID(ctx, "T1")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// Reopening a dataset for writing discards the old records
	w, err = s.GetWriter("second")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err = s.GetReader("second")
	require.NoError(t, err)
	_, err = r.TripServiceID(ctx, "T1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage(t *testing.T) {
	for _, test := range []struct {
		Name string
		Test func(t *testing.T, backend string)
	}{
		{"InitiallyEmpty", testInitiallyEmpty},
		{"ReadingAndWriting", testReadingAndWriting},
		{"StopDepartures", testStopDepartures},
		{"NearbyStops", testNearbyStops},
		{"DatasetLifecycle", testDatasetLifecycle},
	} {
		for _, backend := range []string{"memory", "sqlite", "postgres"} {
			t.Run(fmt.Sprintf("%s %s", test.Name, backend), func(t *testing.T) {
				test.Test(t, backend)
			})
		}
	}
}
