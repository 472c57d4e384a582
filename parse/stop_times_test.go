package parse

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busboard/busboard/storage"
)

func TestParseStopTimeTime(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected string
		err      bool
	}{
		{"8:20:00", "082000", false},
		{"08:20:00", "082000", false},
		{"0:05:30", "000530", false},
		{"25:05:00", "250500", false},
		{"99:59:59", "995959", false},
		{"100:00:00", "", true},
		{"8:60:00", "", true},
		{"8:20:60", "", true},
		{"8:20", "", true},
		{"", "", true},
		{"8:xx:00", "", true},
	} {
		normalized, err := parseStopTimeTime(tc.input)
		if tc.err {
			assert.Error(t, err, "input %q", tc.input)
		} else {
			require.NoError(t, err, "input %q", tc.input)
			assert.Equal(t, tc.expected, normalized)
		}
	}
}

func stopTimesWriter(t *testing.T) (storage.Storage, storage.DatasetWriter) {
	s := storage.NewMemoryStorage()
	w, err := s.GetWriter("test")
	require.NoError(t, err)
	require.NoError(t, w.BeginStopTimes())
	return s, w
}

func TestParseStopTimes(t *testing.T) {
	trips := map[string]bool{"t1": true, "t2": true}
	stops := map[string]bool{"s1": true, "s2": true}

	s, w := stopTimesWriter(t)
	err := ParseStopTimes(w, bytes.NewBufferString(`
trip_id,stop_id,stop_sequence,arrival_time,departure_time
t1,s1,1,8:00:00,8:00:30
t1,s2,2,8:10:00,8:10:00
t2,s1,1,23:55:00,24:05:00`), trips, stops)
	require.NoError(t, err)
	require.NoError(t, w.EndStopTimes())

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	stopTimes, err := reader.StopDepartures(context.Background(), []string{"s1"}, "000000", "990000")
	require.NoError(t, err)
	require.Len(t, stopTimes, 2)
	assert.Equal(t, "080030", stopTimes[0].Departure)
	assert.Equal(t, "t1", stopTimes[0].TripID)
	assert.Equal(t, "240500", stopTimes[1].Departure)
	assert.Equal(t, "t2", stopTimes[1].TripID)
}

func TestParseStopTimesRejects(t *testing.T) {
	trips := map[string]bool{"t1": true}
	stops := map[string]bool{"s1": true}

	for _, tc := range []struct {
		name    string
		content string
		errStr  string
	}{
		{
			"unknown trip",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nnope,s1,1,8:00:00,8:00:00",
			"unknown trip_id",
		},
		{
			"unknown stop",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt1,nope,1,8:00:00,8:00:00",
			"unknown stop_id",
		},
		{
			"missing stop",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt1,,1,8:00:00,8:00:00",
			"missing stop_id",
		},
		{
			"bad departure time",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt1,s1,1,8:00:00,8:61:00",
			"parsing departure_time",
		},
		{
			"bad arrival time",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt1,s1,1,junk,8:00:00",
			"parsing arrival_time",
		},
		{
			"duplicate stop_sequence",
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt1,s1,1,8:00:00,8:00:00\nt1,s1,1,8:10:00,8:10:00",
			"duplicate stop_sequence",
		},
	} {
		_, w := stopTimesWriter(t)
		err := ParseStopTimes(w, bytes.NewBufferString(tc.content), trips, stops)
		assert.ErrorContains(t, err, tc.errStr, tc.name)
	}
}
