package busboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormattedTime(t *testing.T) {
	for _, tc := range []struct {
		raw      string
		ampm     bool
		expected string
	}{
		{"082000", false, "8:20"},
		{"082000", true, "8:20 am"},
		{"170500", false, "17:05"},
		{"170500", true, "5:05 pm"},
		{"120000", true, "12:00 pm"},
		{"121500", false, "12:15"},
		{"000500", true, "0:05 am"},
		{"235900", true, "11:59 pm"},

		// Hours past 23 wrap into the next day
		{"251000", false, "1:10"},
		{"251000", true, "1:10 am"},
		{"240000", false, "0:00"},

		// Garbage comes back as close to verbatim as possible
		{"xx3000", false, "xx:30"},
		{"12", false, "12"},
	} {
		assert.Equal(t, tc.expected, FormattedTime(tc.raw, tc.ampm), "raw %s ampm %v", tc.raw, tc.ampm)
	}
}

func TestCountdown(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2023, 5, 15, hour, minute, 0, 0, time.UTC)
	}

	for _, tc := range []struct {
		now      time.Time
		raw      string
		expected string
	}{
		// Same hour
		{at(8, 0), "082000", "Departs in 20 minutes"},
		{at(8, 0), "080100", "Departs in 1 minute"},
		{at(8, 0), "080000", "Departs in 0 minutes"},

		// Whole hours
		{at(8, 30), "093000", "Departs in 1 hour 0 minutes"},
		{at(8, 30), "103000", "Departs in 2 hours 0 minutes"},

		// Departure minute behind now's minute
		{at(8, 30), "090000", "Departs in 30 minutes"},
		{at(8, 30), "100000", "Departs in 1 hour 30 minutes"},
		{at(8, 30), "110000", "Departs in 2 hours 30 minutes"},

		// Departure minute ahead of now's minute
		{at(9, 15), "101600", "Departs in 1 hour and 1 minute"},
		{at(9, 15), "112000", "Departs in 2 hours 5 minutes"},
		{at(9, 15), "111600", "Departs in 2 hours and 1 minute"},

		// Midnight wrap
		{at(23, 50), "000500", "Departs in 15 minutes"},
		{at(23, 50), "003000", "Departs in 40 minutes"},

		// Hour-overflow notation for yesterday's late trips
		{at(23, 50), "250500", "Departs in 1 hour 15 minutes"},
		{at(1, 0), "250500", "Departs in 5 minutes"},
	} {
		assert.Equal(t, tc.expected, Countdown(tc.now, tc.raw), "now %v raw %s", tc.now, tc.raw)
	}
}
