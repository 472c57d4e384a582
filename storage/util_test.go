package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	var loc = map[string]Stop{
		"nyc":    {ID: "nyc", Lat: 40.700000, Lon: -74.100000},
		"philly": {ID: "philly", Lat: 40.000000, Lon: -75.200000},
		"sf":     {ID: "sf", Lat: 37.800000, Lon: -122.500000},
		"sto":    {ID: "sto", Lat: 59.300000, Lon: 17.900000},
	}

	// Distances are in meters
	assert.InDelta(t, 121438.585, HaversineDistance(loc["nyc"].Lat, loc["nyc"].Lon, loc["philly"].Lat, loc["philly"].Lon), 1.0)
	assert.InDelta(t, 4127311.071, HaversineDistance(loc["nyc"].Lat, loc["nyc"].Lon, loc["sf"].Lat, loc["sf"].Lon), 1.0)
	assert.InDelta(t, 6318636.281, HaversineDistance(loc["nyc"].Lat, loc["nyc"].Lon, loc["sto"].Lat, loc["sto"].Lon), 1.0)
	assert.InDelta(t, 4052204.563, HaversineDistance(loc["philly"].Lat, loc["philly"].Lon, loc["sf"].Lat, loc["sf"].Lon), 1.0)

	// Symmetry and zero distance
	assert.Equal(t,
		HaversineDistance(loc["nyc"].Lat, loc["nyc"].Lon, loc["sf"].Lat, loc["sf"].Lon),
		HaversineDistance(loc["sf"].Lat, loc["sf"].Lon, loc["nyc"].Lat, loc["nyc"].Lon),
	)
	assert.Equal(t, 0.0, HaversineDistance(loc["nyc"].Lat, loc["nyc"].Lon, loc["nyc"].Lat, loc["nyc"].Lon))
}
