package storage

import (
	"context"
	"fmt"
	"sort"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	Datasets map[string]*MemoryDataset
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Datasets: map[string]*MemoryDataset{},
	}
}

func (s *MemoryStorage) ListDatasets() ([]string, error) {
	names := []string{}
	for name := range s.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) GetReader(dataset string) (DatasetReader, error) {
	d, ok := s.Datasets[dataset]
	if !ok {
		return nil, fmt.Errorf("dataset %s does not exist", dataset)
	}
	return d, nil
}

func (s *MemoryStorage) GetWriter(dataset string) (DatasetWriter, error) {
	d := &MemoryDataset{
		calendar:        map[string]*Calendar{},
		calendarDates:   map[string]map[string]*CalendarDate{},
		routes:          map[string]*Route{},
		stops:           map[string]*Stop{},
		trips:           map[string]*Trip{},
		stopTimesByStop: map[string][]*StopTime{},
	}

	s.Datasets[dataset] = d

	return d, nil
}

func (s *MemoryStorage) Close() error {
	s.Datasets = map[string]*MemoryDataset{}
	return nil
}

type MemoryDataset struct {
	calendar        map[string]*Calendar
	calendarDates   map[string]map[string]*CalendarDate
	routes          map[string]*Route
	stops           map[string]*Stop
	trips           map[string]*Trip
	stopTimesByStop map[string][]*StopTime
}

func (d *MemoryDataset) WriteStop(stop *Stop) error {
	d.stops[stop.ID] = stop
	return nil
}

func (d *MemoryDataset) WriteRoute(route *Route) error {
	d.routes[route.ID] = route
	return nil
}

func (d *MemoryDataset) WriteTrip(trip *Trip) error {
	d.trips[trip.ID] = trip
	return nil
}

func (d *MemoryDataset) WriteCalendar(cal *Calendar) error {
	d.calendar[cal.ServiceID] = cal
	return nil
}

func (d *MemoryDataset) WriteCalendarDate(cd *CalendarDate) error {
	byDate, found := d.calendarDates[cd.ServiceID]
	if !found {
		byDate = map[string]*CalendarDate{}
		d.calendarDates[cd.ServiceID] = byDate
	}
	byDate[cd.Date] = cd
	return nil
}

func (d *MemoryDataset) BeginStopTimes() error {
	return nil
}

func (d *MemoryDataset) WriteStopTime(st *StopTime) error {
	d.stopTimesByStop[st.StopID] = append(d.stopTimesByStop[st.StopID], st)
	return nil
}

func (d *MemoryDataset) EndStopTimes() error {
	return nil
}

func (d *MemoryDataset) TripServiceID(ctx context.Context, tripID string) (string, error) {
	trip, found := d.trips[tripID]
	if !found {
		return "", fmt.Errorf("trip %s: %w", tripID, ErrNotFound)
	}
	return trip.ServiceID, nil
}

func (d *MemoryDataset) Calendar(ctx context.Context, serviceID string) (*Calendar, error) {
	cal, found := d.calendar[serviceID]
	if !found {
		return nil, fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	return cal, nil
}

func (d *MemoryDataset) CalendarDate(ctx context.Context, serviceID string, date string) (*CalendarDate, error) {
	cd, found := d.calendarDates[serviceID][date]
	if !found {
		return nil, fmt.Errorf("exception for %s on %s: %w", serviceID, date, ErrNotFound)
	}
	return cd, nil
}

func (d *MemoryDataset) StopDepartures(ctx context.Context, stopIDs []string, first string, last string) ([]*StopTime, error) {
	type key struct {
		TripID    string
		Departure string
		StopID    string
	}
	seen := map[key]bool{}

	stopTimes := []*StopTime{}
	for _, stopID := range stopIDs {
		for _, st := range d.stopTimesByStop[stopID] {
			if st.Departure < first || st.Departure > last {
				continue
			}
			k := key{st.TripID, st.Departure, st.StopID}
			if seen[k] {
				continue
			}
			seen[k] = true
			stopTimes = append(stopTimes, st)
		}
	}

	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].Departure < stopTimes[j].Departure
	})

	return stopTimes, nil
}

func (d *MemoryDataset) TripDisplay(ctx context.Context, tripID string) (*TripDisplay, error) {
	trip, found := d.trips[tripID]
	if !found {
		return nil, fmt.Errorf("display info for trip %s: %w", tripID, ErrNotFound)
	}
	route, found := d.routes[trip.RouteID]
	if !found {
		return nil, fmt.Errorf("display info for trip %s: %w", tripID, ErrNotFound)
	}

	return &TripDisplay{
		RouteLongName:  route.LongName,
		RouteShortName: route.ShortName,
		Headsign:       trip.Headsign,
	}, nil
}

func (d *MemoryDataset) Stops(ctx context.Context) ([]*Stop, error) {
	stops := []*Stop{}
	for _, s := range d.stops {
		stops = append(stops, s)
	}
	return stops, nil
}

func (d *MemoryDataset) NearbyStops(ctx context.Context, lat float64, lon float64, limit int) ([]Stop, error) {
	stops, err := d.Stops(ctx)
	if err != nil {
		return nil, err
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

func (d *MemoryDataset) Close() error {
	return nil
}
