package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/busboard/busboard/storage"
)

// ParseDataset reads a zipped GTFS static dump and writes its records
// through the given writer. The writer is closed on success.
func ParseDataset(writer storage.DatasetWriter, buf []byte) error {
	// These are the files we load for static dumps.
	file := map[string]io.ReadCloser{
		"routes.txt":         nil,
		"stops.txt":          nil,
		"trips.txt":          nil,
		"stop_times.txt":     nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		return fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	for _, required := range []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return fmt.Errorf("missing %s", required)
		}
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	// Parse routes.txt. Extract route IDs in the process.
	routes, err := ParseRoutes(writer, file["routes.txt"])
	if err != nil {
		return fmt.Errorf("parsing routes.txt: %w", err)
	}

	// Parse calendar.txt and calendar_dates.txt. Extract the set
	// of all service IDs in the process.
	services := map[string]bool{}
	if file["calendar.txt"] != nil {
		services, err = ParseCalendar(writer, file["calendar.txt"])
		if err != nil {
			return fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	if file["calendar_dates.txt"] != nil {
		cdServices, err := ParseCalendarDates(writer, file["calendar_dates.txt"])
		if err != nil {
			return fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		for serviceID := range cdServices {
			services[serviceID] = true
		}
	}

	// Parse trips.txt. Extract trip IDs in the process.
	trips, err := ParseTrips(writer, file["trips.txt"], routes, services)
	if err != nil {
		return fmt.Errorf("parsing trips.txt: %w", err)
	}

	// Parse stops.txt. Extract stop IDs in the process.
	stops, err := ParseStops(writer, file["stops.txt"])
	if err != nil {
		return fmt.Errorf("parsing stops.txt: %w", err)
	}

	// Parse stop_times.txt.
	err = writer.BeginStopTimes()
	if err != nil {
		return fmt.Errorf("beginning stop_times: %w", err)
	}
	err = ParseStopTimes(writer, file["stop_times.txt"], trips, stops)
	if err != nil {
		return fmt.Errorf("parsing stop_times.txt: %w", err)
	}
	err = writer.EndStopTimes()
	if err != nil {
		return fmt.Errorf("ending stop_times: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("closing dataset writer: %w", err)
	}

	return nil
}
