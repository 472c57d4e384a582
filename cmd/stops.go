package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [lat lon] [limit]",
	Short: "Lists stops, nearest first when a location is given",
	Args:  cobra.RangeArgs(0, 3),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	var lat, lon float64
	var limit int
	var err error

	gotLocation := false
	if len(args) == 1 {
		return fmt.Errorf("missing lon")
	}
	if len(args) >= 2 {
		gotLocation = true
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lon, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lon: %w", err)
		}
	}
	if len(args) == 3 {
		limit, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	s, err := openStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	reader, err := s.GetReader(datasetName)
	if err != nil {
		return fmt.Errorf("opening dataset %s: %w", datasetName, err)
	}

	if gotLocation {
		nearby, err := reader.NearbyStops(cmd.Context(), lat, lon, limit)
		if err != nil {
			return err
		}
		for _, stop := range nearby {
			fmt.Printf("%s: %s\n", stop.ID, stop.Name)
		}
		return nil
	}

	all, err := reader.Stops(cmd.Context())
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	for _, stop := range all {
		fmt.Printf("%s: %s\n", stop.ID, stop.Name)
	}

	return nil
}
