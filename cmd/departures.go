package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/busboard/busboard"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <stop_id> [stop_id ...]",
	Short: "Lists upcoming departures from one or more stops",
	Args:  cobra.MinimumNArgs(1),
	RunE:  departures,
}

var (
	maxPerStop    int
	lookAhead     int
	lateNight     bool
	ampm          bool
	preferRouteNo bool
)

func init() {
	departuresCmd.Flags().IntVarP(&maxPerStop, "limit", "l", 3, "Departures to show per stop")
	departuresCmd.Flags().IntVarP(&lookAhead, "hours", "H", 3, "Look-ahead horizon in hours")
	departuresCmd.Flags().BoolVarP(&lateNight, "late-night", "L", false, "In the small hours, include carryover trips from yesterday's service day")
	departuresCmd.Flags().BoolVarP(&ampm, "ampm", "a", false, "12-hour clock display")
	departuresCmd.Flags().BoolVarP(&preferRouteNo, "route-numbers", "r", true, "Label rows with route short names instead of stop ids")
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	schedule, s, err := openSchedule()
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now()

	results, err := schedule.MultiStopDepartures(cmd.Context(), now, args, maxPerStop, lookAhead, !lateNight)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no departures found")
		return nil
	}

	for _, d := range results {
		fmt.Printf("%s  %-8s %-28s %s\n",
			busboard.FormattedTime(d.Time, ampm),
			d.Label(preferRouteNo),
			d.Destination,
			d.DepartsIn,
		)
	}

	return nil
}
