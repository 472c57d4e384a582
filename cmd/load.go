package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/busboard/busboard/parse"
)

var loadCmd = &cobra.Command{
	Use:   "load <gtfs.zip>",
	Short: "Loads a zipped GTFS static dump into storage",
	Args:  cobra.ExactArgs(1),
	RunE:  load,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func load(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	s, err := openStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	writer, err := s.GetWriter(datasetName)
	if err != nil {
		return fmt.Errorf("opening dataset %s for writing: %w", datasetName, err)
	}

	if err := parse.ParseDataset(writer, buf); err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	fmt.Printf("loaded %s into dataset %s\n", args[0], datasetName)

	return nil
}
