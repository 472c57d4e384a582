package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/busboard/busboard"
	"github.com/busboard/busboard/storage"
)

var rootCmd = &cobra.Command{
	Use:          "busboard",
	Short:        "Offline transit departure board",
	Long:         "Loads GTFS schedule dumps and answers \"what departs soon\" without a network",
	SilenceUsage: true,
}

var datasetName string

func init() {
	rootCmd.PersistentFlags().StringVarP(&datasetName, "dataset", "D", "default", "Dataset name")
}

func main() {
	// A .env beside the binary can set BUSBOARD_POSTGRES or
	// BUSBOARD_DB_DIR. Absence is fine.
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Postgres when BUSBOARD_POSTGRES is set, otherwise SQLite files in
// BUSBOARD_DB_DIR (default the working directory).
func openStorage() (storage.Storage, error) {
	if connStr := os.Getenv("BUSBOARD_POSTGRES"); connStr != "" {
		return storage.NewPSQLStorage(connStr, false)
	}

	dir := os.Getenv("BUSBOARD_DB_DIR")
	if dir == "" {
		dir = "."
	}
	return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dir})
}

func openSchedule() (*busboard.Schedule, storage.Storage, error) {
	s, err := openStorage()
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.GetReader(datasetName)
	if err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("opening dataset %s: %w", datasetName, err)
	}

	return busboard.NewSchedule(reader, slog.Default()), s, nil
}
