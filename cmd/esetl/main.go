package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata" // SCHEDULE_TIMEZONE and --tz in minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/season179/elastic-tools/internal/core"
)

var rootCmd = &cobra.Command{
	Use:   "esetl",
	Short: "Copy log documents from Elasticsearch into PostgreSQL",
	Long: `esetl scrolls log documents out of Elasticsearch for a time window,
projects each payload through an extraction profile, and loads the
records into PostgreSQL (or CSV) while skipping rows already present.

Configuration is read from the environment and an optional .env file.

Examples:
  esetl profiles
  esetl run --profile customer --start 2025-01-15 --end 2025-01-17 --tz Asia/Jakarta
  esetl run --profile bukopin --start 2025-01-15 --end 2025-01-16 --output csv --csv-path out.csv
  esetl serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Overload overwrites existing env vars
		if err := godotenv.Overload(envFile); err != nil {
			slog.Debug("no .env file loaded", "path", envFile, "error", err)
		}
	},
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profilesCmd)
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	fmt.Fprintln(os.Stderr, "esetl:", err)
	if core.IsUserFacing(err) {
		fmt.Fprintln(os.Stderr, "  "+core.FormatUserError(err))
	}
	os.Exit(code)
}
