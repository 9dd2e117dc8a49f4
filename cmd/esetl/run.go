package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/season179/elastic-tools/internal/config"
	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load one time window for a profile",
	Long: `Run scrolls every document in [start, end) and loads it through the
named extraction profile. Bounds without an offset are read in --tz.

The summary is printed as JSON on stdout. Exit status:
  0  clean: every batch loaded
  1  fatal: bad configuration, search failure or cancellation
  2  degraded: the run finished but at least one batch failed

Re-running a window is safe; rows already present are skipped.`,
	Example: `  esetl run --profile customer --start 2025-01-15 --end 2025-01-17 --tz Asia/Jakarta
  esetl run --profile customer --start 2025-01-15T00:00:00Z --end 2025-01-15T06:00:00Z --match env=prod
  esetl run --profile bukopin --start 2025-01-15 --end 2025-01-16 --output csv --csv-path bukopin.csv`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFlags struct {
	profile   string
	start     string
	end       string
	tz        string
	index     string
	match     []string
	filters   []string
	output    string
	csvPath   string
	batchSize int
	keepEmpty bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.profile, "profile", "", "extraction profile name, see esetl profiles")
	f.StringVar(&runFlags.start, "start", "", "inclusive window start: YYYY-MM-DD or RFC3339")
	f.StringVar(&runFlags.end, "end", "", "exclusive window end: YYYY-MM-DD or RFC3339")
	f.StringVar(&runFlags.tz, "tz", "UTC", "timezone for bounds without an offset")
	f.StringVar(&runFlags.index, "index", "", "index or pattern (default ES_INDEX)")
	f.StringArrayVar(&runFlags.match, "match", nil, "field=phrase criterion, repeatable")
	f.StringArrayVar(&runFlags.filters, "filter", nil, "raw JSON filter clause, repeatable")
	f.StringVar(&runFlags.output, "output", "", "postgres, csv or discard (default PIPELINE_OUTPUT)")
	f.StringVar(&runFlags.csvPath, "csv-path", "", "CSV file for --output csv (default PIPELINE_CSV_PATH)")
	f.IntVar(&runFlags.batchSize, "batch-size", 0, "records per sink call (default PIPELINE_BATCH_SIZE)")
	f.BoolVar(&runFlags.keepEmpty, "keep-empty", false, "keep structured records whose fields are all empty")

	_ = runCmd.MarkFlagRequired("profile")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")
}

// runOverrides applies the flags that shadow environment settings.
func runOverrides(cmd *cobra.Command) config.Override {
	return func(c *config.Config) {
		if runFlags.output != "" {
			c.Pipeline.Output = runFlags.output
		}
		if runFlags.csvPath != "" {
			c.Pipeline.CSVPath = runFlags.csvPath
		}
		if runFlags.batchSize > 0 {
			c.Pipeline.BatchSize = runFlags.batchSize
		}
		if cmd.Flags().Changed("keep-empty") {
			c.Pipeline.KeepEmpty = runFlags.keepEmpty
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := buildRunRequest()
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(runOverrides(cmd))
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	if _, err := core.Resolve(req.Profile); err != nil {
		return &exitError{code: 1, err: err}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	defer a.Close()

	ctx = core.ContextWithTrigger(ctx, core.TriggerCLI)
	if u := os.Getenv("USER"); u != "" {
		ctx = core.ContextWithRequester(ctx, u)
	}

	summary, runErr := a.service.Execute(ctx, req)
	if summary == nil {
		return &exitError{code: 1, err: runErr}
	}
	ctx = logging.WithRunID(ctx, summary.RunID)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logging.FromContext(ctx).Error("write summary", "error", err)
	}

	switch code := summary.ExitCode(); code {
	case 0:
		return nil
	case 2:
		return &exitError{code: 2, err: fmt.Errorf("run degraded: %d records in failed batches", summary.Failed())}
	default:
		if runErr == nil {
			runErr = fmt.Errorf("run failed: %s", summary.FatalError())
		}
		return &exitError{code: code, err: runErr}
	}
}

// buildRunRequest turns the flags into a request. Nothing here touches the network.
func buildRunRequest() (core.RunRequest, error) {
	loc, err := time.LoadLocation(runFlags.tz)
	if err != nil {
		return core.RunRequest{}, &core.ConfigError{Field: "tz", Reason: "unknown timezone " + runFlags.tz}
	}

	window, err := core.ParseWindow(runFlags.start, runFlags.end, loc)
	if err != nil {
		return core.RunRequest{}, err
	}

	match, err := parseMatch(runFlags.match)
	if err != nil {
		return core.RunRequest{}, err
	}

	filters, err := parseFilters(runFlags.filters)
	if err != nil {
		return core.RunRequest{}, err
	}

	return core.RunRequest{
		Profile: runFlags.profile,
		Window:  window,
		Index:   runFlags.index,
		Match:   match,
		Filters: filters,
	}, nil
}

// parseMatch parses repeated field=phrase flags.
func parseMatch(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		field, phrase, ok := strings.Cut(v, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, &core.ConfigError{Field: "match", Reason: fmt.Sprintf("%q is not field=phrase", v)}
		}
		out[field] = phrase
	}
	return out, nil
}

// parseFilters checks that every --filter is a JSON object.
func parseFilters(values []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(values))
	for i, v := range values {
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, &core.ConfigError{Field: "filter", Reason: fmt.Sprintf("clause %d is not a JSON object: %v", i, err)}
		}
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}
