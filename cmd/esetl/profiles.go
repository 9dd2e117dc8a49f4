package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/season179/elastic-tools/internal/core"
	"github.com/season179/elastic-tools/internal/core/profiles"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List extraction profiles",
	Long: `List the built-in extraction profiles and those loaded from
PIPELINE_PROFILES_FILE. The yaml format can be used as a starting point
for a profiles file.`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

var profilesFormat string

func init() {
	profilesCmd.Flags().StringVar(&profilesFormat, "format", "table", "output format: table, json, yaml")
}

func runProfiles(cmd *cobra.Command, args []string) error {
	// Only the profiles file matters here; the cluster and database are not needed.
	path := strings.TrimSpace(os.Getenv("PIPELINE_PROFILES_FILE"))
	if _, err := profiles.LoadFile(path); err != nil {
		return &exitError{code: 1, err: err}
	}

	if err := writeProfiles(cmd.OutOrStdout(), profilesFormat, core.All()); err != nil {
		return &exitError{code: 1, err: err}
	}
	return nil
}

func writeProfiles(w io.Writer, format string, list []core.ExtractionProfile) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"profiles": list})

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"profiles": list}); err != nil {
			return err
		}
		return enc.Close()

	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tTABLE\tUNIQUE KEY\tDESCRIPTION")
		for _, p := range list {
			target := p.Target()
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				p.Name, p.Kind, target.Table, strings.Join(target.UniqueKey, ","), p.Description)
		}
		return tw.Flush()

	default:
		return &core.ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}
}
