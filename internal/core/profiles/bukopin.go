package profiles

import "github.com/season179/elastic-tools/internal/core"

func init() {
	registerBukopin()
}

// registerBukopin stores partner bank callbacks verbatim. Their shape varies
// by callback type, so the whole payload goes into a jsonb column and the
// content hash stands in for a subject id in the unique key.
func registerBukopin() {
	core.Register(core.ExtractionProfile{
		Name:        "bukopin",
		Description: "Bukopin callback payloads stored as raw JSON",
		Kind:        core.ExtractRaw,
		Table:       "bukopin_logs",
		UniqueKey:   []string{core.ColumnNameTimestamp, core.PayloadHashField},
	})
}
