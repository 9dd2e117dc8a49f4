package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/season179/elastic-tools/internal/core"
	_ "github.com/season179/elastic-tools/internal/core/profiles"
)

func TestParseMatch(t *testing.T) {
	got, err := parseMatch([]string{"env=prod", " service =api gateway", "tag=a=b"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"env":     "prod",
		"service": "api gateway",
		"tag":     "a=b",
	}, got)

	got, err = parseMatch(nil)
	require.NoError(t, err)
	require.Nil(t, got)

	for _, bad := range []string{"novalue", "=prod"} {
		_, err := parseMatch([]string{bad})
		var ce *core.ConfigError
		require.ErrorAs(t, err, &ce, bad)
		require.Equal(t, "match", ce.Field)
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{`{"term":{"env":"prod"}}`})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"term":{"env":"prod"}}`, string(got[0]))

	_, err = parseFilters([]string{`{"term":{}}`, `[1,2]`})
	var ce *core.ConfigError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Reason, "clause 1")
}

func setRunFlags(t *testing.T, profile, start, end, tz string) {
	t.Helper()
	saved := runFlags
	t.Cleanup(func() { runFlags = saved })

	runFlags.profile = profile
	runFlags.start = start
	runFlags.end = end
	runFlags.tz = tz
	runFlags.match = nil
	runFlags.filters = nil
}

func TestBuildRunRequest(t *testing.T) {
	setRunFlags(t, "customer", "2025-01-15", "2025-01-17", "Asia/Jakarta")
	runFlags.match = []string{"env=prod"}

	req, err := buildRunRequest()
	require.NoError(t, err)

	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	require.Equal(t, "customer", req.Profile)
	require.True(t, req.Window.Start.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, jakarta)))
	require.True(t, req.Window.End.Equal(time.Date(2025, 1, 16, 17, 0, 0, 0, time.UTC)))
	require.Equal(t, map[string]string{"env": "prod"}, req.Match)
}

func TestBuildRunRequest_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		tz         string
		field      string
	}{
		{"unknown timezone", "2025-01-15", "2025-01-16", "Mars/Olympus", "tz"},
		{"bad start", "15/01/2025", "2025-01-16", "UTC", "start"},
		{"bad end", "2025-01-15", "tomorrow", "UTC", "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRunFlags(t, "customer", tt.start, tt.end, tt.tz)

			_, err := buildRunRequest()
			var ce *core.ConfigError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, tt.field, ce.Field)
		})
	}

	t.Run("end before start", func(t *testing.T) {
		setRunFlags(t, "customer", "2025-01-16", "2025-01-15", "UTC")
		_, err := buildRunRequest()
		require.Error(t, err)
		require.Equal(t, core.KindConfig, core.Classify(err))
	})
}

func TestExitError(t *testing.T) {
	inner := &core.ConfigError{Field: "start", Reason: "invalid date"}
	err := error(&exitError{code: 2, err: inner})

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, 2, ee.code)
	require.ErrorIs(t, err, inner)
	require.Equal(t, inner.Error(), err.Error())
}

func TestWriteProfiles(t *testing.T) {
	list := core.All()
	require.NotEmpty(t, list)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeProfiles(&buf, "table", list))
		require.Contains(t, buf.String(), "NAME")
		require.Contains(t, buf.String(), "customer_logs")
		require.Contains(t, buf.String(), "timestamp,payload_hash")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeProfiles(&buf, "json", list))

		var out struct {
			Profiles []core.ExtractionProfile `json:"profiles"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		require.Len(t, out.Profiles, len(list))
	})

	t.Run("yaml reads back as a profiles file", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeProfiles(&buf, "YAML", list))

		var out struct {
			Profiles []core.ExtractionProfile `yaml:"profiles"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
		require.Len(t, out.Profiles, len(list))
		for i, p := range out.Profiles {
			require.NoError(t, p.Validate())
			require.Equal(t, list[i].Target(), p.Target())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		err := writeProfiles(&bytes.Buffer{}, "xml", list)
		require.Equal(t, core.KindConfig, core.Classify(err))
	})
}
