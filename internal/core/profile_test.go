package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractionProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *ExtractionProfile)
		wantErr string
	}{
		{name: "valid customer", mutate: func(*ExtractionProfile) {}},
		{name: "missing name", mutate: func(p *ExtractionProfile) { p.Name = "" }, wantErr: "name is required"},
		{name: "missing table", mutate: func(p *ExtractionProfile) { p.Table = "" }, wantErr: "table is required"},
		{name: "unknown kind", mutate: func(p *ExtractionProfile) { p.Kind = "csv" }, wantErr: `unknown kind "csv"`},
		{name: "unknown empty policy", mutate: func(p *ExtractionProfile) { p.EmptyPolicy = "maybe" }, wantErr: `unknown empty_policy "maybe"`},
		{name: "no fields", mutate: func(p *ExtractionProfile) { p.Fields = nil }, wantErr: "at least one field"},
		{
			name:    "reserved output",
			mutate:  func(p *ExtractionProfile) { p.Fields[0].Output = ColumnNameSubject },
			wantErr: `field "subject_id" is reserved`,
		},
		{
			name:    "duplicate output",
			mutate:  func(p *ExtractionProfile) { p.Fields[1].Output = p.Fields[0].Output },
			wantErr: `field "email" is defined twice`,
		},
		{
			name:    "unknown field type",
			mutate:  func(p *ExtractionProfile) { p.Fields[0].Type = "date" },
			wantErr: `unknown type "date"`,
		},
		{name: "no unique key", mutate: func(p *ExtractionProfile) { p.UniqueKey = nil }, wantErr: "unique_key is required"},
		{
			name:    "unique key not persisted",
			mutate:  func(p *ExtractionProfile) { p.TracksSubject = false },
			wantErr: `unique_key column "subject_id" is not persisted`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := customerProfile()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
			require.Equal(t, KindConfig, Classify(err))
		})
	}
}

func TestExtractionProfile_Target(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		target := customerProfile().Target()
		require.Equal(t, "customer_logs", target.Table)
		require.Equal(t, []string{
			"timestamp", "subject_id", "email", "mobile", "name", "identity_type",
			"identity_number", "employer_reference_id", "employer_internal_id", "salary",
		}, target.ColumnNames())
		require.Equal(t, ColumnInteger, target.Columns[len(target.Columns)-1].Type)
	})

	t.Run("raw", func(t *testing.T) {
		target := rawProfile().Target()
		require.Equal(t, []string{"timestamp", "payload", PayloadHashField}, target.ColumnNames())
		require.Equal(t, ColumnJSON, target.Columns[1].Type)

		rec := ProjectedRecord{
			Timestamp: projectTime,
			Fields:    map[string]any{RawField: map[string]any{"k": "v"}, PayloadHashField: "abc"},
		}
		require.Equal(t, []any{projectTime, map[string]any{"k": "v"}, "abc"}, target.Row(rec))
	})
}

func TestTarget_RowMissingFieldsAreNil(t *testing.T) {
	target := customerProfile().Target()
	row := target.Row(ProjectedRecord{
		Timestamp: projectTime,
		SubjectID: "cust-1",
		Fields:    map[string]any{"email": "a@b.c"},
	})

	require.Len(t, row, len(target.Columns))
	require.Equal(t, projectTime, row[0])
	require.Equal(t, "cust-1", row[1])
	require.Equal(t, "a@b.c", row[2])
	for _, v := range row[3:] {
		require.Nil(t, v)
	}
}

func TestLoadProfilesFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file with defaults", func(t *testing.T) {
		path := filepath.Join(dir, "profiles.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  - name: payroll
    description: Payroll disbursement logs
    section: payroll
    table: payroll_logs
    tracks_subject: true
    unique_key: [timestamp, subject_id]
    fields:
      - {output: employer, path: payroll.employer.id}
      - {output: amount, path: payroll.amount, type: integer}
  - name: audit_raw
    kind: raw
    table: audit_logs
    unique_key: [timestamp, payload_hash]
`), 0o600))

		profiles, err := LoadProfilesFile(path)
		require.NoError(t, err)
		require.Len(t, profiles, 2)

		payroll := profiles[0]
		require.Equal(t, ExtractStructured, payroll.Kind)
		require.Equal(t, FieldText, payroll.Fields[0].Type)
		require.Equal(t, FieldInteger, payroll.Fields[1].Type)
		require.True(t, payroll.TracksSubject)

		require.Equal(t, ExtractRaw, profiles[1].Kind)
	})

	t.Run("invalid profile", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  - name: broken
    table: broken_logs
    unique_key: [timestamp]
`), 0o600))

		_, err := LoadProfilesFile(path)
		require.ErrorContains(t, err, "at least one field")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "malformed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("profiles: [\n"), 0o600))

		_, err := LoadProfilesFile(path)
		require.ErrorContains(t, err, "parse")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadProfilesFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		require.Equal(t, KindConfig, Classify(err))
	})
}

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	p := customerProfile()
	p.EmptyPolicy = ""
	require.NoError(t, RegisterProfile(p))
	require.NoError(t, RegisterProfile(rawProfile()))

	got, ok := Get("customer")
	require.True(t, ok)
	require.Equal(t, EmptyDrop, got.EmptyPolicy)

	require.Equal(t, 2, ProfileCount())
	require.Equal(t, []string{"bukopin", "customer"}, Names())

	err := RegisterProfile(customerProfile())
	require.ErrorContains(t, err, "already registered")

	require.Panics(t, func() { Register(customerProfile()) })

	_, err = Resolve("missing")
	require.ErrorContains(t, err, `unknown profile "missing"`)
	require.ErrorContains(t, err, "bukopin")
	require.Equal(t, "CFG001", MapError(err).Code)

	resolved, err := Resolve("bukopin")
	require.NoError(t, err)
	require.Equal(t, ExtractRaw, resolved.Kind)
}
