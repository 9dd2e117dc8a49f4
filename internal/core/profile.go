package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExtractionKind selects the extraction strategy of a profile.
type ExtractionKind string

const (
	// ExtractStructured projects named leaf fields out of the payload.
	ExtractStructured ExtractionKind = "structured"
	// ExtractRaw stores the whole decoded payload verbatim.
	ExtractRaw ExtractionKind = "raw"
)

// FieldType is the output type of a projected field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldInteger FieldType = "integer" // nullable
)

// EmptyPolicy decides what happens to a structured record with no populated fields.
type EmptyPolicy string

const (
	// EmptyDrop discards the record. This is the default.
	EmptyDrop EmptyPolicy = "drop"
	// EmptyKeep keeps an all-null record as long as the profile section is present.
	EmptyKeep EmptyPolicy = "keep"
)

// Field names produced by the raw extractor.
const (
	RawField         = "raw"
	PayloadHashField = "payload_hash"
)

// FieldRule maps one output field to a dotted path into the decoded payload.
// A list met while walking the path contributes its first element.
type FieldRule struct {
	Output string    `yaml:"output" json:"output"`
	Path   string    `yaml:"path" json:"path"`
	Type   FieldType `yaml:"type" json:"type"`
}

// ExtractionProfile describes how documents of one log stream are projected and stored.
type ExtractionProfile struct {
	Name          string         `yaml:"name" json:"name"`
	Description   string         `yaml:"description" json:"description,omitempty"`
	Kind          ExtractionKind `yaml:"kind" json:"kind"`
	Section       string         `yaml:"section" json:"section,omitempty"` // top-level key identifying the payload shape
	Fields        []FieldRule    `yaml:"fields" json:"fields,omitempty"`
	Table         string         `yaml:"table" json:"table"`
	UniqueKey     []string       `yaml:"unique_key" json:"unique_key,omitempty"`
	TracksSubject bool           `yaml:"tracks_subject" json:"tracks_subject,omitempty"`
	EmptyPolicy   EmptyPolicy    `yaml:"empty_policy" json:"empty_policy,omitempty"`
}

// WithEmptyPolicy returns a copy of p using policy.
func (p ExtractionProfile) WithEmptyPolicy(policy EmptyPolicy) ExtractionProfile {
	p.EmptyPolicy = policy
	return p
}

// Validate checks that the profile is internally consistent.
func (p ExtractionProfile) Validate() error {
	var errs []string

	if p.Name == "" {
		errs = append(errs, "name is required")
	}
	if p.Table == "" {
		errs = append(errs, "table is required")
	}
	if _, ok := extractors[p.Kind]; !ok {
		errs = append(errs, fmt.Sprintf("unknown kind %q", p.Kind))
	}
	switch p.EmptyPolicy {
	case "", EmptyDrop, EmptyKeep:
	default:
		errs = append(errs, fmt.Sprintf("unknown empty_policy %q", p.EmptyPolicy))
	}

	if p.Kind == ExtractStructured {
		if len(p.Fields) == 0 {
			errs = append(errs, "structured profiles need at least one field")
		}
		seen := make(map[string]bool)
		for _, f := range p.Fields {
			switch {
			case f.Output == "" || f.Path == "":
				errs = append(errs, "fields need both output and path")
			case f.Output == ColumnNameTimestamp || f.Output == ColumnNameSubject:
				errs = append(errs, fmt.Sprintf("field %q is reserved", f.Output))
			case seen[f.Output]:
				errs = append(errs, fmt.Sprintf("field %q is defined twice", f.Output))
			}
			seen[f.Output] = true
			if f.Type != FieldText && f.Type != FieldInteger {
				errs = append(errs, fmt.Sprintf("field %q has unknown type %q", f.Output, f.Type))
			}
		}
	}

	if len(p.UniqueKey) == 0 {
		errs = append(errs, "unique_key is required")
	} else if p.Table != "" {
		cols := make(map[string]bool)
		for _, c := range p.Target().Columns {
			cols[c.Name] = true
		}
		for _, k := range p.UniqueKey {
			if !cols[k] {
				errs = append(errs, fmt.Sprintf("unique_key column %q is not persisted", k))
			}
		}
	}

	if len(errs) > 0 {
		name := p.Name
		if name == "" {
			name = "<unnamed>"
		}
		return &ConfigError{Field: "profile " + name, Reason: strings.Join(errs, "; ")}
	}
	return nil
}

// Target derives the persisted shape of the profile.
func (p ExtractionProfile) Target() Target {
	cols := []Column{{Name: ColumnNameTimestamp, Type: ColumnTimestamp}}
	if p.TracksSubject {
		cols = append(cols, Column{Name: ColumnNameSubject, Type: ColumnText})
	}

	switch p.Kind {
	case ExtractRaw:
		cols = append(cols,
			Column{Name: "payload", Type: ColumnJSON, Source: RawField},
			Column{Name: PayloadHashField, Type: ColumnText},
		)
	default:
		for _, f := range p.Fields {
			typ := ColumnText
			if f.Type == FieldInteger {
				typ = ColumnInteger
			}
			cols = append(cols, Column{Name: f.Output, Type: typ})
		}
	}

	return Target{Table: p.Table, Columns: cols, UniqueKey: p.UniqueKey}
}

// profileFile is the on-disk layout read by LoadProfilesFile.
type profileFile struct {
	Profiles []ExtractionProfile `yaml:"profiles" json:"profiles"`
}

// LoadProfilesFile reads additional profiles from a YAML file.
//
//	profiles:
//	  - name: payroll
//	    kind: structured
//	    section: payroll
//	    table: payroll_logs
//	    tracks_subject: true
//	    unique_key: [timestamp, subject_id]
//	    fields:
//	      - {output: employer, path: payroll.employer.id, type: text}
func LoadProfilesFile(path string) ([]ExtractionProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "profiles file", Reason: err.Error()}
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Field: "profiles file", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	for i := range f.Profiles {
		if f.Profiles[i].Kind == "" {
			f.Profiles[i].Kind = ExtractStructured
		}
		for j := range f.Profiles[i].Fields {
			if f.Profiles[i].Fields[j].Type == "" {
				f.Profiles[i].Fields[j].Type = FieldText
			}
		}
		if err := f.Profiles[i].Validate(); err != nil {
			return nil, err
		}
	}

	return f.Profiles, nil
}
