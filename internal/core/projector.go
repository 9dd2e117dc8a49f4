package core

import "fmt"

// SkipReason explains why a document produced no record.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipDecode       SkipReason = "decode_failed"
	SkipNoTimestamp  SkipReason = "missing_timestamp"
	SkipNoSubject    SkipReason = "missing_subject"
	SkipEmptyPayload SkipReason = "empty_payload"
)

// Projection is the outcome of projecting one document.
// Exactly one of Record and Skip is set.
type Projection struct {
	Record *ProjectedRecord
	Skip   SkipReason
	Err    error // set for SkipDecode
}

// Projector maps raw documents to records according to one profile.
// It performs no I/O and is safe for concurrent use.
type Projector struct {
	profile ExtractionProfile
	extract extractFunc
}

// NewProjector creates a projector for profile.
func NewProjector(profile ExtractionProfile) (*Projector, error) {
	fn, ok := extractors[profile.Kind]
	if !ok {
		return nil, &ConfigError{Field: "profile " + profile.Name, Reason: fmt.Sprintf("unknown kind %q", profile.Kind)}
	}
	if profile.EmptyPolicy == "" {
		profile.EmptyPolicy = EmptyDrop
	}
	return &Projector{profile: profile, extract: fn}, nil
}

// Profile returns the profile the projector applies.
func (p *Projector) Profile() ExtractionProfile { return p.profile }

// Project decodes and projects doc.
func (p *Projector) Project(doc RawDocument) Projection {
	if doc.Timestamp.IsZero() {
		return Projection{Skip: SkipNoTimestamp}
	}
	if p.profile.TracksSubject && doc.SubjectID == "" {
		return Projection{Skip: SkipNoSubject}
	}

	payload, err := DecodePayload(doc)
	if err != nil {
		return Projection{Skip: SkipDecode, Err: err}
	}

	fields, ok := p.extract(p.profile, payload)
	if !ok {
		return Projection{Skip: SkipEmptyPayload}
	}

	return Projection{Record: &ProjectedRecord{
		Timestamp: doc.Timestamp,
		SubjectID: doc.SubjectID,
		Fields:    fields,
	}}
}
