package core

// convert.go maps projected field values onto pgx types.
//
// All ToPg* functions return pgtype values with Valid=false for missing or
// unconvertible input so the database stores NULL.

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgTextValue converts a projected value to pgtype.Text.
// Strings pass through; nil and non-strings are NULL.
func ToPgTextValue(v any) pgtype.Text {
	if s, ok := v.(string); ok {
		return ToPgText(s)
	}
	return pgtype.Text{Valid: false}
}

// ToPgInt8 converts a projected value to pgtype.Int8.
// Accepts the int64 produced by integer field rules; anything else is NULL.
func ToPgInt8(v any) pgtype.Int8 {
	switch t := v.(type) {
	case int64:
		return pgtype.Int8{Int64: t, Valid: true}
	case int:
		return pgtype.Int8{Int64: int64(t), Valid: true}
	case int32:
		return pgtype.Int8{Int64: int64(t), Valid: true}
	default:
		return pgtype.Int8{Valid: false}
	}
}

// ToPgTimestamptz converts a time to pgtype.Timestamptz.
// Returns invalid for the zero time.
func ToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

// ToJSONB encodes a decoded payload for a jsonb column.
// Returns nil (NULL) for a nil payload.
func ToJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// ToPgUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func ToPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString converts a pgtype.UUID to its string representation.
// Returns empty string if the UUID is invalid.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// PgTextToString returns the string value or "" for NULL.
func PgTextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
