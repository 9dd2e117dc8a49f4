package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// extractFunc produces the fields of a record from a decoded payload.
// It returns false when the payload carries nothing worth persisting.
type extractFunc func(p ExtractionProfile, payload DecodedPayload) (map[string]any, bool)

// extractors holds one strategy per ExtractionKind. Adding a kind means
// adding an entry here.
var extractors = map[ExtractionKind]extractFunc{
	ExtractStructured: extractStructured,
	ExtractRaw:        extractRaw,
}

func extractStructured(p ExtractionProfile, payload DecodedPayload) (map[string]any, bool) {
	fields := make(map[string]any, len(p.Fields))
	populated := 0

	for _, rule := range p.Fields {
		v := convertField(lookupPath(payload, rule.Path), rule.Type)
		fields[rule.Output] = v
		if v != nil {
			populated++
		}
	}

	if populated > 0 {
		return fields, true
	}
	if p.EmptyPolicy == EmptyKeep && hasSection(payload, p.Section) {
		return fields, true
	}
	return nil, false
}

func extractRaw(_ ExtractionProfile, payload DecodedPayload) (map[string]any, bool) {
	// encoding/json sorts map keys, so equal payloads hash equally.
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	sum := sha256.Sum256(b)
	return map[string]any{
		RawField:         payload,
		PayloadHashField: hex.EncodeToString(sum[:]),
	}, true
}

// lookupPath walks a dotted path. Lists contribute their first element.
func lookupPath(v any, path string) any {
	for _, seg := range strings.Split(path, ".") {
		v = firstElement(v)
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[seg]
	}
	return firstElement(v)
}

func firstElement(v any) any {
	for {
		list, ok := v.([]any)
		if !ok {
			return v
		}
		if len(list) == 0 {
			return nil
		}
		v = list[0]
	}
}

// hasSection reports whether the payload carries the profile's top-level section.
// An empty section matches any payload.
func hasSection(payload DecodedPayload, section string) bool {
	if section == "" {
		return true
	}
	m, ok := firstElement(payload).(map[string]any)
	if !ok {
		return false
	}
	v, ok := m[section]
	return ok && v != nil
}

// convertField coerces a leaf value into the rule's type. Missing,
// empty or unconvertible values become nil.
func convertField(v any, typ FieldType) any {
	if v == nil {
		return nil
	}
	if typ == FieldInteger {
		if i, ok := toInt64(v); ok {
			return i
		}
		return nil
	}
	if s, ok := toText(v); ok {
		return s
	}
	return nil
}

func toText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return "", false
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		return floatToInt64(t.String())
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		return floatToInt64(s)
	case float64:
		return roundToInt64(t)
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

func floatToInt64(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return roundToInt64(f)
}

func roundToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(math.Round(f)), true
}
