package core

// decode.go turns the embedded payload of a log document into a JSON tree.
//
// The upstream producer sometimes serializes the payload twice, so the
// stored value is a quoted string with every inner quote escaped:
//
//	"{\"customer\":{\"email\":\"a@b.c\"}}"
//
// Decoding is a direct parse followed by exactly one recovery pass that
// undoes that pattern. Nothing beyond it is attempted.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	errEmptyPayload = errors.New("empty payload")
	errNotContainer = errors.New("payload is not an object or array")
)

// DecodePayload decodes doc.RawPayload. Structured payloads are returned
// unchanged. Any failure is reported as a *DecodeFailure; it never panics.
func DecodePayload(doc RawDocument) (payload DecodedPayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = &DecodeFailure{SubjectID: doc.SubjectID, Timestamp: doc.Timestamp, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var text string
	switch v := doc.RawPayload.(type) {
	case map[string]any, []any:
		return v, nil
	case string:
		text = v
	case []byte:
		text = string(v)
	case json.RawMessage:
		text = string(v)
	case nil:
		return nil, &DecodeFailure{SubjectID: doc.SubjectID, Timestamp: doc.Timestamp, Err: errEmptyPayload}
	default:
		return nil, &DecodeFailure{SubjectID: doc.SubjectID, Timestamp: doc.Timestamp,
			Err: fmt.Errorf("unsupported payload type %T", doc.RawPayload)}
	}

	v, err := parseContainer(text)
	if err == nil {
		return v, nil
	}

	if v, rerr := parseContainer(unwrapDoubleEncoded(text)); rerr == nil {
		return v, nil
	}

	return nil, &DecodeFailure{SubjectID: doc.SubjectID, Timestamp: doc.Timestamp, Err: err}
}

// unwrapDoubleEncoded undoes one layer of quote escaping and strips one
// pair of wrapping quotes.
func unwrapDoubleEncoded(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// parseContainer parses s and requires the result to be an object or array.
// Numbers are kept as json.Number so large identifiers survive intact.
func parseContainer(s string) (DecodedPayload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	// Anything after the first value, including a stray closing bracket,
	// makes the whole input invalid.
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid json: trailing data")
	}

	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, errNotContainer
	}
}
