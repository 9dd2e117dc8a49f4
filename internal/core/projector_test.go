package core

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var projectTime = time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC)

func mustProjector(t *testing.T, p ExtractionProfile) *Projector {
	t.Helper()
	pr, err := NewProjector(p)
	require.NoError(t, err)
	return pr
}

func TestProject_CustomerFields(t *testing.T) {
	payload := `{"customer":{
		"email":"budi@example.com",
		"mobileNumber":"08123456789",
		"fullName":"Budi Santoso",
		"identity":{"type":"KTP","number":"3171234567890001"},
		"employments":[
			{"employerReferenceId":"ER-1","employerId":42,"salary":"8,500,000"},
			{"employerReferenceId":"ER-2","employerId":7,"salary":1}
		]
	}}`

	res := mustProjector(t, customerProfile()).Project(RawDocument{
		Timestamp:  projectTime,
		SubjectID:  "cust-1",
		RawPayload: payload,
	})

	require.Equal(t, SkipNone, res.Skip)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)
	require.Equal(t, projectTime, res.Record.Timestamp)
	require.Equal(t, "cust-1", res.Record.SubjectID)
	require.Equal(t, map[string]any{
		"email":                 "budi@example.com",
		"mobile":                "08123456789",
		"name":                  "Budi Santoso",
		"identity_type":         "KTP",
		"identity_number":       "3171234567890001",
		"employer_reference_id": "ER-1",
		"employer_internal_id":  "42",
		"salary":                int64(8500000),
	}, res.Record.Fields)
}

func TestProject_DoubleEncodedCustomer(t *testing.T) {
	inner := `{"customer":{"email":"a@b.c","employments":[{"salary":5000000}]}}`

	res := mustProjector(t, customerProfile()).Project(RawDocument{
		Timestamp:  projectTime,
		SubjectID:  "cust-2",
		RawPayload: strconv.Quote(inner),
	})

	require.NotNil(t, res.Record)
	require.Equal(t, "a@b.c", res.Record.Fields["email"])
	require.Equal(t, int64(5000000), res.Record.Fields["salary"])
	require.Nil(t, res.Record.Fields["name"])
}

func TestProject_SalaryConversion(t *testing.T) {
	tests := []struct {
		name   string
		salary string
		want   any
	}{
		{name: "integer", salary: `8500000`, want: int64(8500000)},
		{name: "numeric string with commas", salary: `"1,250,000"`, want: int64(1250000)},
		{name: "fraction rounds", salary: `8500000.6`, want: int64(8500001)},
		{name: "non numeric becomes null", salary: `"n/a"`, want: nil},
		{name: "out of range becomes null", salary: `1e30`, want: nil},
		{name: "empty string becomes null", salary: `""`, want: nil},
	}

	pr := mustProjector(t, customerProfile())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := pr.Project(RawDocument{
				Timestamp:  projectTime,
				SubjectID:  "cust-3",
				RawPayload: `{"customer":{"email":"x@y.z","employments":{"salary":` + tt.salary + `}}}`,
			})
			require.NotNil(t, res.Record)
			require.Equal(t, tt.want, res.Record.Fields["salary"])
		})
	}
}

func TestProject_EmptyPolicy(t *testing.T) {
	doc := RawDocument{Timestamp: projectTime, SubjectID: "cust-4", RawPayload: `{"customer":{"unrelated":true}}`}

	t.Run("drop by default", func(t *testing.T) {
		res := mustProjector(t, customerProfile()).Project(doc)
		require.Nil(t, res.Record)
		require.Equal(t, SkipEmptyPayload, res.Skip)
	})

	t.Run("keep when section present", func(t *testing.T) {
		res := mustProjector(t, customerProfile().WithEmptyPolicy(EmptyKeep)).Project(doc)
		require.NotNil(t, res.Record)
		require.Len(t, res.Record.Fields, len(customerProfile().Fields))
		for name, v := range res.Record.Fields {
			require.Nil(t, v, "field %s", name)
		}
	})

	t.Run("keep still drops a foreign payload", func(t *testing.T) {
		other := doc
		other.RawPayload = `{"loan":{"amount":1}}`
		res := mustProjector(t, customerProfile().WithEmptyPolicy(EmptyKeep)).Project(other)
		require.Nil(t, res.Record)
		require.Equal(t, SkipEmptyPayload, res.Skip)
	})
}

func TestProject_Envelope(t *testing.T) {
	pr := mustProjector(t, customerProfile())

	res := pr.Project(RawDocument{SubjectID: "cust-5", RawPayload: `{"customer":{"email":"a@b.c"}}`})
	require.Equal(t, SkipNoTimestamp, res.Skip)

	res = pr.Project(RawDocument{Timestamp: projectTime, RawPayload: `{"customer":{"email":"a@b.c"}}`})
	require.Equal(t, SkipNoSubject, res.Skip)

	res = pr.Project(RawDocument{Timestamp: projectTime, SubjectID: "cust-5", RawPayload: `not json`})
	require.Equal(t, SkipDecode, res.Skip)
	var df *DecodeFailure
	require.True(t, errors.As(res.Err, &df))
	require.Equal(t, "cust-5", df.SubjectID)
}

func TestProject_Raw(t *testing.T) {
	pr := mustProjector(t, rawProfile())

	a := pr.Project(RawDocument{Timestamp: projectTime, RawPayload: `{"b":1,"a":{"y":2,"x":[1,2]}}`})
	b := pr.Project(RawDocument{Timestamp: projectTime, RawPayload: `{"a":{"x":[1,2],"y":2},"b":1}`})
	c := pr.Project(RawDocument{Timestamp: projectTime, RawPayload: `{"a":{"x":[1,2],"y":3},"b":1}`})

	require.NotNil(t, a.Record, "raw profile does not need a subject")
	require.NotNil(t, b.Record)
	require.NotNil(t, c.Record)

	hashA := a.Record.Fields[PayloadHashField].(string)
	require.Len(t, hashA, 64)
	require.Equal(t, hashA, b.Record.Fields[PayloadHashField], "key order must not change the hash")
	require.NotEqual(t, hashA, c.Record.Fields[PayloadHashField])

	raw, ok := a.Record.Fields[RawField].(map[string]any)
	require.True(t, ok)
	require.Contains(t, raw, "a")
	require.Contains(t, raw, "b")
}

func TestNewProjector_UnknownKind(t *testing.T) {
	p := customerProfile()
	p.Kind = "xml"
	_, err := NewProjector(p)
	require.Error(t, err)
	require.Equal(t, KindConfig, Classify(err))
}

func TestLookupPath(t *testing.T) {
	payload := map[string]any{
		"a": []any{
			map[string]any{"b": []any{[]any{"deep"}, "second"}},
			map[string]any{"b": "ignored"},
		},
		"empty": []any{},
	}

	require.Equal(t, "deep", lookupPath(payload, "a.b"))
	require.Nil(t, lookupPath(payload, "a.c"))
	require.Nil(t, lookupPath(payload, "empty.x"))
	require.Nil(t, lookupPath(payload, "missing"))
	require.Nil(t, lookupPath("scalar", "a"))
}
