package profiles

import "github.com/season179/elastic-tools/internal/core"

func init() {
	registerCustomer()
}

// registerCustomer projects customer onboarding logs. Payloads look like:
//
//	{"customer": {
//	  "email": "...", "mobileNumber": "...", "fullName": "...",
//	  "identity": {"type": "KTP", "number": "..."},
//	  "employments": [{"employerReferenceId": "...", "employerId": "...", "salary": 8500000}]
//	}}
//
// Only the first employment is kept.
func registerCustomer() {
	core.Register(core.ExtractionProfile{
		Name:          "customer",
		Description:   "Customer onboarding events, one row per subject and timestamp",
		Kind:          core.ExtractStructured,
		Section:       "customer",
		Table:         "customer_logs",
		TracksSubject: true,
		UniqueKey:     []string{core.ColumnNameTimestamp, core.ColumnNameSubject},
		EmptyPolicy:   core.EmptyDrop,
		Fields: []core.FieldRule{
			{Output: "email", Path: "customer.email", Type: core.FieldText},
			{Output: "mobile", Path: "customer.mobileNumber", Type: core.FieldText},
			{Output: "name", Path: "customer.fullName", Type: core.FieldText},
			{Output: "identity_type", Path: "customer.identity.type", Type: core.FieldText},
			{Output: "identity_number", Path: "customer.identity.number", Type: core.FieldText},
			{Output: "employer_reference_id", Path: "customer.employments.employerReferenceId", Type: core.FieldText},
			{Output: "employer_internal_id", Path: "customer.employments.employerId", Type: core.FieldText},
			{Output: "salary", Path: "customer.employments.salary", Type: core.FieldInteger},
		},
	})
}
