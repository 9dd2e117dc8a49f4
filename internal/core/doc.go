// Package core provides the extract-transform-load logic for log documents.
//
// This package contains all domain logic independent of the search backend
// client, the database driver and any transport. It can be driven by the
// CLI, the HTTP server or tests without modification.
//
// # Architecture
//
// A run moves through four stages:
//
//   - [CursorIterator]: wraps a [DocumentSource] scroll as an iter.Seq2 of
//     pages and releases the cursor exactly once on every exit path.
//   - [DecodePayload]: parses the embedded payload, undoing one layer of
//     double encoding when the direct parse fails.
//   - [Projector]: applies an [ExtractionProfile] to turn a document into a
//     [ProjectedRecord], or drops it.
//   - [BatchLoader]: buffers records and submits fixed-size batches to a
//     [RecordSink] with duplicate-skipping inserts.
//
// [Pipeline] wires them together: pages are fetched sequentially, documents
// within a page are projected in parallel, and results are merged back in
// page order before reaching the single loader.
//
// # Profile Registry
//
// Profiles are registered at init time using [Register]:
//
//	core.Register(core.ExtractionProfile{
//	    Name:      "customer",
//	    Kind:      core.ExtractStructured,
//	    Section:   "customer",
//	    Table:     "customer_logs",
//	    UniqueKey: []string{"timestamp", "subject_id"},
//	    Fields: []core.FieldRule{
//	        {Output: "email", Path: "customer.email", Type: core.FieldText},
//	    },
//	})
//
// Additional profiles can be loaded from YAML with [LoadProfilesFile].
//
// # Error Handling
//
// Failures are typed by how the run reacts to them: [ConfigError] and
// [FetchError] are fatal, [DecodeFailure] drops one document and
// [LoadError] fails one batch and degrades the run. [MapError] turns any of
// them into a [UserMessage] with a support code.
package core
