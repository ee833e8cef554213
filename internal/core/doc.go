// Package core runs insurance policy CSV imports.
//
// An import opens the store, makes sure the aggregate table
// main_insurance_policies exists, creates a per-import table named after the
// start time (insurance_policies_YYYYMMDDHHMMSS) and streams the source file
// into both. The package has no transport dependencies; the web server and
// the CLI both drive it through [Importer.Import].
//
// # Row Flow
//
//  1. The source is decoded through [NewSourceReader]: a leading BOM is
//     dropped and invalid UTF-8 becomes U+FFFD.
//  2. The header row is normalized and matched to the policy columns.
//     Unknown columns are ignored and missing ones are stored as NULL.
//  3. Each row is inserted into the import table and, only when that
//     succeeds, into the aggregate table.
//
// # Errors
//
// Store, schema and source failures abort the import and are returned as
// [*ImportError]; test them with errors.Is against [ErrStoreOpen],
// [ErrSchema] and [ErrSourceRead]. A row that fails to insert is logged,
// counted in [Result] and skipped.
//
// [MapError] turns any of these into a [UserMessage] with a support code:
//
//   - STORE001, SCHEMA001, SRC001, FILE002: import failures
//   - DB004-DB006: connection problems
//   - FILE001-FILE004: upload and file problems
//   - UPL002-UPL005: busy, cancelled or timed out imports
//
// # Concurrency
//
// Import does no locking. Callers that accept imports concurrently take a
// slot from an [ImportLimiter] first.
package core
