// Package core provides the import engine: reading rows out of a tabular
// source, formatting and validating each row, detecting duplicates inside the
// batch, running batched cross-reference rules against the store, and handing
// the surviving rows to a persistence callback.
//
// The engine is assembled by explicit composition. A Task owns a
// FieldFormatter, a DuplicateDetector, a list of rule validators and the
// persistence collaborators, all injected at construction; nothing is
// resolved from ambient state. One Task instance serves one import invocation
// at a time and is not safe for concurrent Handle calls.
//
// # Pipeline
//
// Handle runs a fixed sequence:
//
//  1. BeforeImport hook (a returned error aborts the import).
//  2. Header resolution via RowSource, strict or tolerant.
//  3. Per-row loop: max-row guard, formatting (dictionary substitution, date
//     rendering, declarative rules, defaults), intra-batch duplicate
//     detection, optional progress callback.
//  4. Batched cross-reference rules over every row accepted so far; each
//     store query covers the whole batch, never a single row.
//  5. Persistence of the surviving rows, optionally inside a transaction.
//  6. AfterImport hook with the final partition.
//
// Per-row problems are values: the formatter, the duplicate detector and the
// rules produce error records collected per line, and a row with any error is
// excluded from persistence but never aborts the batch (unless fail-fast is
// requested). Only schema mismatch, the max-row guard, reader failures, store
// failures and persistence failures are fatal.
package core
