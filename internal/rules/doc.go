// Package rules implements batch cross-reference validation of import rows
// against a persistent store.
//
// Each rule is configured with one or more key-groups: named sets of row
// fields whose combined values identify a stored record. A rule issues exactly
// one store query per key-group, no matter how many rows are being validated:
// every row contributes one OR-branch to the query, and the returned records
// are correlated back to their originating rows through the same composite
// key function (see the rowkey package). This keeps the number of store round
// trips proportional to the number of key-groups, not the number of rows.
//
// Five checks are provided:
//
//   - Exists:               the row's key must match a stored record
//   - Unique:               the row's key must NOT match a stored record
//   - UniqueIgnoreFieldNull: Unique whose ignore conditions also match NULLs
//   - Equal:                matched records must agree on configured fields
//   - EmptyOrEqual:         as Equal, but either side being empty passes
//   - ExistsAndUnique:      the key must resolve to exactly one record, with
//     optional disambiguator fields applied when it matches several
//
// Rows with an empty value in any key-group field are exempt from that
// key-group's check: a partial key cannot be meaningfully looked up.
//
// The store itself is abstract. Rules describe what they need as a BatchQuery
// and hand it to a Query implementation; internal/postgres provides one over
// pgx.
package rules
