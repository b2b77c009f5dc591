// Package relaypager provides Relay-style cursor pagination for GORM queries.
//
// Overview
//
// A page request travels through two steps:
//   - ListOptions / ConnectionArgs are normalized into ListQueryParams: page
//     size clamped to a ceiling, non-negative skip, a direction and a decoded
//     cursor row.
//   - Engine.Paginate layers keyset predicates, ordering and a limit onto the
//     caller's query and returns the page, a PageInfo and the total count.
//
// Key concepts
//   - Orderings: multi-column ordering with explicit directions. The last
//     column must be unique.
//   - CursorRow: sort-key values of a row. Encoded as an opaque base64 token.
//   - Getters: map model fields to values for building cursors.
//
// The keyset predicate for orderings k1..kN anchored at row c is
//
//	(k1 op1 c1) OR (k1 = c1 AND k2 op2 c2) OR ... OR (k1 = c1 AND ... AND kN opN cN)
//
// with ">" for ASC and "<" for DESC. Backward pages are fetched with every
// direction flipped and reversed before they are returned.
package relaypager
