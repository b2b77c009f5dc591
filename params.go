package relaypager

import "fmt"

// PageDirection is the traversal direction requested by the client.
type PageDirection string

const (
	PageForward  PageDirection = "forward"
	PageBackward PageDirection = "backward"
)

// ListQueryParams is the canonical, internally consistent form of a page
// request. Build it with ListOptions.Normalize or ConnectionArgs.Normalize.
type ListQueryParams struct {
	// Take effective page size, always within [1, maxTake].
	Take int
	// Skip number of rows to skip after the cursor, always >= 0.
	Skip int
	// Direction traversal direction.
	Direction PageDirection
	// Cursor raw cursor token as received from the client.
	Cursor string
	// DecodedCursorRow decoded form of Cursor. Nil when no cursor was given.
	DecodedCursorRow CursorRow
	// Search free-text search string, empty when unset.
	Search string
}

// IsBackward reports whether the page is requested backward.
func (p ListQueryParams) IsBackward() bool {
	return p.Direction == PageBackward
}

// window is the number of rows past the anchor that one page covers once
// skip is applied: the skipped rows and the page itself.
func (p ListQueryParams) window() int {
	return p.Take + p.Skip
}

func defaultListQueryParams(maxTake int) ListQueryParams {
	return ListQueryParams{
		Take:      maxTake,
		Skip:      0,
		Direction: PageForward,
		Search:    "",
	}
}

// ListOptions is the flat page request. It is intended for API payloads and
// can be inlined:
//
//	type MyFilter struct {
//	    Paging relaypager.ListOptions `json:",inline"`
//	}
type ListOptions struct {
	// Take maximum number of records to return. Unset, non-positive and
	// oversized values fall back to the ceiling.
	Take int `json:"take,omitempty"`
	// Skip number of records to skip after the cursor.
	Skip int `json:"skip,omitempty"`
	// After cursor to page forward from.
	After string `json:"after,omitempty"`
	// Before cursor to page backward from.
	Before string `json:"before,omitempty"`
	// Search free-text search string.
	Search string `json:"search,omitempty"`
}

// Normalize converts ListOptions into ListQueryParams using MaxTake as the
// page size ceiling. A nil receiver yields the defaults.
func (o *ListOptions) Normalize() (ListQueryParams, error) {
	return o.NormalizeMax(MaxTake)
}

// NormalizeMax is Normalize with a caller-chosen page size ceiling.
func (o *ListOptions) NormalizeMax(maxTake int) (ListQueryParams, error) {
	if maxTake <= 0 {
		maxTake = MaxTake
	}

	if o == nil {
		return defaultListQueryParams(maxTake), nil
	}

	if o.After != "" && o.Before != "" {
		return ListQueryParams{}, fmt.Errorf("%w: cannot page forward and backward simultaneously", ErrInvalidPagingArguments)
	}

	direction := PageForward
	if o.Before != "" {
		direction = PageBackward
	}

	return newListQueryParams(o.Take, maxTake, o.Skip, direction, o.After+o.Before, o.Search)
}

// ConnectionArgs is the Relay-style page request.
type ConnectionArgs struct {
	// First page size when paging forward.
	First *int `json:"first,omitempty"`
	// After cursor to page forward from.
	After string `json:"after,omitempty"`
	// Last page size when paging backward. Requires Before.
	Last *int `json:"last,omitempty"`
	// Before cursor to page backward from.
	Before string `json:"before,omitempty"`
	// Skip number of records to skip after the cursor.
	Skip int `json:"skip,omitempty"`
	// Search free-text search string.
	Search string `json:"search,omitempty"`
}

// Normalize converts ConnectionArgs into ListQueryParams using MaxTake as the
// page size ceiling. A nil receiver yields the defaults.
func (a *ConnectionArgs) Normalize() (ListQueryParams, error) {
	return a.NormalizeMax(MaxTake)
}

// NormalizeMax is Normalize with a caller-chosen page size ceiling.
//
// The page is backward iff Last or Before is set. Last without Before, First
// together with Last or Before, and After together with Before are rejected
// with ErrInvalidPagingArguments.
func (a *ConnectionArgs) NormalizeMax(maxTake int) (ListQueryParams, error) {
	if maxTake <= 0 {
		maxTake = MaxTake
	}

	if a == nil {
		return defaultListQueryParams(maxTake), nil
	}

	switch {
	case a.After != "" && a.Before != "":
		return ListQueryParams{}, fmt.Errorf("%w: cannot page forward and backward simultaneously", ErrInvalidPagingArguments)
	case a.First != nil && a.Last != nil:
		return ListQueryParams{}, fmt.Errorf("%w: cannot combine first and last", ErrInvalidPagingArguments)
	case a.First != nil && a.Before != "":
		return ListQueryParams{}, fmt.Errorf("%w: first pages forward and cannot take a before cursor", ErrInvalidPagingArguments)
	case a.Last != nil && a.Before == "":
		return ListQueryParams{}, fmt.Errorf("%w: last requires a before cursor", ErrInvalidPagingArguments)
	}

	direction := PageForward
	take := a.First
	if a.Last != nil || a.Before != "" {
		direction = PageBackward
		take = a.Last
	}

	var rawTake int
	if take != nil {
		rawTake = *take
	}

	return newListQueryParams(rawTake, maxTake, a.Skip, direction, a.After+a.Before, a.Search)
}

func newListQueryParams(
	take int,
	maxTake int,
	skip int,
	direction PageDirection,
	cursor string,
	search string,
) (ListQueryParams, error) {
	row, err := DecodeCursorRow(cursor)
	if err != nil {
		return ListQueryParams{}, err
	}

	return ListQueryParams{
		Take:             NormalizeTakeMax(take, maxTake),
		Skip:             NormalizeSkip(skip),
		Direction:        direction,
		Cursor:           cursor,
		DecodedCursorRow: row,
		Search:           search,
	}, nil
}
