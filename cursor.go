package relaypager

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

var _encoder = base64.RawURLEncoding

// _timeValue tags cursor values that decode back into time.Time.
const _timeValue = "time"

// CursorElement is a single (column, value) pair of a CursorRow. It is encoded
// as a JSON object:
//
//   - "c" - bare column name, see OrderBy.Key.
//   - "v" - column value of the row the cursor points at.
//   - "t" - "time" when the value is a time.Time, omitted otherwise.
//
// Only tagged values decode into time.Time, so text columns holding RFC 3339
// strings keep comparing as text.
type CursorElement struct {
	Column string
	Value  any
}

type cursorElementJSON struct {
	Column string `json:"c"`
	Value  any    `json:"v"`
	Type   string `json:"t,omitempty"`
}

func (e CursorElement) MarshalJSON() ([]byte, error) {
	raw := cursorElementJSON{Column: e.Column, Value: e.Value}
	switch v := e.Value.(type) {
	case time.Time:
		raw.Type = _timeValue
	case *time.Time:
		if v != nil {
			raw.Type = _timeValue
		}
	}

	return json.Marshal(raw)
}

func (e *CursorElement) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var raw cursorElementJSON
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch raw.Type {
	case "":
	case _timeValue:
		text, ok := raw.Value.(string)
		if !ok {
			return fmt.Errorf("time value of column '%s' is not a string", raw.Column)
		}

		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return fmt.Errorf("time value of column '%s': %w", raw.Column, err)
		}
		raw.Value = t
	default:
		return fmt.Errorf("unknown value type '%s' of column '%s'", raw.Type, raw.Column)
	}

	*e = CursorElement{Column: raw.Column, Value: raw.Value}

	return nil
}

// CursorRow holds the sort-key values of one result row, in sort order.
// It is the decoded form of a cursor token and the anchor of keyset predicates.
//
// IMPORTANT:
// The row MUST contain the unique (terminal) sort key, otherwise the position
// it denotes is ambiguous.
type CursorRow []CursorElement

// Get returns the value stored for column.
func (r CursorRow) Get(column string) (any, bool) {
	for _, element := range r {
		if element.Column == column {
			return element.Value, true
		}
	}

	return nil, false
}

// IsEmpty reports whether the row carries no values.
func (r CursorRow) IsEmpty() bool {
	return len(r) == 0
}

// String encodes the row into an opaque cursor token. Implements fmt.Stringer.
//
// String panics when a value cannot be marshalled to JSON. Use EncodeCursorRow
// for rows built from arbitrary getter values.
func (r CursorRow) String() string {
	token, err := EncodeCursorRow(r)
	if err != nil {
		panic(fmt.Errorf("cannot encode cursor row: %w", err))
	}

	return token
}

// ToSQL renders the "strictly after this row" predicate for orderings as an SQL
// condition with "?" placeholders.
//
// Usage:
//
//	cond, args, err := row.ToSQL(orderings, "t")
//	query := fmt.Sprintf("SELECT * FROM table t WHERE %s ORDER BY %s", cond, orderings.ToSQL("t"))
func (r CursorRow) ToSQL(orderings Orderings, alias string) (string, []driver.Value, error) {
	predicate, err := newKeysetPredicate(orderings, r, alias)
	if err != nil {
		return "", nil, err
	}

	sqlClause, values := predicate.SQL()

	return sqlClause, values, nil
}

// validate checks that the row is keyed exactly by the columns of orderings.
func (r CursorRow) validate(orderings Orderings) error {
	if r.IsEmpty() {
		return nil
	}

	if len(r) != len(orderings) {
		return fmt.Errorf("%w: cursor column number mismatch", ErrMalformedCursor)
	}

	for i := range r {
		if r[i].Column != orderings[i].Key() {
			return fmt.Errorf("%w: unexpected cursor column '%s'", ErrMalformedCursor, r[i].Column)
		}
	}

	return nil
}

// EncodeCursorRow encodes the row into a base64 (URL alphabet, unpadded) JSON
// token. An empty row encodes to an empty string.
func EncodeCursorRow(row CursorRow) (string, error) {
	if row.IsEmpty() {
		return "", nil
	}

	jTok, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("cannot marshal cursor value: %w", err)
	}

	var buf bytes.Buffer
	if err = json.Compact(&buf, jTok); err != nil {
		return "", fmt.Errorf("cannot compact cursor value: %w", err)
	}

	return _encoder.EncodeToString(buf.Bytes()), nil
}

// DecodeCursorRow parses a token produced by EncodeCursorRow. An empty token
// decodes to a nil row. Every failure wraps ErrMalformedCursor.
func DecodeCursorRow(token string) (CursorRow, error) {
	if len(token) == 0 {
		return nil, nil
	}

	jsonData, err := _encoder.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64 encoded cursor: %v", ErrMalformedCursor, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var row CursorRow
	if err = dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal json encoded cursor: %v", ErrMalformedCursor, err)
	}

	if row.IsEmpty() {
		return nil, fmt.Errorf("%w: cursor carries no columns", ErrMalformedCursor)
	}

	seen := make(map[string]struct{}, len(row))
	for _, element := range row {
		if element.Column == "" {
			return nil, fmt.Errorf("%w: cursor column name is empty", ErrMalformedCursor)
		}
		if _, ok := seen[element.Column]; ok {
			return nil, fmt.Errorf("%w: duplicate cursor column '%s'", ErrMalformedCursor, element.Column)
		}
		seen[element.Column] = struct{}{}
	}

	return row, nil
}

// Getters - map of getters for the model. Register the columns the pagination
// is ordered by, keyed by OrderBy.Key. Return time.Time for timestamp columns:
// only those values are restored as times when a cursor is decoded.
// Example:
//
//	relaypager.Getters[models.Person]{
//		"created_at": func(p models.Person) any { return p.CreatedAt },
//		"id":         func(p models.Person) any { return p.ID },
//	}
type Getters[T any] map[string]func(T) any

// rowOf reads the sort-key values of item in orderings order.
func (g Getters[T]) rowOf(orderings Orderings, item T) (CursorRow, error) {
	ret := make(CursorRow, 0, len(orderings))
	for _, orderBy := range orderings {
		getter, ok := g[orderBy.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: cannot find getter for column '%s' met in ordering", ErrMisconfiguredQuery, orderBy.Key())
		}

		ret = append(ret, CursorElement{
			Column: orderBy.Key(),
			Value:  getter(item),
		})
	}

	return ret, nil
}

var _ fmt.Stringer = CursorRow(nil)
