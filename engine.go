package relaypager

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// PageInfo describes the position of a page within the dataset.
type PageInfo struct {
	// HasNext a page exists after this one in presentation order.
	HasNext bool `json:"hasNext"`
	// HasPrevious a page exists before this one in presentation order.
	HasPrevious bool `json:"hasPrevious"`
	// StartCursor token of the first row of the page. Nil for an empty page.
	StartCursor *string `json:"startCursor"`
	// EndCursor token of the last row of the page. Nil for an empty page.
	EndCursor *string `json:"endCursor"`
}

// Page is a generic paginated result container.
type Page[T any] struct {
	// Items result elements in presentation order.
	Items []T `json:"items"`
	// PageInfo pagination metadata.
	PageInfo PageInfo `json:"pageInfo"`
	// TotalCount number of rows matching the base query, regardless of the
	// cursor and skip.
	TotalCount int64 `json:"totalCount"`
}

// Engine paginates gorm queries with keyset cursors.
//
// The base query handed to Paginate carries the caller's filters and joins and
// MUST NOT carry an ORDER BY: the engine owns the ordering and appends it
// itself. The engine never mutates the base query.
type Engine[T any] struct {
	sort       Orderings
	alias      string
	uniqueKey  string
	getters    Getters[T]
	concurrent bool
	logger     *zap.Logger
}

// NewEngine returns an engine reading sort-key values off rows with getters.
func NewEngine[T any](getters Getters[T]) *Engine[T] {
	return &Engine[T]{
		getters: getters,
	}
}

// WithGetters replaces the getters used to build cursors.
func (e *Engine[T]) WithGetters(getters Getters[T]) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.getters = getters

	return e
}

// WithSubstitutedSort resets previous orderings and applies the provided ones.
func (e *Engine[T]) WithSubstitutedSort(orderBy ...OrderBy) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.sort = nil

	return e.WithSort(orderBy...)
}

// WithSort appends sort orderings without overwriting existing ones.
// Order is preserved as if calling:
//
//	OrderBy(o1).ThenBy(o2).ThenBy(o3)...
//
// The last ordering must reference a unique column.
func (e *Engine[T]) WithSort(orderBy ...OrderBy) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	for _, o := range orderBy {
		idx := slices.IndexFunc(e.sort, func(processed OrderBy) bool {
			return processed.Key() == o.Key()
		})

		// Remove previous occurrence (avoid duplication).
		if idx != -1 {
			e.sort = slices.Delete(e.sort, idx, idx+1)
		}

		e.sort = append(e.sort, o)
	}

	return e
}

// WithAlias qualifies unqualified sort columns with the table alias.
func (e *Engine[T]) WithAlias(alias string) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.alias = alias

	return e
}

// WithUniqueKey declares the unique column of the dataset. Pagination fails
// with ErrMisconfiguredQuery unless the terminal ordering references it.
func (e *Engine[T]) WithUniqueKey(column string) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.uniqueKey = column

	return e
}

// WithConcurrentReads runs the count and the page queries concurrently.
//
// IMPORTANT:
// Requires a pooled connection and read-committed or stronger isolation,
// otherwise the count and the page may observe different snapshots.
func (e *Engine[T]) WithConcurrentReads() *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.concurrent = true

	return e
}

// WithLogger sets the logger. The engine logs nothing by default.
func (e *Engine[T]) WithLogger(logger *zap.Logger) *Engine[T] {
	if e == nil {
		e = new(Engine[T])
	}

	e.logger = logger

	return e
}

// GetSort returns orderings that will be applied to the dataset.
func (e *Engine[T]) GetSort() Orderings {
	if e == nil {
		return nil
	}

	return e.sort
}

// Paginate returns the page of db selected by params, anchored at
// params.DecodedCursorRow.
func (e *Engine[T]) Paginate(ctx context.Context, db *gorm.DB, params ListQueryParams) (*Page[T], error) {
	return e.paginate(ctx, db, params, params.DecodedCursorRow)
}

// PaginateFrom is Paginate anchored at an already loaded row instead of the
// cursor carried by params.
func (e *Engine[T]) PaginateFrom(ctx context.Context, db *gorm.DB, params ListQueryParams, anchor T) (*Page[T], error) {
	if e == nil {
		e = new(Engine[T])
	}

	if len(e.sort) == 0 {
		return nil, fmt.Errorf("cannot paginate: %w: anchor row given without ordering", ErrMisconfiguredQuery)
	}

	row, err := e.getters.rowOf(e.sort, anchor)
	if err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	return e.paginate(ctx, db, params, row)
}

func (e *Engine[T]) paginate(ctx context.Context, db *gorm.DB, params ListQueryParams, cursor CursorRow) (*Page[T], error) {
	if e == nil {
		e = new(Engine[T])
	}

	if params.Direction == "" {
		params.Direction = PageForward
	}

	err := e.validate(params, cursor)
	if err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	if len(e.sort) == 0 {
		return e.paginateUnordered(ctx, db, params)
	}

	backward := params.IsBackward()
	traversal := lo.Ternary(backward, e.sort.Flip(), e.sort)

	var (
		total int64
		rows  []T
	)

	// The count runs on a clone of the base query before any keyset predicate
	// is attached, so it only reflects the caller's filters.
	err = e.run(
		ctx,
		func(ctx context.Context) error {
			return e.count(ctx, db, &total)
		},
		func(ctx context.Context) error {
			var fetchErr error
			rows, fetchErr = e.fetch(ctx, db, traversal, cursor, params.window()+1, params.Skip, "page")
			return fetchErr
		},
	)
	if err != nil {
		return nil, err
	}

	// The window spans take+skip rows past the page start, so one row beyond it
	// means the next page in traversal direction, skipping the same amount, is
	// not empty. This agrees with the probe run for the opposite side.
	overflow := len(rows) > params.window()
	rows = trimPage(rows, params.Take, backward)

	page := &Page[T]{
		Items:      rows,
		TotalCount: total,
	}

	if len(rows) == 0 {
		e.logPage(params, page)
		return page, nil
	}

	startRow, err := e.getters.rowOf(e.sort, rows[0])
	if err != nil {
		return nil, err
	}
	endRow, err := e.getters.rowOf(e.sort, rows[len(rows)-1])
	if err != nil {
		return nil, err
	}

	startCursor, err := EncodeCursorRow(startRow)
	if err != nil {
		return nil, err
	}
	endCursor, err := EncodeCursorRow(endRow)
	if err != nil {
		return nil, err
	}

	page.PageInfo.StartCursor = &startCursor
	page.PageInfo.EndCursor = &endCursor

	// A page exists on the opposite side iff a row lies beyond the page edge.
	// Paging forward from the very start of the dataset, exactly skip rows
	// precede the page, so the probe could not find anything.
	var hasOpposite bool
	switch {
	case backward:
		hasOpposite, err = e.probe(ctx, db, e.sort, endRow, params.Skip)
	case !cursor.IsEmpty():
		hasOpposite, err = e.probe(ctx, db, e.sort.Flip(), startRow, params.Skip)
	}
	if err != nil {
		return nil, err
	}

	if backward {
		page.PageInfo.HasPrevious = overflow
		page.PageInfo.HasNext = hasOpposite
	} else {
		page.PageInfo.HasNext = overflow
		page.PageInfo.HasPrevious = hasOpposite
	}

	e.logPage(params, page)

	return page, nil
}

// paginateUnordered serves pages of a query without a sort order with plain
// LIMIT/OFFSET. Row order is up to the database, so consecutive pages may
// overlap or miss rows, and no cursors are emitted.
func (e *Engine[T]) paginateUnordered(ctx context.Context, db *gorm.DB, params ListQueryParams) (*Page[T], error) {
	e.getLogger().Warn(
		"paginating without ordering, page boundaries are not stable",
		zap.Int("take", params.Take),
		zap.Int("skip", params.Skip),
	)

	var (
		total int64
		rows  []T
	)

	err := e.run(
		ctx,
		func(ctx context.Context) error {
			return e.count(ctx, db, &total)
		},
		func(ctx context.Context) error {
			var fetchErr error
			rows, fetchErr = e.fetch(ctx, db, nil, nil, params.window()+1, params.Skip, "page")
			return fetchErr
		},
	)
	if err != nil {
		return nil, err
	}

	overflow := len(rows) > params.window()
	rows = trimPage(rows, params.Take, false)

	page := &Page[T]{
		Items:      rows,
		TotalCount: total,
		PageInfo: PageInfo{
			HasNext:     overflow,
			HasPrevious: params.Skip > 0 && len(rows) > 0,
		},
	}

	e.logPage(params, page)

	return page, nil
}

func (e *Engine[T]) count(ctx context.Context, db *gorm.DB, total *int64) error {
	return newStoreError("count", db.WithContext(ctx).Count(total).Error)
}

// fetch reads up to limit rows of db ordered by orderings, strictly after
// anchor, skipping offset rows.
func (e *Engine[T]) fetch(
	ctx context.Context,
	db *gorm.DB,
	orderings Orderings,
	anchor CursorRow,
	limit int,
	offset int,
	op string,
) ([]T, error) {
	query, err := e.applyKeyset(orderings.Apply(db.WithContext(ctx), e.alias), orderings, anchor)
	if err != nil {
		return nil, err
	}

	rows := make([]T, 0, limit)
	err = query.Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, newStoreError(op, err)
	}

	return rows, nil
}

// probe reports whether at least one row follows anchor in orderings order
// once offset rows are skipped.
func (e *Engine[T]) probe(ctx context.Context, db *gorm.DB, orderings Orderings, anchor CursorRow, offset int) (bool, error) {
	rows, err := e.fetch(ctx, db, orderings, anchor, 1, offset, "probe")
	if err != nil {
		return false, err
	}

	return len(rows) > 0, nil
}

// applyKeyset attaches the "strictly after anchor" predicate to db.
func (e *Engine[T]) applyKeyset(db *gorm.DB, orderings Orderings, anchor CursorRow) (*gorm.DB, error) {
	predicate, err := newKeysetPredicate(orderings, anchor, e.alias)
	if err != nil {
		return nil, err
	}

	exp := predicate.Expression()
	if exp == nil {
		return db, nil
	}

	if ce := e.getLogger().Check(zap.DebugLevel, "applying keyset predicate"); ce != nil {
		sqlClause, values := predicate.SQL()
		ce.Write(
			zap.String("order", orderings.ToSQL(e.alias)),
			zap.String("predicate", sqlClause),
			zap.Any("values", values),
		)
	}

	return db.Clauses(exp), nil
}

// run executes fns sequentially, or concurrently when concurrent reads are
// enabled. The first failure cancels the rest and is returned.
func (e *Engine[T]) run(ctx context.Context, fns ...func(context.Context) error) error {
	if !e.concurrent {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				return err
			}
		}

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error {
			return fn(gctx)
		})
	}

	return g.Wait()
}

func (e *Engine[T]) validate(params ListQueryParams, cursor CursorRow) error {
	if params.Take <= 0 {
		return fmt.Errorf("%w: take must be positive, got %d", ErrInvalidPagingArguments, params.Take)
	}

	if params.Skip < 0 {
		return fmt.Errorf("%w: skip must not be negative, got %d", ErrInvalidPagingArguments, params.Skip)
	}

	if params.Direction != PageForward && params.Direction != PageBackward {
		return fmt.Errorf("%w: unknown page direction '%s'", ErrInvalidPagingArguments, params.Direction)
	}

	if len(e.sort) == 0 {
		if !cursor.IsEmpty() || params.IsBackward() {
			return fmt.Errorf("%w: cursor pagination requires an ordering", ErrMisconfiguredQuery)
		}

		return nil
	}

	if err := e.sort.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMisconfiguredQuery, err)
	}

	if last, _ := e.sort.Last(); e.uniqueKey != "" && last.Key() != e.uniqueKey {
		return fmt.Errorf(
			"%w: terminal ordering column '%s' is not the unique key '%s'",
			ErrMisconfiguredQuery,
			last.Key(),
			e.uniqueKey,
		)
	}

	for _, orderBy := range e.sort {
		if _, ok := e.getters[orderBy.Key()]; !ok {
			return fmt.Errorf("%w: cannot find getter for column '%s' met in ordering", ErrMisconfiguredQuery, orderBy.Key())
		}
	}

	return cursor.validate(e.sort)
}

func (e *Engine[T]) getLogger() *zap.Logger {
	if e.logger == nil {
		return zap.NewNop()
	}

	return e.logger
}

func (e *Engine[T]) logPage(params ListQueryParams, page *Page[T]) {
	e.getLogger().Debug(
		"page fetched",
		zap.String("direction", string(params.Direction)),
		zap.Int("take", params.Take),
		zap.Int("skip", params.Skip),
		zap.Bool("has_cursor", params.Cursor != ""),
		zap.Int("items", len(page.Items)),
		zap.Int64("total", page.TotalCount),
		zap.Bool("has_next", page.PageInfo.HasNext),
		zap.Bool("has_previous", page.PageInfo.HasPrevious),
	)
}

// trimPage keeps the take rows nearest the anchor and restores presentation
// order.
//
// Rows arrive in traversal order and may run past the page by up to skip+1
// rows. Going backward they are reversed first, so the extra rows end up at
// the head; going forward they stay at the tail. Suppose take = 2 and
// rows = [a, b, c, d]:
//
//   - forward → [a, b].
//   - backward → [d, c, b, a] → [b, a].
func trimPage[T any](rows []T, take int, backward bool) []T {
	if backward {
		slices.Reverse(rows)
	}

	if len(rows) <= take {
		return rows
	}

	if backward {
		return rows[len(rows)-take:]
	}

	return rows[:take]
}
