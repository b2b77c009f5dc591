package relaypager

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newEventEngine() *Engine[tEvent] {
	return NewEngine(_eventGetters).
		WithUniqueKey("id").
		WithSort(_eventOrderings...)
}

func mustNormalize(t *testing.T, opts ListOptions) ListQueryParams {
	t.Helper()

	params, err := opts.Normalize()
	require.NoError(t, err)

	return params
}

func Test_Engine_Paginate_FirstPage(t *testing.T) {
	db := newSQLiteDB(t, 1000)

	page, err := newEventEngine().Paginate(context.Background(), db.Model(&tEvent{}), mustNormalize(t, ListOptions{Take: 10}))
	require.NoError(t, err)

	require.Equal(t, idRange(1, 10), eventIDs(page.Items))
	require.Equal(t, int64(1000), page.TotalCount)
	require.False(t, page.PageInfo.HasPrevious)
	require.True(t, page.PageInfo.HasNext)
	require.Equal(t, mustEventCursor(t, 1), *page.PageInfo.StartCursor)
	require.Equal(t, mustEventCursor(t, 10), *page.PageInfo.EndCursor)
}

func Test_Engine_Paginate_AfterCursor(t *testing.T) {
	db := newSQLiteDB(t, 1000)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 10, After: mustEventCursor(t, 10)}),
	)
	require.NoError(t, err)

	require.Equal(t, idRange(11, 20), eventIDs(page.Items))
	require.True(t, page.PageInfo.HasPrevious)
	require.True(t, page.PageInfo.HasNext)
	require.Equal(t, mustEventCursor(t, 11), *page.PageInfo.StartCursor)
	require.Equal(t, mustEventCursor(t, 20), *page.PageInfo.EndCursor)
}

func Test_Engine_Paginate_BeforeCursor(t *testing.T) {
	db := newSQLiteDB(t, 1000)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 10, Before: mustEventCursor(t, 991)}),
	)
	require.NoError(t, err)

	require.Equal(t, idRange(981, 990), eventIDs(page.Items))
	require.True(t, page.PageInfo.HasNext)
	require.True(t, page.PageInfo.HasPrevious)
	require.Equal(t, mustEventCursor(t, 981), *page.PageInfo.StartCursor)
	require.Equal(t, mustEventCursor(t, 990), *page.PageInfo.EndCursor)
}

func Test_Engine_Paginate_BeforeCursor_NearStart(t *testing.T) {
	db := newSQLiteDB(t, 100)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 10, Before: mustEventCursor(t, 6)}),
	)
	require.NoError(t, err)

	require.Equal(t, idRange(1, 5), eventIDs(page.Items))
	require.False(t, page.PageInfo.HasPrevious)
	require.True(t, page.PageInfo.HasNext)
}

func Test_Engine_Paginate_SmallFilteredResult(t *testing.T) {
	db := newSQLiteDB(t, 1000)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}).Where("id IN ?", []uint{5, 500, 995}),
		mustNormalize(t, ListOptions{Take: 5}),
	)
	require.NoError(t, err)

	require.Equal(t, []uint{5, 500, 995}, eventIDs(page.Items))
	require.Equal(t, int64(3), page.TotalCount)
	require.False(t, page.PageInfo.HasNext)
	require.False(t, page.PageInfo.HasPrevious)
}

func Test_Engine_Paginate_ContradictoryArgumentsNeverQuery(t *testing.T) {
	db, dbMock := newGORMMock(t, "mysql")

	opts := ListOptions{Take: 10, After: mustEventCursor(t, 10), Before: mustEventCursor(t, 20)}
	_, err := opts.Normalize()
	require.ErrorIs(t, err, ErrInvalidPagingArguments)

	// A caller wiring normalization into the engine never reaches the store.
	_, err = newEventEngine().Paginate(context.Background(), db.Model(&tEvent{}), ListQueryParams{
		Take:      10,
		Direction: "both",
	})
	require.ErrorIs(t, err, ErrInvalidPagingArguments)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func Test_Engine_Paginate_EmptyResult(t *testing.T) {
	db := newSQLiteDB(t, 50)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}).Where("kind = ?", "none"),
		mustNormalize(t, ListOptions{Take: 10}),
	)
	require.NoError(t, err)

	require.Empty(t, page.Items)
	require.NotNil(t, page.Items)
	require.Zero(t, page.TotalCount)
	require.Equal(t, PageInfo{}, page.PageInfo)
}

func Test_Engine_Paginate_ForwardCompleteness(t *testing.T) {
	db := newSQLiteDB(t, 47)

	tests := []struct {
		name      string
		orderings Orderings
		want      []uint
	}{
		{
			name: "ascending",
			orderings: Orderings{
				{Column: "created_at", Direction: DirectionASC},
				{Column: "id", Direction: DirectionASC},
			},
			want: idRange(1, 47),
		},
		{
			name: "mixed directions",
			orderings: Orderings{
				{Column: "created_at", Direction: DirectionDESC},
				{Column: "id", Direction: DirectionASC},
			},
			want: slices.Concat(idRange(41, 47), idRange(31, 40), idRange(21, 30), idRange(11, 20), idRange(1, 10)),
		},
		{
			name: "descending",
			orderings: Orderings{
				{Column: "created_at", Direction: DirectionDESC},
				{Column: "id", Direction: DirectionDESC},
			},
			want: func() []uint {
				ids := idRange(1, 47)
				slices.Reverse(ids)
				return ids
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(_eventGetters).WithSort(tt.orderings...)

			var (
				got   []uint
				after string
				pages int
			)
			for {
				page, err := engine.Paginate(context.Background(), db.Model(&tEvent{}), mustNormalize(t, ListOptions{Take: 4, After: after}))
				require.NoError(t, err)
				require.Equal(t, pages > 0, page.PageInfo.HasPrevious, "page %d", pages)

				got = append(got, eventIDs(page.Items)...)
				pages++

				if !page.PageInfo.HasNext {
					break
				}
				after = *page.PageInfo.EndCursor
			}

			require.Equal(t, tt.want, got)
			require.Equal(t, 12, pages)
		})
	}
}

func Test_Engine_Paginate_BackwardCompleteness(t *testing.T) {
	db := newSQLiteDB(t, 47)
	engine := NewEngine(_eventGetters).WithSort(
		OrderBy{Column: "created_at", Direction: DirectionDESC},
		OrderBy{Column: "id", Direction: DirectionASC},
	)

	var (
		got   []uint
		pages int
	)
	params := ListQueryParams{Take: 5, Direction: PageBackward}
	for {
		page, err := engine.Paginate(context.Background(), db.Model(&tEvent{}), params)
		require.NoError(t, err)
		require.Equal(t, pages > 0, page.PageInfo.HasNext, "page %d", pages)

		got = append(eventIDs(page.Items), got...)
		pages++

		if !page.PageInfo.HasPrevious {
			break
		}

		params, err = (&ListOptions{Take: 5, Before: *page.PageInfo.StartCursor}).Normalize()
		require.NoError(t, err)
	}

	require.Equal(
		t,
		slices.Concat(idRange(41, 47), idRange(31, 40), idRange(21, 30), idRange(11, 20), idRange(1, 10)),
		got,
	)
	require.Equal(t, 10, pages)
}

func Test_Engine_Paginate_RoundTripExcludesAnchor(t *testing.T) {
	db := newSQLiteDB(t, 60)
	engine := newEventEngine()
	base := db.Model(&tEvent{})

	second, err := engine.Paginate(context.Background(), base, mustNormalize(t, ListOptions{Take: 7, After: mustEventCursor(t, 7)}))
	require.NoError(t, err)
	require.Equal(t, idRange(8, 14), eventIDs(second.Items))

	back, err := engine.Paginate(context.Background(), base, mustNormalize(t, ListOptions{Take: 7, Before: *second.PageInfo.StartCursor}))
	require.NoError(t, err)
	require.Equal(t, idRange(1, 7), eventIDs(back.Items))
	require.False(t, back.PageInfo.HasPrevious)
	require.True(t, back.PageInfo.HasNext)

	forth, err := engine.Paginate(context.Background(), base, mustNormalize(t, ListOptions{Take: 7, After: *back.PageInfo.EndCursor}))
	require.NoError(t, err)
	require.Equal(t, eventIDs(second.Items), eventIDs(forth.Items))
}

func Test_Engine_Paginate_CountIsIdempotent(t *testing.T) {
	db := newSQLiteDB(t, 120)
	engine := newEventEngine()
	base := db.Model(&tEvent{}).Where("kind = ?", "even")

	requests := []ListOptions{
		{Take: 10},
		{Take: 10, Skip: 7},
		{Take: 3, After: mustEventCursor(t, 50)},
		{Take: 3, After: mustEventCursor(t, 50), Skip: 4},
		{Take: 25, Before: mustEventCursor(t, 90)},
		{Take: 1, After: mustEventCursor(t, 120)},
	}
	for _, opts := range requests {
		page, err := engine.Paginate(context.Background(), base, mustNormalize(t, opts))
		require.NoError(t, err)
		require.Equal(t, int64(60), page.TotalCount, "%+v", opts)
	}
}

func Test_Engine_Paginate_Skip(t *testing.T) {
	db := newSQLiteDB(t, 100)

	page, err := newEventEngine().Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 5, Skip: 5, After: mustEventCursor(t, 10)}),
	)
	require.NoError(t, err)

	require.Equal(t, idRange(16, 20), eventIDs(page.Items))
	require.True(t, page.PageInfo.HasNext)
	require.True(t, page.PageInfo.HasPrevious)
}

func Test_Engine_Paginate_SkipAtEndOfData(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		opts     ListOptions
		wantIDs  []uint
		wantMore bool
		wantNext []uint
	}{
		{
			name:     "forward, skipped rows exhaust the data",
			rows:     20,
			opts:     ListOptions{Take: 10, Skip: 5},
			wantIDs:  idRange(6, 15),
			wantMore: false,
			wantNext: []uint{},
		},
		{
			name:     "forward, one row left after the skip",
			rows:     21,
			opts:     ListOptions{Take: 10, Skip: 5},
			wantIDs:  idRange(6, 15),
			wantMore: true,
			wantNext: []uint{21},
		},
		{
			name:     "backward, skipped rows exhaust the data",
			rows:     25,
			opts:     ListOptions{Take: 10, Skip: 5, Before: mustEventCursor(t, 21)},
			wantIDs:  idRange(6, 15),
			wantMore: false,
			wantNext: []uint{},
		},
		{
			name:     "backward, one row left after the skip",
			rows:     25,
			opts:     ListOptions{Take: 10, Skip: 5, Before: mustEventCursor(t, 22)},
			wantIDs:  idRange(7, 16),
			wantMore: true,
			wantNext: []uint{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newSQLiteDB(t, tt.rows)
			engine := newEventEngine()

			page, err := engine.Paginate(context.Background(), db.Model(&tEvent{}), mustNormalize(t, tt.opts))
			require.NoError(t, err)
			require.Equal(t, tt.wantIDs, eventIDs(page.Items))

			// Follow the page in traversal direction with the same skip.
			follow := ListOptions{Take: tt.opts.Take, Skip: tt.opts.Skip}
			more := page.PageInfo.HasNext
			if tt.opts.Before != "" {
				follow.Before = *page.PageInfo.StartCursor
				more = page.PageInfo.HasPrevious
			} else {
				follow.After = *page.PageInfo.EndCursor
			}
			require.Equal(t, tt.wantMore, more)

			next, err := engine.Paginate(context.Background(), db.Model(&tEvent{}), mustNormalize(t, follow))
			require.NoError(t, err)
			require.Equal(t, tt.wantNext, eventIDs(next.Items))
			require.Equal(t, more, len(next.Items) > 0)
		})
	}
}

func Test_Engine_PaginateFrom(t *testing.T) {
	db := newSQLiteDB(t, 100)

	var anchor tEvent
	require.NoError(t, db.First(&anchor, 30).Error)

	page, err := newEventEngine().PaginateFrom(
		context.Background(),
		db.Model(&tEvent{}),
		ListQueryParams{Take: 5, Direction: PageForward},
		anchor,
	)
	require.NoError(t, err)
	require.Equal(t, idRange(31, 35), eventIDs(page.Items))
	require.True(t, page.PageInfo.HasPrevious)

	page, err = newEventEngine().PaginateFrom(
		context.Background(),
		db.Model(&tEvent{}),
		ListQueryParams{Take: 5, Direction: PageBackward},
		anchor,
	)
	require.NoError(t, err)
	require.Equal(t, idRange(25, 29), eventIDs(page.Items))
	require.True(t, page.PageInfo.HasNext)
}

func Test_Engine_Paginate_ConcurrentReads(t *testing.T) {
	db := newSQLiteDB(t, 200)
	engine := newEventEngine().WithConcurrentReads()

	page, err := engine.Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 20, After: mustEventCursor(t, 100)}),
	)
	require.NoError(t, err)
	require.Equal(t, idRange(101, 120), eventIDs(page.Items))
	require.Equal(t, int64(200), page.TotalCount)
	require.True(t, page.PageInfo.HasNext)
	require.True(t, page.PageInfo.HasPrevious)
}

func Test_Engine_Paginate_CanceledContext(t *testing.T) {
	db := newSQLiteDB(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEventEngine().Paginate(ctx, db.Model(&tEvent{}), mustNormalize(t, ListOptions{Take: 5}))
	require.ErrorIs(t, err, context.Canceled)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "count", storeErr.Op)
}

func Test_Engine_Paginate_Unordered(t *testing.T) {
	db := newSQLiteDB(t, 20)
	core, logs := observer.New(zap.WarnLevel)

	page, err := NewEngine(_eventGetters).WithLogger(zap.New(core)).Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 5, Skip: 5}),
	)
	require.NoError(t, err)

	require.Len(t, page.Items, 5)
	require.Equal(t, int64(20), page.TotalCount)
	require.True(t, page.PageInfo.HasNext)
	require.True(t, page.PageInfo.HasPrevious)
	require.Nil(t, page.PageInfo.StartCursor)
	require.Nil(t, page.PageInfo.EndCursor)
	require.Equal(t, 1, logs.FilterMessageSnippet("without ordering").Len())

	page, err = NewEngine(_eventGetters).Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 5, Skip: 10}),
	)
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	require.False(t, page.PageInfo.HasNext)

	page, err = NewEngine(_eventGetters).Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 5, Skip: 16}),
	)
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	require.False(t, page.PageInfo.HasNext)
}

func Test_Engine_Paginate_AliasWithJoin(t *testing.T) {
	db := newSQLiteDB(t, 30)
	engine := newEventEngine().WithAlias("e")

	base := func() *gorm.DB {
		return db.Table("events e").
			Select("e.id AS id, e.created_at AS created_at, e.kind AS kind").
			Joins("JOIN events prev ON prev.id = e.id - 1").
			Where("prev.kind = ?", "odd")
	}

	var (
		got   []uint
		after string
	)
	for {
		page, err := engine.Paginate(context.Background(), base(), mustNormalize(t, ListOptions{Take: 4, After: after}))
		require.NoError(t, err)
		require.Equal(t, int64(15), page.TotalCount)

		got = append(got, eventIDs(page.Items)...)
		if !page.PageInfo.HasNext {
			break
		}
		after = *page.PageInfo.EndCursor
	}

	want := make([]uint, 0, 15)
	for id := uint(2); id <= 30; id += 2 {
		want = append(want, id)
	}
	require.Equal(t, want, got)
}

func Test_Engine_Paginate_LogsKeysetPredicate(t *testing.T) {
	db := newSQLiteDB(t, 20)
	core, logs := observer.New(zap.DebugLevel)

	_, err := newEventEngine().WithLogger(zap.New(core)).Paginate(
		context.Background(),
		db.Model(&tEvent{}),
		mustNormalize(t, ListOptions{Take: 5, After: mustEventCursor(t, 5)}),
	)
	require.NoError(t, err)

	predicates := logs.FilterMessage("applying keyset predicate").All()
	require.Len(t, predicates, 2)
	require.Equal(t, "created_at ASC, id ASC", predicates[0].ContextMap()["order"])
	require.Equal(t, "created_at DESC, id DESC", predicates[1].ContextMap()["order"])
	require.Equal(t, 1, logs.FilterMessage("page fetched").Len())
}
