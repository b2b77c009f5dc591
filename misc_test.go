package relaypager

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _mockDialects = []string{"mysql", "postgres"}

// newGORMMock returns a gorm handle of dialect backed by sqlmock. Queries are
// matched as regular expressions.
func newGORMMock(t *testing.T, dialect string) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var dialector gorm.Dialector
	switch dialect {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true})
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: conn})
	default:
		t.Fatalf("unknown dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return db, mock
}

// tEvent is the fixture model of the sqlite backed tests. Rows are created in
// groups of ten sharing the same created_at, so the id tie-break matters.
type tEvent struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	Kind      string
}

func (tEvent) TableName() string {
	return "events"
}

var _eventGetters = Getters[tEvent]{
	"created_at": func(e tEvent) any { return e.CreatedAt },
	"id":         func(e tEvent) any { return e.ID },
}

var _eventOrderings = Orderings{
	{Column: "created_at", Direction: DirectionASC},
	{Column: "id", Direction: DirectionASC},
}

var _fixtureEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newSQLiteDB opens an in-memory sqlite database seeded with n events. Event
// with id i has created_at = epoch + (i-1)/10 minutes and kind "even" or "odd".
func newSQLiteDB(t *testing.T, n int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every connection of an in-memory sqlite database sees its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&tEvent{}))

	if n == 0 {
		return db
	}

	events := make([]tEvent, 0, n)
	for i := 1; i <= n; i++ {
		kind := "odd"
		if i%2 == 0 {
			kind = "even"
		}

		events = append(events, tEvent{
			ID:        uint(i),
			CreatedAt: _fixtureEpoch.Add(time.Duration((i-1)/10) * time.Minute),
			Kind:      kind,
		})
	}
	require.NoError(t, db.CreateInBatches(events, 100).Error)

	return db
}

func eventIDs(events []tEvent) []uint {
	ret := make([]uint, 0, len(events))
	for _, e := range events {
		ret = append(ret, e.ID)
	}

	return ret
}

func idRange(from, to uint) []uint {
	ret := make([]uint, 0, to-from+1)
	for i := from; i <= to; i++ {
		ret = append(ret, i)
	}

	return ret
}

func mustEventCursor(t *testing.T, id uint) string {
	t.Helper()

	token, err := EncodeCursorRow(CursorRow{
		{Column: "created_at", Value: _fixtureEpoch.Add(time.Duration((id-1)/10) * time.Minute)},
		{Column: "id", Value: id},
	})
	require.NoError(t, err)

	return token
}
