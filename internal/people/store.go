package people

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alp4ka/relaypager"
)

var _tieBreak = relaypager.OrderBy{Column: "id", Direction: relaypager.DirectionASC}

var _defaultSort = relaypager.Orderings{
	{Column: "created_at", Direction: relaypager.DirectionASC},
}

// ListQuery is a page request for the people listing.
type ListQuery struct {
	Params relaypager.ListQueryParams
	// Sort entries in the "alias asc|desc" form. Empty means by creation time.
	Sort []string
}

// Store reads and writes people through gorm.
type Store struct {
	db         *gorm.DB
	logger     *zap.Logger
	concurrent bool
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		db:     db,
		logger: logger,
	}
}

// WithConcurrentReads counts and fetches pages concurrently. Only enable it on
// pooled connections.
func (s *Store) WithConcurrentReads() *Store {
	s.concurrent = true
	return s
}

// Migrate creates or updates the people table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Person{}); err != nil {
		return fmt.Errorf("cannot migrate people: %w", err)
	}

	return nil
}

// List returns the page of people selected by q. The id column always breaks
// ties of the requested sort.
func (s *Store) List(ctx context.Context, q ListQuery) (*relaypager.Page[Person], error) {
	orderings, err := relaypager.ParseSort(q.Sort, sortColumns)
	if err != nil {
		return nil, fmt.Errorf("cannot list people: %w", err)
	}

	if len(orderings) == 0 {
		orderings = _defaultSort
	}

	engine := relaypager.NewEngine(personGetters).
		WithUniqueKey(_tieBreak.Column).
		WithLogger(s.logger).
		WithSort(orderings...).
		WithSort(_tieBreak)
	if s.concurrent {
		engine = engine.WithConcurrentReads()
	}

	base := s.db.Model(&Person{}).Scopes(q.Params.SearchScope(searchColumns...))

	page, err := engine.Paginate(ctx, base, q.Params)
	if err != nil {
		return nil, fmt.Errorf("cannot list people: %w", err)
	}

	return page, nil
}

var (
	_firstNames = []string{"Ada", "Alan", "Barbara", "Dennis", "Edsger", "Frances", "Grace", "Ken", "Linus", "Margaret"}
	_lastNames  = []string{"Lovelace", "Turing", "Liskov", "Ritchie", "Dijkstra", "Allen", "Hopper", "Thompson", "Torvalds", "Hamilton"}
	_seedEpoch  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// SeedPerson returns the i-th demo person. Ids and timestamps are derived from
// i, and every three consecutive people share a creation time.
func SeedPerson(i int) Person {
	firstName := _firstNames[i%len(_firstNames)]
	lastName := _lastNames[(i/len(_firstNames))%len(_lastNames)]

	return Person{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("relaypager/person/%d", i))),
		FirstName: firstName,
		LastName:  lastName,
		Email:     strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", firstName, lastName, i)),
		CreatedAt: _seedEpoch.Add(time.Duration(i/3) * time.Minute),
	}
}

// Seed inserts n demo people. Rows that already exist are left alone, so
// seeding twice is harmless.
func (s *Store) Seed(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	batch := make([]Person, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, SeedPerson(i))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(batch, 100).Error
	if err != nil {
		return fmt.Errorf("cannot seed people: %w", err)
	}

	s.logger.Info("people seeded", zap.Int("count", n))

	return nil
}
