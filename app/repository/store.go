package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by FindOne when no row matches.
var ErrNotFound = errors.New("record not found")

// Cond is a single parameterized WHERE fragment.
type Cond struct {
	Query string
	Args  []interface{}
}

// Filter narrows FindOne and FindMany. Conditions are AND-ed.
type Filter struct {
	Conds  []Cond
	Order  string
	Limit  int
	Offset int
}

// Where appends a condition and returns the filter for chaining.
func (f Filter) Where(query string, args ...interface{}) Filter {
	f.Conds = append(append([]Cond(nil), f.Conds...), Cond{Query: query, Args: args})
	return f
}

// Store is the storage contract every entity repository is built on. All
// uniqueness rules live in the schema; CreateIfAbsent is the only write path
// for write-once records and reports whether this call inserted the row.
type Store[T any] interface {
	CreateIfAbsent(ctx context.Context, record *T) (bool, error)
	FindOne(ctx context.Context, filter Filter) (*T, error)
	FindMany(ctx context.Context, filter Filter) ([]T, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

type gormStore[T any] struct {
	db *gorm.DB
}

// NewStore creates a GORM backed store for model T.
func NewStore[T any](db *gorm.DB) Store[T] {
	return &gormStore[T]{db: db}
}

// maxDeadlockRetries bounds retries of conditional inserts that lost a lock
// wait against a concurrent insert of the same key.
const maxDeadlockRetries = 3

func (s *gormStore[T]) CreateIfAbsent(ctx context.Context, record *T) (bool, error) {
	var err error
	for attempt := 0; attempt < maxDeadlockRetries; attempt++ {
		tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		err = tx.Error
		if err == nil {
			return tx.RowsAffected > 0, nil
		}
		if isDuplicate(err) {
			return false, nil
		}
		if !isDeadlock(err) {
			break
		}
	}
	return false, Classify(err)
}

func (s *gormStore[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	var out T
	filter.Limit = 0
	filter.Offset = 0
	err := s.scoped(ctx, filter).First(&out).Error
	if err != nil {
		return nil, Classify(err)
	}
	return &out, nil
}

func (s *gormStore[T]) FindMany(ctx context.Context, filter Filter) ([]T, error) {
	var out []T
	if err := s.scoped(ctx, filter).Find(&out).Error; err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

func (s *gormStore[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var n int64
	filter.Order = ""
	filter.Limit = 0
	filter.Offset = 0
	if err := s.scoped(ctx, filter).Model(new(T)).Count(&n).Error; err != nil {
		return 0, Classify(err)
	}
	return n, nil
}

func (s *gormStore[T]) scoped(ctx context.Context, filter Filter) *gorm.DB {
	q := s.db.WithContext(ctx)
	for _, c := range filter.Conds {
		q = q.Where(c.Query, c.Args...)
	}
	if order := strings.TrimSpace(filter.Order); order != "" {
		q = q.Order(order)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	return q
}
