package store

import "github.com/daviddao/twentyfivefive/pkg/model"

// StoreInterface is the set of log operations the CLI depends on. Tests
// substitute an in-memory implementation.
type StoreInterface interface {
	Close() error

	// InsertAccomplishment appends a record and returns its ID.
	InsertAccomplishment(a *model.Accomplishment) (int64, error)

	// ListAccomplishmentsOn returns a day's records ordered by timestamp.
	ListAccomplishmentsOn(date string) ([]model.Accomplishment, error)

	// ListDates returns the dates that have records, newest first.
	ListDates(limit int) ([]string, error)

	CountAccomplishments() int64
}

var _ StoreInterface = (*Store)(nil)
