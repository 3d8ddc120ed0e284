// Package store holds the typed queries for every table. Lookups return
// (nil, nil) when the row does not exist; mutations that target a missing
// row return ErrNotFound.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/pujcovna/internal/model"
)

// ErrNotFound is returned by mutations whose target row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyReturned is returned when closing a loan that is already closed.
var ErrAlreadyReturned = errors.New("loan already returned")

// RangeError reports an availability change that the store refused because
// the result would leave [0, total].
type RangeError struct {
	Target    model.Target
	Delta     int
	Available int
	Total     int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: applying delta %d to available %d of %d leaves bounds",
		e.Target, e.Delta, e.Available, e.Total)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func now() time.Time {
	return time.Now().UTC()
}
