package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// noRows maps pgx.ErrNoRows to a nil error so getters can return nil, nil.
func noRows(err error) (bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	return false, err
}

func dayString(d time.Time) string {
	return d.Format("2006-01-02")
}
