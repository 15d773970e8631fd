// Package repository implements the chat store interfaces on Postgres.
package repository

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/pkg/errors"
)

// BaseRepository provides common database functionality.
type BaseRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewBaseRepository creates a new base repository instance.
func NewBaseRepository(db *sql.DB, log *zap.Logger) *BaseRepository {
	return &BaseRepository{db: db, log: log}
}

// GetDB returns the underlying database connection.
func (r *BaseRepository) GetDB() *sql.DB {
	return r.db
}

// GetLogger returns the logger instance.
func (r *BaseRepository) GetLogger() *zap.Logger {
	return r.log
}

// one maps a single-row scan, translating sql.ErrNoRows to the domain
// not-found sentinel.
func one(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.ErrNotFound
	}
	return errors.Persistence(err)
}

// exec wraps a statement error as a persistence failure.
func exec(err error) error {
	if err == nil {
		return nil
	}
	return errors.Persistence(err)
}
