// Package store persists the optimisation history of a run in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableIteration = "iteration"
	tableMeta      = "meta"
)

// Iteration is the summary of one optimisation step.
type Iteration struct {
	Step          int
	Energy        complex128
	EnergySigma   float64
	Variance      float64
	Acceptance    float64
	Magnetization float64
}

// DB is a run database.
type DB struct {
	Path string
	db   *sql.DB
}

// Open opens the database at path, creating its tables if they do not exist.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("db %s", path))
	}
	return &DB{Path: path, db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// PutIteration records it, replacing any iteration with the same step.
func (d *DB) PutIteration(ctx context.Context, it Iteration) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (step, re, im, sigma, variance, acceptance, magnetization) VALUES (?, ?, ?, ?, ?, ?, ?)`, tableIteration)
	args := []any{it.Step, real(it.Energy), imag(it.Energy), it.EnergySigma, it.Variance, it.Acceptance, it.Magnetization}
	if _, err := d.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return nil
}

// Iterations returns all recorded iterations ordered by step.
func (d *DB) Iterations(ctx context.Context) ([]Iteration, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT step, re, im, sigma, variance, acceptance, magnetization FROM %s ORDER BY step`, tableIteration)
	rows, err := d.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	iterations := make([]Iteration, 0)
	for rows.Next() {
		var it Iteration
		var re, im float64
		if err := rows.Scan(&it.Step, &re, &im, &it.EnergySigma, &it.Variance, &it.Acceptance, &it.Magnetization); err != nil {
			return nil, errors.Wrap(err, "")
		}
		it.Energy = complex(re, im)
		iterations = append(iterations, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return iterations, nil
}

// PutMeta sets the metadata value of key.
func (d *DB) PutMeta(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, v) VALUES (?, ?)`, tableMeta)
	if _, err := d.db.ExecContext(ctx, sqlStr, key, value); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %s", sqlStr, key))
	}
	return nil
}

// Meta returns the metadata value of key, and false if key is not set.
func (d *DB) Meta(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT v FROM %s WHERE k=?`, tableMeta)
	var v string
	err := d.db.QueryRowContext(ctx, sqlStr, key).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "")
	default:
		return v, true, nil
	}
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (step INTEGER PRIMARY KEY, re REAL, im REAL, sigma REAL, variance REAL, acceptance REAL, magnetization REAL) STRICT`, tableIteration)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v TEXT) STRICT`, tableMeta)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
