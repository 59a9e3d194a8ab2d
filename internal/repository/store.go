package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store on top of a MySQL connection pool.  Row locks
// taken with SELECT ... FOR UPDATE on the showtime or room row serialize
// writers; the UNIQUE(showtime_id, seat_id) key on seat_claims backs up the
// exclusivity rule even if a caller forgets to lock.
type MySQLStore struct {
	db *sql.DB
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*sqlTx)(nil)
)

// NewMySQLStore returns a MySQLStore bound to the provided database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying sql.DB for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

// View runs fn inside a read-only transaction.
func (s *MySQLStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, readOnly: true})
	})
}

// Update runs fn inside a read-write transaction.
func (s *MySQLStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, nil, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx})
	})
}

// LockShowtimes locks the showtime rows in ascending id order before running
// fn, so two callers naming overlapping sets cannot deadlock.
func (s *MySQLStore) LockShowtimes(ctx context.Context, showtimeIDs []uint64, fn func(tx Tx) error) error {
	ids := uniqueSorted(showtimeIDs)
	return s.run(ctx, nil, func(tx *sql.Tx) error {
		for _, id := range ids {
			var got uint64
			err := tx.QueryRowContext(ctx, `SELECT id FROM showtimes WHERE id = ? FOR UPDATE`, id).Scan(&got)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
		}
		return fn(&sqlTx{tx: tx})
	})
}

// LockRoom locks the room row before running fn.
func (s *MySQLStore) LockRoom(ctx context.Context, roomID uint64, fn func(tx Tx) error) error {
	return s.run(ctx, nil, func(tx *sql.Tx) error {
		var got uint64
		err := tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = ? FOR UPDATE`, roomID).Scan(&got)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return fn(&sqlTx{tx: tx})
	})
}

func (s *MySQLStore) run(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// sqlTx implements Tx over a *sql.Tx.  Its methods live in the
// *_repository.go files next to this one, one file per table.
type sqlTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

// isDuplicate reports whether err is a MySQL unique-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func uint64Args(ids []uint64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
