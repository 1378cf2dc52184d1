package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"courier/internal/domain"
)

// stmtCacheSize bounds the prepared-statement LRU. The substrate issues a
// few dozen distinct queries, so evictions only happen under pathological
// use.
const stmtCacheSize = 128

// Store owns the SQLite handle shared by every component.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	stmtMu sync.Mutex
	stmts  *lru.Cache[string, *sql.Stmt]

	// txMu serializes the explicit transaction bracket; mu guards the
	// bracket state itself.
	txMu sync.Mutex
	mu   sync.Mutex
	tx   *sql.Tx
	txOK bool
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	stmts, err := lru.NewWithEvict[string, *sql.Stmt](stmtCacheSize, func(_ string, st *sql.Stmt) {
		_ = st.Close()
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("store opened", zap.String("path", path))
	return &Store{db: db, log: log, stmts: stmts}, nil
}

// Close releases every cached statement and the database handle.
func (s *Store) Close() error {
	var err error
	s.mu.Lock()
	if s.tx != nil {
		err = multierr.Append(err, s.tx.Rollback())
		s.tx = nil
		s.txOK = false
		s.txMu.Unlock()
	}
	s.mu.Unlock()

	s.stmtMu.Lock()
	s.stmts.Purge()
	s.stmtMu.Unlock()

	return multierr.Append(err, s.db.Close())
}

// Begin opens the explicit transaction bracket. Only one bracket is open at
// a time; a second Begin blocks until the first End.
func (s *Store) Begin(ctx context.Context) error {
	s.txMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.txMu.Unlock()
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.mu.Lock()
	s.tx = tx
	s.txOK = false
	s.mu.Unlock()
	return nil
}

// Succeed marks the open bracket for commit. Without it, End rolls back.
func (s *Store) Succeed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return domain.ErrTxNotOpen
	}
	s.txOK = true
	return nil
}

// End closes the bracket: commit if Succeed was called, rollback otherwise.
func (s *Store) End() error {
	s.mu.Lock()
	tx, ok := s.tx, s.txOK
	s.tx = nil
	s.txOK = false
	s.mu.Unlock()

	if tx == nil {
		return domain.ErrTxNotOpen
	}
	defer s.txMu.Unlock()

	if ok {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// InTx runs fn inside one bracket, succeeding only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func() error) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return multierr.Append(err, s.End())
	}
	if err := s.Succeed(); err != nil {
		return multierr.Append(err, s.End())
	}
	return s.End()
}

// stmt returns the cached prepared statement for query, rebound onto the
// open transaction when one is active. Transaction-bound statements are
// closed by database/sql when the transaction ends.
func (s *Store) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtMu.Lock()
	st, hit := s.stmts.Get(query)
	if !hit {
		var err error
		st, err = s.db.PrepareContext(ctx, query)
		if err != nil {
			s.stmtMu.Unlock()
			return nil, fmt.Errorf("prepare: %w", err)
		}
		s.stmts.Add(query, st)
	}
	s.stmtMu.Unlock()

	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx != nil {
		return tx.StmtContext(ctx, st), nil
	}
	return st, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.ExecContext(ctx, args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.QueryRowContext(ctx, args...), nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.QueryContext(ctx, args...)
}

// queryIDs runs a query whose only column is an id and collects the results
// in row order.
func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// nullID maps the zero id to NULL for nullable reference columns.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
