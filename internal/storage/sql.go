package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const defaultBatchSize = 10000

// SQLStore keeps the frequency table in sqlite or mysql.
type SQLStore struct {
	db        *sql.DB
	dialect   string
	batchSize int

	// sqlite allows a single writer; concurrent flushes queue here instead of
	// failing with SQLITE_BUSY.
	writeMu sync.Mutex
}

// OpenSQL opens the database and applies the schema. dialect is "sqlite3" or "mysql".
func OpenSQL(dialect, dsn string, batchSize int) (*SQLStore, error) {
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if dialect == "sqlite3" && !strings.Contains(dsn, "_busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_busy_timeout=5000"
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if dialect == "sqlite3" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	store := &SQLStore{
		db:        db,
		dialect:   dialect,
		batchSize: batchSize,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range schemas[s.dialect] {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) lockWrites() func() {
	if s.dialect != "sqlite3" {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// fits reports whether the entry's keys fit the dialect's key columns, logging why not.
func (s *SQLStore) fits(prefix, continuation string) bool {
	if !storable(prefix, continuation) {
		logSkipped("empty key", prefix, continuation)
		return false
	}
	if s.dialect == "mysql" && (utf8.RuneCountInString(prefix) > mysqlMaxKeyLen || utf8.RuneCountInString(continuation) > mysqlMaxKeyLen) {
		logSkipped("key too long", prefix, continuation)
		return false
	}
	return true
}

func (s *SQLStore) UpsertIncrement(ctx context.Context, prefix, continuation string, delta uint64) error {
	if !s.fits(prefix, continuation) {
		return nil
	}
	defer s.lockWrites()()

	if _, err := s.db.ExecContext(ctx, upsertSQL[s.dialect], prefix, continuation, delta); err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// IncrementBatch writes entries in transactions of at most batchSize rows.
func (s *SQLStore) IncrementBatch(ctx context.Context, entries []Entry) error {
	for start := 0; start < len(entries); start += s.batchSize {
		end := min(start+s.batchSize, len(entries))
		if err := s.incrementInTransaction(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) incrementInTransaction(ctx context.Context, entries []Entry) error {
	defer s.lockWrites()()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL[s.dialect])
	if err != nil {
		return unavailable("prepare upsert", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		if !s.fits(e.Prefix, e.Continuation) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.Prefix, e.Continuation, e.Count); err != nil {
			return unavailable(fmt.Sprintf("upsert (%q, %q)", e.Prefix, e.Continuation), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *SQLStore) TopK(ctx context.Context, prefix string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, topKSQL, prefix, k)
	if err != nil {
		return nil, unavailable("top-k", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Continuation, &h.Count); err != nil {
			return nil, unavailable("scan hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate hits", err)
	}

	return Rank(prefix, hits, k)
}

func (s *SQLStore) Each(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx, eachSQL)
	if err != nil {
		return unavailable("scan table", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Prefix, &e.Continuation, &e.Count); err != nil {
			return unavailable("scan entry", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate entries", err)
	}
	return nil
}

func (s *SQLStore) Prune(ctx context.Context, minCount uint64, keepTop int) (int64, error) {
	defer s.lockWrites()()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	var deleted int64
	if minCount > 1 {
		res, err := tx.ExecContext(ctx, pruneMinCountSQL, minCount)
		if err != nil {
			return 0, unavailable("prune by count", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if keepTop > 0 {
		res, err := tx.ExecContext(ctx, pruneKeepTopSQL, keepTop)
		if err != nil {
			return 0, unavailable("prune by rank", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return deleted, nil
}

func (s *SQLStore) Verify(ctx context.Context) error {
	var prefix, continuation string
	var rows int
	err := s.db.QueryRowContext(ctx, duplicatesSQL).Scan(&prefix, &continuation, &rows)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return unavailable("verify", err)
	}
	return &InconsistencyError{Prefix: prefix, Continuation: continuation, Rows: rows}
}

func (s *SQLStore) Reset(ctx context.Context) error {
	defer s.lockWrites()()

	for _, stmt := range []string{"DELETE FROM frequencies", "DELETE FROM build_metadata"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("reset", err)
		}
	}
	return nil
}

func (s *SQLStore) SetMetadata(ctx context.Context, key, value string) error {
	defer s.lockWrites()()

	_, err := s.db.ExecContext(ctx,
		"REPLACE INTO build_metadata (name, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return unavailable("set metadata", err)
	}
	return nil
}

func (s *SQLStore) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM build_metadata")
	if err != nil {
		return nil, unavailable("metadata", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, unavailable("scan metadata", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
