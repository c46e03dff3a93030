package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datallboy/nzbstream/internal/nzb"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at dbPath. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		// Ensure the database directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// This driver works with modernc.org/sqlite as well
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := runMigrations("sqlite", driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Import(ctx context.Context, name string, raw []byte) (*Record, error) {
	rec, err := newRecord(name, raw)
	if err != nil {
		return nil, err
	}

	if existing, err := s.byHash(ctx, rec.FileHash); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var dbo recordDBO
	dbo.FromRecord(rec)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nzbs (`+recordColumns+`, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dbo.ID, dbo.FileHash, dbo.Name, dbo.Title, dbo.Password, dbo.Size, dbo.FileCount, dbo.CreatedAt, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert nzb %s: %w", name, err)
	}
	return rec, nil
}

func (s *SQLiteStore) byHash(ctx context.Context, hash string) (*Record, error) {
	var dbo recordDBO
	err := dbo.scan(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM nzbs WHERE file_hash = ? LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dbo.ToRecord(), nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var dbo recordDBO
	err := dbo.scan(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM nzbs WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return dbo.ToRecord(), nil
}

func (s *SQLiteStore) Model(ctx context.Context, id string) (*nzb.Model, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT raw FROM nzbs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return parseModel(raw)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM nzbs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var dbo recordDBO
		if err := dbo.scan(rows); err != nil {
			return nil, err
		}
		out = append(out, dbo.ToRecord())
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nzbs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
