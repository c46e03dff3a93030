package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/datallboy/nzbstream/internal/nzb"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := migratePostgres(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// migratePostgres runs the migrations over a short lived database/sql handle,
// which is what the migrate driver expects.
func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return err
	}
	return runMigrations("postgres", driver)
}

func (s *PostgresStore) Import(ctx context.Context, name string, raw []byte) (*Record, error) {
	rec, err := newRecord(name, raw)
	if err != nil {
		return nil, err
	}

	var dbo recordDBO
	dbo.FromRecord(rec)

	// A concurrent import of the same document keeps the first row.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO nzbs (`+recordColumns+`, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (file_hash) DO NOTHING`,
		dbo.ID, dbo.FileHash, dbo.Name, dbo.Title, dbo.Password, dbo.Size, dbo.FileCount, dbo.CreatedAt, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert nzb %s: %w", name, err)
	}
	if tag.RowsAffected() == 1 {
		return rec, nil
	}
	return s.one(ctx, `WHERE file_hash = $1`, rec.FileHash)
}

func (s *PostgresStore) one(ctx context.Context, where string, arg any) (*Record, error) {
	var dbo recordDBO
	err := dbo.scan(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM nzbs `+where+` LIMIT 1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return dbo.ToRecord(), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.one(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) Model(ctx context.Context, id string) (*nzb.Model, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT raw FROM nzbs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return parseModel(raw)
}

func (s *PostgresStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM nzbs ORDER BY created_at DESC, id DESC`)
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM nzbs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
