package store

import (
	"database/sql"
	"time"
)

// recordDBO maps to the nzbs table
type recordDBO struct {
	ID        string         `db:"id"`
	FileHash  string         `db:"file_hash"`
	Name      string         `db:"name"`
	Title     sql.NullString `db:"title"`
	Password  sql.NullString `db:"password"`
	Size      int64          `db:"size"`
	FileCount int            `db:"file_count"`
	CreatedAt time.Time      `db:"created_at"`
}

// Mapper: DBO to Record
func (r *recordDBO) ToRecord() *Record {
	return &Record{
		ID:        r.ID,
		FileHash:  r.FileHash,
		Name:      r.Name,
		Title:     r.Title.String,
		Password:  r.Password.String,
		Size:      r.Size,
		FileCount: r.FileCount,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// Mapper: Record to DBO
func (r *recordDBO) FromRecord(rec *Record) {
	r.ID = rec.ID
	r.FileHash = rec.FileHash
	r.Name = rec.Name
	r.Title = sql.NullString{String: rec.Title, Valid: rec.Title != ""}
	r.Password = sql.NullString{String: rec.Password, Valid: rec.Password != ""}
	r.Size = rec.Size
	r.FileCount = rec.FileCount
	r.CreatedAt = rec.CreatedAt
}

const recordColumns = `id, file_hash, name, title, password, size, file_count, created_at`

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *recordDBO) scan(s scanner) error {
	return s.Scan(&r.ID, &r.FileHash, &r.Name, &r.Title, &r.Password, &r.Size, &r.FileCount, &r.CreatedAt)
}
