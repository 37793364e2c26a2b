package snapshotstore

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// SQLConfig configures the database backend. Driver is "mysql" or
// "postgres"; the table is created on first use.
type SQLConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Table  string `json:"table"`
}

func init() {
	BackendRegistry["sql"] = func(raw json.RawMessage) (Store, error) {
		var cfg SQLConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return newSQLStore(cfg)
	}
}

type sqlStore struct {
	db       *sql.DB
	table    string
	postgres bool
}

func newSQLStore(cfg SQLConfig) (*sqlStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = "mysql"
	}
	if cfg.Table == "" {
		cfg.Table = "snapshot_blobs"
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	s := &sqlStore{db: db, table: cfg.Table, postgres: cfg.Driver == "postgres"}

	blobType := "LONGBLOB"
	if s.postgres {
		blobType = "BYTEA"
	}
	_, err = db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			name VARCHAR(255) PRIMARY KEY,
			image %s NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, s.table, blobType))
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) ph(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *sqlStore) Read(name string) (io.ReadCloser, error) {
	var image []byte
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT image FROM %s WHERE name = %s", s.table, s.ph(1)),
		name).Scan(&image)
	if err != nil {
		return errReader{err}, nil
	}
	return io.NopCloser(bytes.NewReader(image)), nil
}

func (s *sqlStore) Write(name string) (io.WriteCloser, error) {
	return &sqlWriter{s: s, name: name}, nil
}

type sqlWriter struct {
	s    *sqlStore
	name string
	buf  bytes.Buffer
}

func (w *sqlWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

// Close upserts the blob; the single statement is the atomicity point.
func (w *sqlWriter) Close() error {
	var stmt string
	if w.s.postgres {
		stmt = fmt.Sprintf(
			`INSERT INTO %s (name, image) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET image = EXCLUDED.image`, w.s.table)
	} else {
		stmt = fmt.Sprintf(
			`INSERT INTO %s (name, image) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE image = VALUES(image)`, w.s.table)
	}
	_, err := w.s.db.Exec(stmt, w.name, w.buf.Bytes())
	return err
}

func (s *sqlStore) Remove(name string) error {
	_, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE name = %s", s.table, s.ph(1)), name)
	return err
}

func (s *sqlStore) List() ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT name FROM %s ORDER BY name", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *sqlStore) Close() error { return s.db.Close() }
