// Package pagedb keeps workbook pages in SQLite, one row per page.
package pagedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"barterforge.ai/internal/sim/model"
	"barterforge.ai/internal/sim/workbook"
)

var _ workbook.PageStore = (*Store)(nil)

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// LedgerRow summarizes one stored ledger.
type LedgerRow struct {
	Vendor    int64  `db:"vendor"`
	Pages     int    `db:"pages"`
	Chars     int    `db:"chars"`
	UpdatedAt string `db:"updated_at"`
}

type pageRow struct {
	PageNo int    `db:"page_no"`
	Body   string `db:"body"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func migrate(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledgers (
		vendor INTEGER PRIMARY KEY,
		header TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_pages (
		vendor INTEGER NOT NULL REFERENCES ledgers(vendor) ON DELETE CASCADE,
		page_no INTEGER NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (vendor, page_no)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) LoadPages(vendor model.PartyID) (string, []string, bool, error) {
	var header string
	err := s.db.Get(&header, `SELECT header FROM ledgers WHERE vendor = ?`, int64(vendor))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	var rows []pageRow
	if err := s.db.Select(&rows, `SELECT page_no, body FROM ledger_pages WHERE vendor = ? ORDER BY page_no`, int64(vendor)); err != nil {
		return "", nil, false, err
	}
	pages := make([]string, 0, len(rows))
	for i, r := range rows {
		if r.PageNo != i {
			return "", nil, false, fmt.Errorf("vendor %d: page %d missing", vendor, i)
		}
		pages = append(pages, r.Body)
	}
	return header, pages, true, nil
}

// SavePages replaces the vendor's header and every page in one transaction.
func (s *Store) SavePages(vendor model.PartyID, header string, pages []string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO ledgers (vendor, header, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(vendor) DO UPDATE SET header = excluded.header, updated_at = excluded.updated_at`,
		int64(vendor), header, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ledger_pages WHERE vendor = ?`, int64(vendor)); err != nil {
		return err
	}
	for i, body := range pages {
		if _, err := tx.Exec(`INSERT INTO ledger_pages (vendor, page_no, body) VALUES (?, ?, ?)`, int64(vendor), i, body); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeletePages(vendor model.PartyID) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM ledger_pages WHERE vendor = ?`, int64(vendor)); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM ledgers WHERE vendor = ?`, int64(vendor)); err != nil {
		return err
	}
	return tx.Commit()
}

// Ledgers lists every stored ledger with its page count and size.
func (s *Store) Ledgers() ([]LedgerRow, error) {
	var out []LedgerRow
	err := s.db.Select(&out, `
		SELECT l.vendor AS vendor,
			COUNT(p.page_no) AS pages,
			COALESCE(SUM(LENGTH(p.body)), 0) + LENGTH(l.header) AS chars,
			l.updated_at AS updated_at
		FROM ledgers l LEFT JOIN ledger_pages p ON p.vendor = l.vendor
		GROUP BY l.vendor ORDER BY l.vendor`)
	return out, err
}

func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Meta returns "" for a missing key.
func (s *Store) Meta(key string) (string, error) {
	var v string
	err := s.db.Get(&v, `SELECT value FROM meta WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}
