// Package archive keeps a bounded SQLite history of the news already
// posted, serving the !latest and !xpost lookups.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tbernard/feedbot/internal/feed"
	"github.com/tbernard/feedbot/internal/logger"
	_ "modernc.org/sqlite"
)

// Archive is the posted-news database.
type Archive struct {
	db   *sql.DB
	path string
	keep int
}

// Open opens or creates the archive at dbPath, keeping at most keep rows.
func Open(dbPath string, keep int) (*Archive, error) {
	if keep <= 0 {
		keep = 100
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	a := &Archive{db: db, path: dbPath, keep: keep}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("[archive] opened %s", dbPath)
	return a, nil
}

func (a *Archive) migrate() error {
	const schema = `CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		hash TEXT NOT NULL,
		posted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	if _, err := a.db.Exec(`CREATE INDEX IF NOT EXISTS idx_news_hash ON news(hash)`); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error { return a.db.Close() }

// Insert records a posted item and trims the history to the keep bound.
func (a *Archive) Insert(item feed.Item) error {
	_, err := a.db.Exec(
		`INSERT INTO news (origin, title, link, hash, posted_at) VALUES (?, ?, ?, ?, ?)`,
		item.Origin, item.Title, item.Link(), item.Hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert news: %w", err)
	}
	_, err = a.db.Exec(
		`DELETE FROM news WHERE id NOT IN (SELECT id FROM news ORDER BY id DESC LIMIT ?)`,
		a.keep,
	)
	if err != nil {
		return fmt.Errorf("trim news: %w", err)
	}
	return nil
}

// Latest returns up to n most recently posted items, newest first,
// optionally filtered by origin (case-insensitive substring).
func (a *Archive) Latest(n int, origin string) ([]feed.Item, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `SELECT origin, title, link, hash, posted_at FROM news`
	args := []interface{}{}
	if origin != "" {
		query += ` WHERE lower(origin) LIKE ?`
		args = append(args, "%"+strings.ToLower(origin)+"%")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// FindByHash returns the posted item with the given hash, or nil.
func (a *Archive) FindByHash(hash string) (*feed.Item, error) {
	rows, err := a.db.Query(
		`SELECT origin, title, link, hash, posted_at FROM news WHERE hash = ? ORDER BY id DESC LIMIT 1`,
		hash,
	)
	if err != nil {
		return nil, fmt.Errorf("query hash: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func scanItems(rows *sql.Rows) ([]feed.Item, error) {
	var items []feed.Item
	for rows.Next() {
		var (
			item     feed.Item
			link     string
			postedAt time.Time
		)
		if err := rows.Scan(&item.Origin, &item.Title, &link, &item.Hash, &postedAt); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		item.Links = []string{link}
		item.Published = postedAt
		items = append(items, item)
	}
	return items, rows.Err()
}
