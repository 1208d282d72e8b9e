// Package sqlite implements the repository interfaces on SQLite.
//
// We use modernc.org/sqlite (a pure Go translation of SQLite) so the binary
// builds without CGo and cross-compiles cleanly. WAL mode is enabled so reads
// don't block behind writes; the database is the single synchronization point
// for the whole service — the unique index on users.external_id resolves the
// provisioning race, and the view counter is incremented in a single UPDATE.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// The pragmas ride in the DSN so they apply to every connection in the pool:
// foreign_keys and busy_timeout are per-connection settings, and an Exec after
// Open would only reach whichever connection happened to serve it.
func New(dbPath string) (*DB, error) {
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// users.external_id is UNIQUE — exactly one row per identity-provider
	// subject. Provision relies on this index (INSERT OR IGNORE).
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL,
			first_name  TEXT NOT NULL DEFAULT '',
			last_name   TEXT NOT NULL DEFAULT '',
			avatar_url  TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL DEFAULT 'user',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		-- Partial: accounts with no visible email all store '' and must not
		-- collide with each other.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id                 TEXT PRIMARY KEY,
			title              TEXT NOT NULL,
			excerpt            TEXT NOT NULL,
			category           TEXT NOT NULL,
			content            TEXT NOT NULL,
			date               TEXT NOT NULL,
			read_time          TEXT NOT NULL,
			author_name        TEXT NOT NULL,
			author_avatar      TEXT NOT NULL DEFAULT '',
			author_external_id TEXT NOT NULL,
			image_url          TEXT NOT NULL,
			views              INTEGER NOT NULL DEFAULT 0,
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_posts_author_external_id ON posts(author_external_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	// Favorites are stored on the user side only; no FK to posts so that
	// deleting a post can leave dangling references (filtered on expansion).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_favorites (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			post_id  TEXT NOT NULL,
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, post_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_favorites table: %w", err)
	}

	return nil
}
