package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx, d dialect) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx, d dialect) error {
			schema := sqliteSchemaV1
			if d == dialectPostgres {
				schema = postgresSchemaV1
			}
			_, err := tx.Exec(schema)
			return err
		},
	},
	{
		Version:     2,
		Description: "settings table",
		Up: func(tx *sql.Tx, _ dialect) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`)
			return err
		},
	},
}

// Folders deliberately carry no foreign keys: deleting a folder leaves its
// feeds in place.
const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS folders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feeds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    xml_url TEXT NOT NULL,
    html_url TEXT NOT NULL DEFAULT '',
    folder_id INTEGER NOT NULL,
    image_url TEXT,
    brand_color TEXT,
    last_fetched_at INTEGER
);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    content TEXT,
    image_url TEXT,
    published_at INTEGER NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    is_starred INTEGER NOT NULL DEFAULT 0,
    is_paywalled INTEGER NOT NULL DEFAULT 0,
    read_at INTEGER,
    guid TEXT NOT NULL,
    author TEXT,
    word_count INTEGER
);

CREATE INDEX IF NOT EXISTS idx_feeds_folder ON feeds(folder_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_guid ON posts(guid);
CREATE INDEX IF NOT EXISTS idx_posts_feed_published ON posts(feed_id, published_at);
CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_at);
CREATE INDEX IF NOT EXISTS idx_posts_starred ON posts(is_starred, published_at);
CREATE INDEX IF NOT EXISTS idx_posts_read ON posts(is_read, read_at);
`

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS folders (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feeds (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    xml_url TEXT NOT NULL,
    html_url TEXT NOT NULL DEFAULT '',
    folder_id BIGINT NOT NULL,
    image_url TEXT,
    brand_color TEXT,
    last_fetched_at BIGINT
);

CREATE TABLE IF NOT EXISTS posts (
    id BIGSERIAL PRIMARY KEY,
    feed_id BIGINT NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    content TEXT,
    image_url TEXT,
    published_at BIGINT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    is_starred BOOLEAN NOT NULL DEFAULT FALSE,
    is_paywalled BOOLEAN NOT NULL DEFAULT FALSE,
    read_at BIGINT,
    guid TEXT NOT NULL,
    author TEXT,
    word_count INTEGER
);

CREATE INDEX IF NOT EXISTS idx_feeds_folder ON feeds(folder_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_guid ON posts(guid);
CREATE INDEX IF NOT EXISTS idx_posts_feed_published ON posts(feed_id, published_at);
CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_at);
CREATE INDEX IF NOT EXISTS idx_posts_starred ON posts(is_starred, published_at);
CREATE INDEX IF NOT EXISTS idx_posts_read ON posts(is_read, read_at);
`

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
