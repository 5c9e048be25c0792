package database

import (
	"database/sql"
	"errors"
	"fmt"
)

const feedColumns = "id, title, xml_url, html_url, folder_id, image_url, brand_color, last_fetched_at"

// CreateFeed inserts a feed into a folder.
func (db *DB) CreateFeed(title, xmlURL, htmlURL string, folderID int64) (int64, error) {
	var id int64
	err := db.queryRow(
		"INSERT INTO feeds (title, xml_url, html_url, folder_id) VALUES (?, ?, ?, ?) RETURNING id",
		title, xmlURL, htmlURL, folderID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating feed %s: %w", xmlURL, err)
	}
	return id, nil
}

// GetFeed returns the feed, or nil if it does not exist.
func (db *DB) GetFeed(id int64) (*Feed, error) {
	var f Feed
	err := db.queryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", id).Scan(
		&f.ID, &f.Title, &f.XMLURL, &f.HTMLURL, &f.FolderID, &f.ImageURL, &f.BrandColor, &f.LastFetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFeeds returns all feeds by ID.
func (db *DB) ListFeeds() ([]Feed, error) {
	rows, err := db.query("SELECT " + feedColumns + " FROM feeds ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.Title, &f.XMLURL, &f.HTMLURL, &f.FolderID, &f.ImageURL, &f.BrandColor, &f.LastFetchedAt); err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// UpdateFeedImage sets the feed image unless one is already stored.
func (db *DB) UpdateFeedImage(id int64, imageURL string) error {
	_, err := db.exec("UPDATE feeds SET image_url = ? WHERE id = ? AND image_url IS NULL", imageURL, id)
	return err
}

// UpdateFeedBrandColor sets the brand color unless one is already stored.
func (db *DB) UpdateFeedBrandColor(id int64, color string) error {
	_, err := db.exec("UPDATE feeds SET brand_color = ? WHERE id = ? AND brand_color IS NULL", color, id)
	return err
}

// StampFeedFetched records when the feed was last refreshed (epoch ms).
func (db *DB) StampFeedFetched(id int64, at int64) error {
	_, err := db.exec("UPDATE feeds SET last_fetched_at = ? WHERE id = ?", at, id)
	return err
}

// DeleteFeed removes a feed and its posts.
func (db *DB) DeleteFeed(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(db.rebind("DELETE FROM posts WHERE feed_id = ?"), id); err != nil {
		return fmt.Errorf("deleting posts of feed %d: %w", id, err)
	}
	res, err := tx.Exec(db.rebind("DELETE FROM feeds WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting feed %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// GetStats counts folders, feeds, and posts.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	err := db.queryRow(`SELECT
		(SELECT COUNT(*) FROM folders),
		(SELECT COUNT(*) FROM feeds),
		(SELECT COUNT(*) FROM posts),
		(SELECT COUNT(*) FROM posts WHERE is_read = ?),
		(SELECT COUNT(*) FROM posts WHERE is_starred = ?)`,
		false, true,
	).Scan(&s.Folders, &s.Feeds, &s.Posts, &s.Unread, &s.Starred)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
