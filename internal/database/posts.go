package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DefaultPostLimit is used when a PostFilter has no limit.
const DefaultPostLimit = 200

// UpsertPosts stores a refresh batch. A post whose guid is new is inserted
// unread and unstarred. A post already stored (under any feed) only has
// its paywall flag updated, and only when it changed.
func (db *DB) UpsertPosts(feedID int64, posts []NewPost) (*UpsertResult, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lookup := db.rebind("SELECT id, is_paywalled FROM posts WHERE guid = ?")
	insert := db.rebind(`INSERT INTO posts
		(feed_id, title, url, content, image_url, published_at, is_read, is_starred, is_paywalled, guid, author, word_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	result := &UpsertResult{}
	for _, p := range posts {
		var id int64
		var paywalled bool
		err := tx.QueryRow(lookup, p.GUID).Scan(&id, &paywalled)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.Exec(insert,
				feedID, p.Title, p.URL, p.Content, p.ImageURL, p.PublishedAt,
				false, false, p.IsPaywalled, p.GUID, p.Author, p.WordCount,
			); err != nil {
				return nil, fmt.Errorf("inserting post %q: %w", p.GUID, err)
			}
			result.Inserted++
		case err != nil:
			return nil, fmt.Errorf("looking up post %q: %w", p.GUID, err)
		case paywalled != p.IsPaywalled:
			if err := db.patchPaywall(tx, id, p.IsPaywalled); err != nil {
				return nil, err
			}
			result.PaywallUpdated++
		default:
			result.Unchanged++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (db *DB) patchPaywall(ex execer, id int64, paywalled bool) error {
	if _, err := ex.Exec(db.rebind("UPDATE posts SET is_paywalled = ? WHERE id = ?"), paywalled, id); err != nil {
		return fmt.Errorf("updating paywall flag of post %d: %w", id, err)
	}
	return nil
}

// PatchPostPaywall sets a post's paywall flag.
func (db *DB) PatchPostPaywall(id int64, paywalled bool) error {
	return db.patchPaywall(db.conn, id, paywalled)
}

// GetPostByGUID returns the post with the given guid, or nil.
func (db *DB) GetPostByGUID(guid string) (*Post, error) {
	rows, err := db.query("SELECT "+postColumns("p")+", '', NULL, NULL, NULL FROM posts p WHERE p.guid = ?", guid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views, err := scanPostViews(rows)
	if err != nil || len(views) == 0 {
		return nil, err
	}
	return &views[0].Post, nil
}

// ListPosts returns posts with their feed's display fields, newest first.
// History is ordered by when posts were read.
func (db *DB) ListPosts(f PostFilter) ([]PostView, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPostLimit
	}

	query := "SELECT " + postColumns("p") + `,
		COALESCE(f.title, 'Unknown'), f.image_url, f.html_url, f.brand_color
		FROM posts p LEFT JOIN feeds f ON f.id = p.feed_id`
	var args []any
	order := "p.published_at DESC, p.id DESC"

	switch {
	case f.HistoryOnly:
		query += " WHERE p.is_read = ?"
		args = append(args, true)
		order = "p.read_at DESC, p.id DESC"
	case f.StarredOnly:
		query += " WHERE p.is_starred = ?"
		args = append(args, true)
	case f.FeedID != nil:
		query += " WHERE p.feed_id = ?"
		args = append(args, *f.FeedID)
	case f.FolderID != nil:
		query += " WHERE f.folder_id = ?"
		args = append(args, *f.FolderID)
	}
	query += " ORDER BY " + order + " LIMIT ?"
	args = append(args, limit)

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPostViews(rows)
}

// MarkPostRead marks a post read at the given time (epoch ms).
func (db *DB) MarkPostRead(id int64, at int64) error {
	res, err := db.exec("UPDATE posts SET is_read = ?, read_at = ? WHERE id = ?", true, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return nil
}

// ToggleStar flips a post's starred flag and returns the new value.
func (db *DB) ToggleStar(id int64) (bool, error) {
	var starred bool
	err := db.queryRow("SELECT is_starred FROM posts WHERE id = ?", id).Scan(&starred)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	if _, err := db.exec("UPDATE posts SET is_starred = ? WHERE id = ?", !starred, id); err != nil {
		return false, err
	}
	return !starred, nil
}

// MarkAllRead marks every post in scope read, or unread when unread is
// set. A nil feedID and folderID means all posts. Marking unread clears
// read_at. It returns the number of posts changed.
func (db *DB) MarkAllRead(feedID, folderID *int64, unread bool, at int64) (int64, error) {
	markRead := !unread
	var (
		set  string
		args []any
	)
	if markRead {
		set = "is_read = ?, read_at = ?"
		args = append(args, true, at)
	} else {
		set = "is_read = ?, read_at = NULL"
		args = append(args, false)
	}

	where := []string{"is_read = ?"}
	args = append(args, !markRead)
	switch {
	case feedID != nil:
		where = append(where, "feed_id = ?")
		args = append(args, *feedID)
	case folderID != nil:
		where = append(where, "feed_id IN (SELECT id FROM feeds WHERE folder_id = ?)")
		args = append(args, *folderID)
	}

	res, err := db.exec("UPDATE posts SET "+set+" WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func postColumns(alias string) string {
	cols := []string{"id", "feed_id", "title", "url", "content", "image_url", "published_at",
		"is_read", "is_starred", "is_paywalled", "read_at", "guid", "author", "word_count"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanPostViews(rows *sql.Rows) ([]PostView, error) {
	var views []PostView
	for rows.Next() {
		var v PostView
		var wordCount sql.NullInt64
		if err := rows.Scan(
			&v.ID, &v.FeedID, &v.Title, &v.URL, &v.Content, &v.ImageURL, &v.PublishedAt,
			&v.IsRead, &v.IsStarred, &v.IsPaywalled, &v.ReadAt, &v.GUID, &v.Author, &wordCount,
			&v.FeedTitle, &v.FeedImageURL, &v.FeedHTMLURL, &v.FeedBrandColor,
		); err != nil {
			return nil, err
		}
		if wordCount.Valid {
			wc := int(wordCount.Int64)
			v.WordCount = &wc
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
