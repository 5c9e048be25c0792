package database

import (
	"fmt"
)

// CreateFolder inserts a folder at the given display order.
func (db *DB) CreateFolder(name string, order int) (int64, error) {
	var id int64
	err := db.queryRow(
		"INSERT INTO folders (name, sort_order) VALUES (?, ?) RETURNING id",
		name, order,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating folder %q: %w", name, err)
	}
	return id, nil
}

// AppendFolder inserts a folder after all existing ones.
func (db *DB) AppendFolder(name string) (int64, error) {
	var count int
	if err := db.queryRow("SELECT COUNT(*) FROM folders").Scan(&count); err != nil {
		return 0, err
	}
	return db.CreateFolder(name, count)
}

// ListFolders returns all folders by display order.
func (db *DB) ListFolders() ([]Folder, error) {
	rows, err := db.query("SELECT id, name, sort_order FROM folders ORDER BY sort_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Order); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// ReorderFolders sets each listed folder's order to its index.
func (db *DB) ReorderFolders(ids []int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := db.rebind("UPDATE folders SET sort_order = ? WHERE id = ?")
	for i, id := range ids {
		if _, err := tx.Exec(stmt, i, id); err != nil {
			return fmt.Errorf("reordering folder %d: %w", id, err)
		}
	}
	return tx.Commit()
}
