package settings

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteImage keeps the byte image as a single blob row in SQLite.
type SQLiteImage struct {
	db    *sql.DB
	image []byte
}

// OpenSQLiteImage opens (or creates) the database at path and loads the image.
func OpenSQLiteImage(path string, size int) (*SQLiteImage, error) {
	if size < RecordSize {
		return nil, fmt.Errorf("image size %d smaller than record", size)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS eeprom (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			image BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create eeprom table: %w", err)
	}

	img := erased(size)
	var stored []byte
	err = db.QueryRow(`SELECT image FROM eeprom WHERE id = 1`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("load eeprom image: %w", err)
	default:
		copy(img, stored)
	}

	return &SQLiteImage{db: db, image: img}, nil
}

// ReadBytes returns a copy of the staged image range.
func (s *SQLiteImage) ReadBytes(offset, length int) ([]byte, error) {
	if err := checkRange(offset, length, len(s.image)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s.image[offset:])
	return out, nil
}

// WriteBytes stages data into the image.
func (s *SQLiteImage) WriteBytes(offset int, data []byte) error {
	if err := checkRange(offset, len(data), len(s.image)); err != nil {
		return err
	}
	copy(s.image[offset:], data)
	return nil
}

// Commit upserts the whole image.
func (s *SQLiteImage) Commit() error {
	_, err := s.db.Exec(`
		INSERT INTO eeprom (id, image) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET image = excluded.image
	`, s.image)
	if err != nil {
		return fmt.Errorf("commit eeprom image: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteImage) Close() error {
	return s.db.Close()
}
