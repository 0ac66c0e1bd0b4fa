package backend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"galleryview/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Image is one indexed upload.
type Image struct {
	ID         int64
	Filename   string
	Day        string
	URL        string
	UploadTime string // "YYYY-MM-DD HH:MM:SS", local time
	CapturedAt string
	FileSize   int64
}

// Record converts the row into the wire form served to viewers.
func (img Image) Record() model.ImageRecord {
	var captured any
	if img.CapturedAt != "" {
		captured = img.CapturedAt
	}
	return model.ImageRecord{
		Filename:   img.Filename,
		URL:        img.URL,
		UploadTime: img.UploadTime,
		Metadata:   map[string]any{"captured_at": captured},
		Day:        img.Day,
	}
}

// Store wraps the SQLite index with thread-safe access.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// OpenStore creates and initializes the SQLite index at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		day TEXT NOT NULL,
		url TEXT NOT NULL,
		upload_time TEXT NOT NULL,
		captured_at TEXT NOT NULL DEFAULT '',
		filesize INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(day, filename)
	);

	CREATE INDEX IF NOT EXISTS idx_images_day ON images(day);
	CREATE INDEX IF NOT EXISTS idx_images_upload_time ON images(upload_time);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Insert adds an image to the index.
func (s *Store) Insert(img *Image) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.conn.Exec(`
		INSERT INTO images (filename, day, url, upload_time, captured_at, filesize)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.Filename, img.Day, img.URL, img.UploadTime, img.CapturedAt, img.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read image id: %w", err)
	}
	img.ID = id
	return id, nil
}

// Exists checks if day already holds an image named filename.
func (s *Store) Exists(day, filename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM images WHERE day = ? AND filename = ?`, day, filename).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check image existence: %w", err)
	}
	return count > 0, nil
}

// ListDays returns one summary per day, newest day first.
func (s *Store) ListDays() ([]model.DaySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT day, COUNT(*), MAX(upload_time)
		FROM images
		GROUP BY day
		ORDER BY day DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query days: %w", err)
	}
	defer rows.Close()

	days := make([]model.DaySummary, 0)
	for rows.Next() {
		var d model.DaySummary
		if err := rows.Scan(&d.Day, &d.Count, &d.LatestUploadTime); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read days: %w", err)
	}
	return days, nil
}

// ListByDay returns the images of day, newest upload first.
func (s *Store) ListByDay(day string) ([]Image, error) {
	return s.query(`WHERE day = ?`, day)
}

// ListAll returns every image, newest upload first.
func (s *Store) ListAll() ([]Image, error) {
	return s.query(``)
}

func (s *Store) query(where string, args ...interface{}) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT id, filename, day, url, upload_time, captured_at, filesize
		FROM images `+where+`
		ORDER BY upload_time DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	images := make([]Image, 0)
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Day, &img.URL, &img.UploadTime, &img.CapturedAt, &img.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read images: %w", err)
	}
	return images, nil
}
