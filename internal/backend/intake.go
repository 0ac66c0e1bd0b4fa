package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"galleryview/internal/httperr"
	"galleryview/internal/logger"
	"galleryview/internal/model"

	"github.com/rwcarlsen/goexif/exif"
)

// TimeLayout is the display format of upload and capture times.
const TimeLayout = "2006-01-02 15:04:05"

// Publisher announces new uploads to push subscribers.
type Publisher interface {
	Publish(rec model.ImageRecord)
}

// Intake stores uploaded JPEGs under <dir>/<YYYYMMDD>/ and indexes them.
type Intake struct {
	Dir       string
	Prefix    string // public URL prefix of Dir
	Store     *Store
	Publisher Publisher
	Now       func() time.Time
	logger    *logger.Logger
	mu        sync.Mutex // serializes picking a free name and indexing it; never held while publishing
}

func NewIntake(dir, prefix string, store *Store, publisher Publisher, logger *logger.Logger) *Intake {
	return &Intake{
		Dir:       dir,
		Prefix:    strings.TrimRight(prefix, "/"),
		Store:     store,
		Publisher: publisher,
		Now:       time.Now,
		logger:    logger,
	}
}

// Receive validates and stores one upload. The day folder comes from the
// capture time in the EXIF data, or today when there is none.
func (in *Intake) Receive(ctx context.Context, name string, data []byte) (*Image, error) {
	if name == "" {
		return nil, httperr.New(http.StatusBadRequest, "No selected file")
	}
	if !isJPEG(name) {
		return nil, httperr.New(http.StatusBadRequest, "Invalid file type")
	}
	filename := SanitizeFilename(name)
	if filename == "" || !isJPEG(filename) {
		return nil, httperr.New(http.StatusBadRequest, "Invalid file name")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	captured := CapturedAt(data)
	day := model.DayFromTimestamp(captured)
	if day == "" {
		day = in.Now().Format("20060102")
	}

	dayDir := filepath.Join(in.Dir, day)
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create day directory: %w", err)
	}

	img, err := in.store(dayDir, filename, day, captured, data)
	if err != nil {
		return nil, err
	}
	in.logger.Info("Stored %s (%d bytes) in %s", img.Filename, img.FileSize, day)

	if in.Publisher != nil {
		in.Publisher.Publish(img.Record())
	}
	return img, nil
}

// store writes data under a free name in dayDir and indexes it.
func (in *Intake) store(dayDir, filename, day, captured string, data []byte) (*Image, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	finalPath, err := in.write(dayDir, filename, data)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Filename:   filepath.Base(finalPath),
		Day:        day,
		URL:        path.Join(in.Prefix, day, filepath.Base(finalPath)),
		UploadTime: in.Now().Format(TimeLayout),
		CapturedAt: captured,
		FileSize:   int64(len(data)),
	}
	if _, err := in.Store.Insert(img); err != nil {
		os.Remove(finalPath)
		return nil, err
	}
	return img, nil
}

// write stores data under a free name in dir: first as <name>.part, then
// renamed into place.
func (in *Intake) write(dir, filename string, data []byte) (string, error) {
	finalPath := dedupePath(dir, filename)
	tmpPath := finalPath + ".part"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move upload into place: %w", err)
	}
	return finalPath, nil
}

// dedupePath returns dir/filename, or dir/name_N.ext for the first N that is
// not taken.
func dedupePath(dir, filename string) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	candidate := filepath.Join(dir, filename)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = filepath.Join(dir, name+"_"+strconv.Itoa(i)+ext)
	}
}

func isJPEG(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// SanitizeFilename reduces name to a safe base name of ASCII letters,
// digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(name), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "._")
}

// CapturedAt reads the capture time of a JPEG: a "CapturedAt=..." image
// description first, then DateTimeOriginal. It returns "" when neither is
// present.
func CapturedAt(data []byte) string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if tag, err := x.Get(exif.ImageDescription); err == nil {
		if desc, err := tag.StringVal(); err == nil {
			k, v, ok := strings.Cut(strings.Trim(desc, "\x00 \t\r\n"), "=")
			if ok && strings.TrimSpace(k) == "CapturedAt" {
				return strings.TrimSpace(v)
			}
		}
	}
	if tag, err := x.Get(exif.DateTimeOriginal); err == nil {
		if s, err := tag.StringVal(); err == nil {
			return strings.Trim(s, "\x00 \t\r\n")
		}
	}
	return ""
}
