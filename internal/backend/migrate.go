package backend

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"galleryview/internal/logger"
	"galleryview/internal/model"
)

// IndexResult summarizes an Index run.
type IndexResult struct {
	Added   int
	Skipped int
	Failed  int
}

// Index walks dir and adds every JPEG missing from the store. Files in a
// <YYYYMMDD> folder keep that day; others are bucketed by capture time, then
// modification time.
func Index(ctx context.Context, store *Store, dir, prefix string, logger *logger.Logger) (IndexResult, error) {
	var res IndexResult
	prefix = strings.TrimRight(prefix, "/")

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isJPEG(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warning("Failed to get info for %s: %v", p, err)
			res.Failed++
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Warning("Failed to read %s: %v", p, err)
			res.Failed++
			return nil
		}

		captured := CapturedAt(data)
		day := filepath.Base(filepath.Dir(p))
		if !model.IsDayKey(day) {
			day = model.DayFromTimestamp(captured)
		}
		if day == "" {
			day = info.ModTime().Format("20060102")
		}

		exists, err := store.Exists(day, d.Name())
		if err != nil {
			return err
		}
		if exists {
			res.Skipped++
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		img := &Image{
			Filename:   d.Name(),
			Day:        day,
			URL:        path.Join(prefix, filepath.ToSlash(rel)),
			UploadTime: info.ModTime().Format(TimeLayout),
			CapturedAt: captured,
			FileSize:   info.Size(),
		}
		if _, err := store.Insert(img); err != nil {
			logger.Warning("Failed to index %s: %v", p, err)
			res.Failed++
			return nil
		}
		res.Added++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to index %s: %w", dir, err)
	}
	logger.Info("Indexed %s: %d added, %d already present, %d failed", dir, res.Added, res.Skipped, res.Failed)
	return res, nil
}
