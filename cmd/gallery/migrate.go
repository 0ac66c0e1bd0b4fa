package main

import (
	"fmt"

	"galleryview/internal/backend"

	"github.com/spf13/cobra"
)

var (
	migrateDir    string
	migrateDB     string
	migratePrefix string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Index existing images into the backend database",
	Long: `Walk an image directory and add every JPEG missing from the backend
database. Files in a YYYYMMDD folder keep that day; others are filed by their
EXIF capture time, then their modification time.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "images", "", "directory containing images (default UPLOAD_DIR)")
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "database path (default DB_PATH)")
	migrateCmd.Flags().StringVar(&migratePrefix, "prefix", "", "public URL prefix of the directory (default PUBLIC_PREFIX)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dir := firstNonEmpty(migrateDir, cfg.Backend.UploadDirectory)
	dbPath := firstNonEmpty(migrateDB, cfg.Backend.DatabasePath)
	prefix := firstNonEmpty(migratePrefix, cfg.Backend.PublicPrefix)

	fmt.Printf("Indexing images from %s into %s\n", dir, dbPath)
	store, err := backend.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := backend.Index(ctx, store, dir, prefix, log)
	if err != nil {
		return err
	}

	fmt.Printf("Added %d images\n", res.Added)
	if res.Skipped > 0 {
		fmt.Printf("Skipped %d images already indexed\n", res.Skipped)
	}
	if res.Failed > 0 {
		fmt.Printf("Failed to index %d files, see the warning log\n", res.Failed)
	}

	days, err := store.ListDays()
	if err != nil {
		return err
	}
	fmt.Printf("\nDays: %d\n", len(days))
	for _, d := range days {
		fmt.Printf("   - %s: %d images (latest %s)\n", d.Day, d.Count, d.LatestUploadTime)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
