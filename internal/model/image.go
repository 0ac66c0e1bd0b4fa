package model

import (
	"fmt"
	"strings"
	"time"
)

// AllDays is the reserved day key of the flat, non-bucketed listing.
const AllDays = ""

// ImageRecord is one image as served by the backend.
type ImageRecord struct {
	Filename   string         `json:"filename" validate:"required"`
	URL        string         `json:"url" validate:"required"`
	UploadTime string         `json:"upload_time"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Day        string         `json:"day,omitempty"` // Day bucket, when the producer knows it
}

// DaySummary describes one day bucket.
type DaySummary struct {
	Day              string `json:"day" validate:"required"`
	Count            int    `json:"count" validate:"min=0"`
	LatestUploadTime string `json:"latest_upload_time"`
}

// CapturedAt returns metadata.captured_at as display text, or "" when absent.
func (r ImageRecord) CapturedAt() string {
	return r.MetaString("captured_at")
}

// MetaString formats a metadata value for display. Missing and null values
// yield "".
func (r ImageRecord) MetaString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DayKey resolves the day bucket of the record: the explicit day, then the
// uploads/<YYYYMMDD>/ path segment of the url, then the date part of
// upload_time. Returns "" when none applies.
func (r ImageRecord) DayKey() string {
	if r.Day != "" {
		return r.Day
	}
	if day := dayFromURL(r.URL); day != "" {
		return day
	}
	return DayFromTimestamp(r.UploadTime)
}

func dayFromURL(url string) string {
	parts := strings.Split(url, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "uploads" && IsDayKey(parts[i+1]) {
			return parts[i+1]
		}
	}
	return ""
}

// DayFromTimestamp converts "YYYY-MM-DD[ HH:MM:SS]" (or the EXIF form
// "YYYY:MM:DD ...") into "YYYYMMDD".
func DayFromTimestamp(ts string) string {
	if len(ts) < 10 {
		return ""
	}
	date := ts[:10]
	if date[4] != date[7] || (date[4] != '-' && date[4] != ':') {
		return ""
	}
	key := date[:4] + date[5:7] + date[8:10]
	if !IsDayKey(key) {
		return ""
	}
	return key
}

// IsDayKey reports whether s is a YYYYMMDD key of a real calendar date.
// Year zero, the EXIF "unknown date", is rejected.
func IsDayKey(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	t, err := time.Parse("20060102", s)
	return err == nil && t.Year() > 0
}
