package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"galleryview/internal/model"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// NetworkFailure: the request could not be completed or the backend
	// answered with a non-success status.
	NetworkFailure Kind = iota + 1
	// ParseFailure: the body is not JSON of the expected shape.
	ParseFailure
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case ParseFailure:
		return "parse failure"
	default:
		return "unknown failure"
	}
}

var (
	ErrNetwork = errors.New("network failure")
	ErrParse   = errors.New("parse failure")
)

// FetchError is returned by every APIClient call that fails.
type FetchError struct {
	Kind   Kind
	Op     string
	Status int // HTTP status when the backend answered, 0 otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match the ErrNetwork and ErrParse sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == NetworkFailure
	case ErrParse:
		return e.Kind == ParseFailure
	}
	return false
}

// APIClient handles all communication with the gallery backend.
type APIClient struct {
	BaseURL    string
	HttpClient *http.Client
	validate   *validator.Validate
}

// New creates a client for the backend at baseURL. A zero timeout leaves
// requests bounded only by the caller's context.
func New(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		BaseURL:    baseURL,
		HttpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ListDays fetches the day buckets (GET /get-days).
func (c *APIClient) ListDays(ctx context.Context) ([]model.DaySummary, error) {
	var days []model.DaySummary
	if err := c.getJSON(ctx, "list days", "/get-days", &days); err != nil {
		return nil, err
	}
	if err := validateAll(c, "list days", days); err != nil {
		return nil, err
	}
	if days == nil {
		days = []model.DaySummary{}
	}
	return days, nil
}

// ListImages fetches the images of one day (GET /get-images-by-day?day=).
func (c *APIClient) ListImages(ctx context.Context, day string) ([]model.ImageRecord, error) {
	path := "/get-images-by-day?day=" + url.QueryEscape(day)
	return c.listImages(ctx, "list images", path)
}

// ListAll fetches the flat listing of every image (GET /get-images).
func (c *APIClient) ListAll(ctx context.Context) ([]model.ImageRecord, error) {
	return c.listImages(ctx, "list all images", "/get-images")
}

func (c *APIClient) listImages(ctx context.Context, op, path string) ([]model.ImageRecord, error) {
	var images []model.ImageRecord
	if err := c.getJSON(ctx, op, path, &images); err != nil {
		return nil, err
	}
	if err := validateAll(c, op, images); err != nil {
		return nil, err
	}
	if images == nil {
		images = []model.ImageRecord{}
	}
	return images, nil
}

// getJSON is the single helper for backend GET requests.
func (c *APIClient) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return &FetchError{Kind: NetworkFailure, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return &FetchError{Kind: NetworkFailure, Op: op, Err: fmt.Errorf("backend unavailable: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &FetchError{
			Kind:   NetworkFailure,
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: ParseFailure, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func validateAll[T any](c *APIClient, op string, items []T) error {
	for i := range items {
		if err := c.validate.Struct(items[i]); err != nil {
			return &FetchError{Kind: ParseFailure, Op: op, Err: fmt.Errorf("item %d: %w", i, err)}
		}
	}
	return nil
}
