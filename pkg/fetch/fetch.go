// Package fetch downloads model pickles from remote storage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// storageURL is the Supabase project URL used when a source is created
// without one.
var storageURL = ""

func init() {
	if u := os.Getenv("SUPABASE_URL"); u != "" {
		storageURL = u
	}
}

// Source retrieves a named object into a destination directory.
type Source interface {
	// Fetch downloads name into destination and returns where it was written.
	Fetch(ctx context.Context, name, destination string) (*Result, error)
}

// Result describes a downloaded file.
type Result struct {
	Path  string
	Bytes int64
}

// Fetcher runs downloads through a Source.
type Fetcher struct {
	source Source
}

// New creates a Fetcher with the given Source.
func New(source Source) *Fetcher {
	return &Fetcher{source: source}
}

// Fetch downloads name into destination.
func (f *Fetcher) Fetch(ctx context.Context, name, destination string) (*Result, error) {
	if name == "" {
		return nil, fmt.Errorf("object name is empty")
	}
	return f.source.Fetch(ctx, name, destination)
}

// SupabaseSource reads objects from a Supabase storage bucket.
type SupabaseSource struct {
	client  *http.Client
	baseURL string
	bucket  string
	key     string
}

// NewSupabaseSource creates a source for bucket. An empty baseURL falls back
// to SUPABASE_URL; an empty key sends no authorization header.
func NewSupabaseSource(baseURL, bucket, key string) *SupabaseSource {
	if baseURL == "" {
		baseURL = storageURL
	}
	return &SupabaseSource{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		key:     key,
	}
}

// ObjectURL returns the download URL of name.
func (s *SupabaseSource) ObjectURL(name string) string {
	return s.baseURL + "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + escapePath(name)
}

func escapePath(name string) string {
	parts := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Fetch downloads name from the bucket into destination.
func (s *SupabaseSource) Fetch(ctx context.Context, name, destination string) (*Result, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("storage URL is not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ObjectURL(name), nil)
	if err != nil {
		return nil, err
	}
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("apikey", s.key)
	}

	path := filepath.Join(destination, filepath.Base(name))
	n, err := downloadFile(s.client, req, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from bucket %s: %w", name, s.bucket, err)
	}
	return &Result{Path: path, Bytes: n}, nil
}

// downloadFile writes the response body of req to filePath. The body goes to
// a temporary file first so a failed transfer never replaces an existing
// file.
func downloadFile(client *http.Client, req *http.Request, filePath string) (n int64, err error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download file from %s: %w", req.URL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close response body for %s: %w", req.URL, cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download file from %s: status code %s", req.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file %s: %w", filePath, err)
	}
	if err = os.Rename(tmp.Name(), filePath); err != nil {
		return 0, fmt.Errorf("failed to move file to %s: %w", filePath, err)
	}
	return n, nil
}
