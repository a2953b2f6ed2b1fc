// Package fetch retrieves session audio by path from the processing server
// or the local filesystem.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrFetch    = errors.New("fetch failed")
	ErrNotFound = errors.New("audio not found")
)

// Client resolves audio references to bytes.
//
// References take four forms: absolute filesystem paths, file:// URLs,
// http(s):// URLs, and paths relative to the server base URL. Server
// references of the form "/audio?path=<rel>" are read from the shared
// directory when the file is visible there.
type Client struct {
	baseURL  string
	apiKey   string
	audioDir string // shared volume mount point
	http     *http.Client
}

// NewClient creates a fetch client.
func NewClient(baseURL, apiKey, audioDir string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		audioDir: audioDir,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// WaitForHealthy blocks until the server answers GET /health with 200 or
// ctx is done.
func (c *Client) WaitForHealthy(ctx context.Context, interval time.Duration) error {
	log.Printf("fetch: waiting for %s to be ready", c.baseURL)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				log.Printf("fetch: %s is healthy", c.baseURL)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Fetch returns the bytes behind ref.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrFetch)
	}
	if p, ok := c.localPath(ref); ok {
		return readFile(p)
	}
	return c.download(ctx, ref)
}

// FetchAll fetches refs concurrently and returns their bytes in order.
func (c *Client) FetchAll(ctx context.Context, refs ...string) ([][]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([][]byte, len(refs))
	for i, ref := range refs {
		g.Go(func() error {
			b, err := c.Fetch(ctx, ref)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) localPath(ref string) (string, bool) {
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err == nil {
			return u.Path, true
		}
	}
	if filepath.IsAbs(ref) {
		if _, err := os.Stat(ref); err == nil || c.baseURL == "" {
			return ref, true
		}
	}
	if c.audioDir != "" {
		if u, err := url.Parse(ref); err == nil {
			if rel := u.Query().Get("path"); rel != "" {
				p := filepath.Join(c.audioDir, filepath.Clean("/"+rel))
				if _, err := os.Stat(p); err == nil {
					return p, true
				}
			}
		}
	}
	if c.baseURL == "" {
		return ref, true
	}
	return "", false
}

func readFile(p string) ([]byte, error) {
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return b, nil
}

func (c *Client) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.baseURL + "/" + strings.TrimPrefix(ref, "/")
}

func (c *Client) download(ctx context.Context, ref string) ([]byte, error) {
	u := c.resolve(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, u, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFetch, u, err)
	}
	return b, nil
}
