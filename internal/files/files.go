// Package files downloads user uploads from the messenger to local storage.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSize caps a single download.
const DefaultMaxSize = 20 << 20

// ErrTooLarge is returned when a download exceeds the size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// URLResolver turns a messenger file id into a download URL.
type URLResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Store saves downloads under root/<subject id>/<name>.
type Store struct {
	root     string
	resolver URLResolver
	client   *http.Client
	maxSize  int64
	logger   *slog.Logger
}

// NewStore creates a file store rooted at root.
func NewStore(root string, resolver URLResolver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:     root,
		resolver: resolver,
		client:   &http.Client{Timeout: 60 * time.Second},
		maxSize:  DefaultMaxSize,
		logger:   logger.With("module", "files"),
	}
}

// Root returns the storage directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns where a subject's file named name is stored.
func (s *Store) Path(subjectID int64, name string) string {
	return filepath.Join(s.root, strconv.FormatInt(subjectID, 10), sanitize(name))
}

// Exists reports whether the file has been stored.
func (s *Store) Exists(subjectID int64, name string) bool {
	_, err := os.Stat(s.Path(subjectID, name))
	return err == nil
}

// Fetch downloads fileID and stores it as name for the subject, replacing
// an existing file. It returns the stored path.
func (s *Store) Fetch(ctx context.Context, subjectID int64, fileID, name string) (string, error) {
	url, err := s.resolver.FileURL(ctx, fileID)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("failed to close download body", "error", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", fileID, resp.StatusCode)
	}

	dst := s.Path(subjectID, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, s.maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	if n > s.maxSize {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, fileID)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store %s: %w", dst, err)
	}

	s.logger.Info("File stored", "user_id", subjectID, "path", dst, "bytes", n)
	return dst, nil
}

// sanitize keeps a file name inside its subject directory.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "file"
	}
	return name
}
