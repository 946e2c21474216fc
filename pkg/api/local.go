package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/portfolioor/pkg/config"
)

// localImageStore keeps uploaded post images in a directory on disk. Image
// keys ("images/<name>") map to <dir>/<name>.
type localImageStore struct {
	log logrus.FieldLogger
	dir string
}

// newLocalImageStore creates the image directory if needed.
func newLocalImageStore(
	log logrus.FieldLogger,
	cfg *config.LocalStorageConfig,
) (*localImageStore, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	return &localImageStore{
		log: log.WithField("component", "local-images"),
		dir: dir,
	}, nil
}

// resolve maps an image key to its file path under the root.
func (l *localImageStore) resolve(key string) (string, error) {
	if !isAllowedImageKey(key) {
		return "", fmt.Errorf("%w: image key %q is not allowed", errValidation, key)
	}

	full := filepath.Join(l.dir, filepath.FromSlash(strings.TrimPrefix(key, imageKeyPrefix)))

	// Ensure the resolved path stays under the root.
	if !strings.HasPrefix(full, l.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: image key %q is not allowed", errValidation, key)
	}

	return full, nil
}

// ServeFile writes the image stored under key.
func (l *localImageStore) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	key string,
) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Errorf("image %w", errNotFound)
	}

	http.ServeFile(w, r, full)

	return nil
}

// Save writes an image under key. It refuses to overwrite an existing
// file.
func (l *localImageStore) Save(key string, body io.Reader) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: image %s already exists", errValidation, key)
		}

		return fmt.Errorf("creating image file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(full)

		return fmt.Errorf("writing image file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing image file: %w", err)
	}

	l.log.WithField("key", key).Debug("Stored image")

	return nil
}

// imageKeyForPath turns the wildcard part of /images/* into an image key.
func imageKeyForPath(p string) string {
	return imageKeyPrefix + p
}
