package expense

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage holds proof attachments. Paths returned by Save are opaque keys
// the store records on the expense; the blob backend behind them is
// interchangeable.
type Storage interface {
	// Save stores data for a proof payed on the given date and returns
	// the storage path.
	Save(payedOn time.Time, filename string, data []byte) (string, error)

	// Get retrieves a proof by path.
	Get(path string) ([]byte, error)

	// Delete removes a proof.
	Delete(path string) error
}

// LocalStorage implements Storage on the local filesystem, grouping proofs
// in one directory per payment date.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save stores a proof under <base>/<yyyy-mm-dd>/<filename>. A name already
// taken on that date gets a numeric suffix; paths stay unique so reference
// counting never mixes up two proofs.
func (l *LocalStorage) Save(payedOn time.Time, filename string, data []byte) (string, error) {
	dir := payedOn.Format("2006-01-02")
	if err := os.MkdirAll(filepath.Join(l.basePath, dir), 0755); err != nil {
		return "", fmt.Errorf("creating proof directory: %w", err)
	}

	name := filepath.Base(filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	rel := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(l.basePath, rel)); errors.Is(err, os.ErrNotExist) {
			break
		}
		rel = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}

	if err := os.WriteFile(filepath.Join(l.basePath, rel), data, 0644); err != nil {
		return "", fmt.Errorf("writing proof: %w", err)
	}
	return rel, nil
}

// Get retrieves a proof by the path Save returned.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading proof: %w", err)
	}
	return data, nil
}

// Delete removes a proof.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting proof: %w", err)
	}
	return nil
}
