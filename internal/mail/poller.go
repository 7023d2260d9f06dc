package mail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Source hands over raw messages exactly once. Fetching from an actual
// mailbox (IMAP, a webhook queue) lives behind this seam.
type Source interface {
	Fetch(ctx context.Context) ([][]byte, error)
}

// DirSource reads .eml files dropped into a directory, renaming each one
// after pickup so a message is never processed twice.
type DirSource struct {
	dir string
}

// NewDirSource creates the directory if needed.
func NewDirSource(dir string) (*DirSource, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating mail directory: %w", err)
	}
	return &DirSource{dir: dir}, nil
}

// Fetch reads and claims every unprocessed .eml file.
func (d *DirSource) Fetch(ctx context.Context) ([][]byte, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading mail directory: %w", err)
	}

	var messages [][]byte
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		// Claim before handing over; a crash mid-batch must not replay.
		if err := os.Rename(path, path+".processed"); err != nil {
			return nil, fmt.Errorf("claiming %s: %w", entry.Name(), err)
		}
		messages = append(messages, data)
	}
	return messages, nil
}

// Poller periodically drains a Source through an Ingestor.
type Poller struct {
	source   Source
	ingestor *Ingestor
	interval time.Duration
}

// NewPoller creates a Poller.
func NewPoller(source Source, ingestor *Ingestor, interval time.Duration) *Poller {
	return &Poller{source: source, ingestor: ingestor, interval: interval}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	messages, err := p.source.Fetch(ctx)
	if err != nil {
		slog.Error("fetching mail failed", "error", err)
		return
	}
	for _, raw := range messages {
		if err := p.ingestor.Process(ctx, raw); err != nil {
			slog.Error("processing mail failed", "error", err)
		}
	}
}
