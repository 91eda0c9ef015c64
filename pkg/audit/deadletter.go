package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const deadLetterFile = "audit-deadletter.ndjson"

// FileDeadLetter spools events that could not be persisted to a local
// newline-delimited JSON file so they can be replayed later.
type FileDeadLetter struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
}

// DeadLetterConfig configures the dead-letter file
type DeadLetterConfig struct {
	BasePath string // Directory for the spool files
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultDeadLetterConfig returns default configuration
func DefaultDeadLetterConfig() DeadLetterConfig {
	return DeadLetterConfig{
		BasePath: "/var/lib/warden/audit",
		MaxSize:  100 * 1024 * 1024, // 100MB
		MaxFiles: 10,
	}
}

// NewFileDeadLetter opens (or creates) the spool file under config.BasePath
func NewFileDeadLetter(config DeadLetterConfig) (*FileDeadLetter, error) {
	if err := os.MkdirAll(config.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create dead-letter directory: %w", err)
	}

	dl := &FileDeadLetter{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if dl.maxSize == 0 {
		dl.maxSize = 100 * 1024 * 1024
	}
	if dl.maxFiles == 0 {
		dl.maxFiles = 10
	}

	if err := dl.openFile(); err != nil {
		return nil, err
	}
	return dl, nil
}

func (d *FileDeadLetter) path() string {
	return filepath.Join(d.basePath, deadLetterFile)
}

func (d *FileDeadLetter) openFile() error {
	if info, err := os.Stat(d.path()); err == nil && info.Size() >= d.maxSize {
		if err := d.rotateFile(); err != nil {
			return fmt.Errorf("failed to rotate dead-letter file: %w", err)
		}
	}

	file, err := os.OpenFile(d.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("failed to open dead-letter file: %w", err)
	}

	d.file = file
	d.encoder = json.NewEncoder(file)
	return nil
}

func (d *FileDeadLetter) rotateFile() error {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}

	timestamp := time.Now().UTC().Format("2006-01-02-15-04-05.000")
	rotated := filepath.Join(d.basePath, fmt.Sprintf("audit-deadletter-%s.ndjson", timestamp))
	if err := os.Rename(d.path(), rotated); err != nil {
		return fmt.Errorf("failed to rename dead-letter file: %w", err)
	}

	return d.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles. The
// timestamped names sort chronologically.
func (d *FileDeadLetter) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(d.basePath, "audit-deadletter-*.ndjson"))
	if err != nil {
		return err
	}
	if len(files) <= d.maxFiles {
		return nil
	}

	sort.Strings(files)
	for _, file := range files[:len(files)-d.maxFiles] {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

// Write appends the event to the spool
func (d *FileDeadLetter) Write(event *AuditEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return fmt.Errorf("dead-letter file is closed")
	}

	if info, err := d.file.Stat(); err == nil && info.Size() >= d.maxSize {
		if err := d.openFile(); err != nil {
			return err
		}
	}

	if err := d.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write dead-letter event: %w", err)
	}
	return nil
}

// ReadEvents reads up to count spooled events from the active file; count
// <= 0 reads all of them.
func (d *FileDeadLetter) ReadEvents(count int) ([]*AuditEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return readEventsFile(d.path(), count)
}

func readEventsFile(filename string, count int) ([]*AuditEvent, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter file: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode dead-letter entry: %w", err)
		}
		events = append(events, &event)

		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}

// Replay appends every spooled event to w in order and truncates the spool
// once all of them were written. On failure nothing is truncated, so a
// later replay may write some events twice.
func (d *FileDeadLetter) Replay(ctx context.Context, w Writer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	events, err := readEventsFile(d.path(), 0)
	if err != nil {
		return 0, err
	}

	for i, event := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		event.ID = 0
		if err := w.Append(ctx, event); err != nil {
			return i, fmt.Errorf("failed to replay event %d: %w", i, err)
		}
	}

	if err := d.file.Truncate(0); err != nil {
		return len(events), fmt.Errorf("failed to truncate dead-letter file: %w", err)
	}
	return len(events), nil
}

// Close closes the spool file
func (d *FileDeadLetter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
