package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"imggrab/pkg/logger"
)

// RecordFileName is the per-directory record of downloaded URLs.
const RecordFileName = "_downloaded_urls.txt"

// Ledger tracks downloaded URLs and reserved filenames for one output
// directory. Single writer; not safe for concurrent use.
type Ledger struct {
	dir    string
	engine string

	known map[string]struct{} // URLs recorded this session or in prior runs
	names map[string]struct{} // filenames reserved this session or on disk

	nextIndex int
	record    *os.File
	writer    *bufio.Writer
	log       logger.Logger
}

// Open acquires the ledger for a directory, creating the directory if needed.
// The record file being absent means no prior downloads; an unwritable
// directory is an error.
func Open(dir, engine string, log logger.Logger) (*Ledger, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	l := &Ledger{
		dir:       dir,
		engine:    engine,
		known:     make(map[string]struct{}),
		names:     make(map[string]struct{}),
		nextIndex: 1,
		log:       log,
	}

	if err := l.loadRecord(); err != nil {
		return nil, err
	}
	if err := l.scanExistingNames(); err != nil {
		return nil, err
	}

	recordPath := filepath.Join(dir, RecordFileName)
	f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	l.record = f
	l.writer = bufio.NewWriter(f)

	return l, nil
}

// loadRecord reads the persisted URL record into the in-memory set.
// Malformed lines are skipped with a warning, never fatal.
func (l *Ledger) loadRecord() error {
	f, err := os.Open(filepath.Join(l.dir, RecordFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no prior downloads
		}
		return fmt.Errorf("failed to read record file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !validRecordLine(line) {
			l.log.WarnWithFields("skipping malformed record line", map[string]interface{}{
				"dir":  l.dir,
				"line": lineNum,
			})
			continue
		}
		l.known[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		// A truncated trailing line is not fatal; keep what was loaded.
		l.log.WithError(err).Warn("record file partially read")
	}

	return nil
}

// validRecordLine rejects lines that cannot be URL keys: binary garbage,
// embedded NULs, or invalid UTF-8 from a torn write.
func validRecordLine(line string) bool {
	if !utf8.ValidString(line) {
		return false
	}
	for _, r := range line {
		if r < 0x20 {
			return false
		}
	}
	return true
}

// scanExistingNames records the filenames already present on disk so that
// ReserveName never hands one of them out.
func (l *Ledger) scanExistingNames() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == RecordFileName {
			continue
		}
		l.names[entry.Name()] = struct{}{}
	}

	return nil
}

// IsKnown reports whether the URL was already downloaded into this directory.
func (l *Ledger) IsKnown(url string) bool {
	_, ok := l.known[url]
	return ok
}

// Record marks a URL as downloaded, appending it to the persisted record.
// Recording an already-known URL is a no-op.
func (l *Ledger) Record(url string) error {
	if url == "" {
		return nil
	}
	if _, ok := l.known[url]; ok {
		return nil
	}

	if _, err := l.writer.WriteString(url + "\n"); err != nil {
		return fmt.Errorf("failed to append to record file: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush record file: %w", err)
	}

	l.known[url] = struct{}{}
	return nil
}

// ReserveName returns a unique local filename for an accepted image. When
// keepOriginal is set and the sanitized suggestion does not collide with a
// name reserved this session or present on disk, the suggestion is kept
// (extension completed from the URL or content type). Otherwise the name
// follows the {engine}_{NNNN}{ext} pattern with the first unused index.
func (l *Ledger) ReserveName(suggested, srcURL string, keepOriginal bool, contentType string) string {
	sanitized := SanitizeFilename(suggested)
	ext := BestExtension(sanitized, srcURL, contentType)

	if keepOriginal && suggested != "" {
		name := sanitized
		if filepath.Ext(name) == "" {
			name += ext
		}
		if _, taken := l.names[name]; !taken {
			l.names[name] = struct{}{}
			return name
		}
	}

	for {
		name := fmt.Sprintf("%s_%04d%s", l.engine, l.nextIndex, ext)
		l.nextIndex++
		if _, taken := l.names[name]; !taken {
			l.names[name] = struct{}{}
			return name
		}
	}
}

// Dir returns the directory this ledger is scoped to.
func (l *Ledger) Dir() string {
	return l.dir
}

// KnownCount returns the number of recorded URLs.
func (l *Ledger) KnownCount() int {
	return len(l.known)
}

// Close flushes and releases the persisted record file. Safe to call after
// a failed run; always defer it after a successful Open.
func (l *Ledger) Close() error {
	if l.record == nil {
		return nil
	}
	flushErr := l.writer.Flush()
	closeErr := l.record.Close()
	l.record = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush record file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close record file: %w", closeErr)
	}
	return nil
}
