package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// ErrIndexOutOfRange is returned for record indices outside the store.
var ErrIndexOutOfRange = errors.New("record index out of range")

// renameFile is swapped in tests to simulate a crash before the rename.
var renameFile = os.Rename

// LoadStats describes what a load kept and dropped.
type LoadStats struct {
	Lines   int // non-blank lines read
	Loaded  int
	Skipped int
}

// Load reads a JSONL dataset. A missing file yields an empty slice; lines
// that are not valid records are skipped.
func Load(path string) ([]Record, error) {
	records, _, err := LoadWithStats(path)
	return records, err
}

// LoadWithStats is Load plus counts of kept and skipped lines.
func LoadWithStats(path string) ([]Record, LoadStats, error) {
	var stats LoadStats

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, stats, nil
		}
		return nil, stats, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	records := []Record{}
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if stats.Lines == 0 {
				line = bytes.TrimPrefix(line, []byte("\ufeff"))
			}
			if len(line) > 0 {
				stats.Lines++
				if rec, ok := parseLine(line); ok {
					records = append(records, rec)
					stats.Loaded++
				} else {
					stats.Skipped++
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, stats, fmt.Errorf("reading dataset: %w", readErr)
		}
	}

	return records, stats, nil
}

func parseLine(line []byte) (Record, bool) {
	if err := validateLine(line); err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

// Save atomically replaces path with records, one JSON object per line.
// Writers targeting the same path serialize on <path>.lock; the lock blocks
// without a timeout. Readers never observe a partially written file.
func Save(path string, records []Record) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving dataset path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dataset directory: %w", err)
	}

	lock := flock.New(abs + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking dataset: %w", err)
	}
	defer lock.Unlock()

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(abs)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for i, rec := range records {
		line, err := encode(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := renameFile(tmpName, abs); err != nil {
		return fmt.Errorf("replacing dataset: %w", err)
	}
	committed = true
	return nil
}

// fingerprint identifies a version of the file on disk.
type fingerprint struct {
	modTime time.Time
	size    int64
	exists  bool
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{modTime: info.ModTime(), size: info.Size(), exists: true}
}

// Progress summarises how many records already have a conversation.
type Progress struct {
	Completed int
	Total     int
	Percent   int
}

// Store is a session's writable copy of the dataset.
type Store struct {
	path    string
	records []Record
	stats   LoadStats
	disk    fingerprint
	logger  zerolog.Logger
}

// Open loads the dataset at path into a new Store.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With().Str("component", "dataset").Str("path", path).Logger(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload replaces the in-memory records with the file's contents.
func (s *Store) Reload() error {
	records, stats, err := LoadWithStats(s.path)
	if err != nil {
		return err
	}
	s.records = records
	s.stats = stats
	s.disk = stat(s.path)

	event := s.logger.Debug()
	if stats.Skipped > 0 {
		event = s.logger.Warn()
	}
	event.Int("loaded", stats.Loaded).Int("skipped", stats.Skipped).Msg("dataset loaded")
	return nil
}

// Persist rewrites the whole file from the in-memory records. On failure the
// in-memory records are left as they are.
func (s *Store) Persist() error {
	if err := Save(s.path, s.records); err != nil {
		s.logger.Error().Err(err).Msg("dataset save failed")
		return err
	}
	s.disk = stat(s.path)
	s.logger.Debug().Int("records", len(s.records)).Msg("dataset saved")
	return nil
}

// ChangedOnDisk reports whether the file differs from the version this store
// last loaded or saved.
func (s *Store) ChangedOnDisk() bool {
	now := stat(s.path)
	return now.exists != s.disk.exists || now.size != s.disk.size || !now.modTime.Equal(s.disk.modTime)
}

// Stats returns the counts from the last load.
func (s *Store) Stats() LoadStats {
	return s.stats
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns copies of all records.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a copy of the record at i.
func (s *Store) Get(i int) (Record, error) {
	if i < 0 || i >= len(s.records) {
		return Record{}, ErrIndexOutOfRange
	}
	return s.records[i].Clone(), nil
}

// Set hands a mutated record back to the store. It does not persist.
func (s *Store) Set(i int, r Record) error {
	if i < 0 || i >= len(s.records) {
		return ErrIndexOutOfRange
	}
	s.records[i] = r
	return nil
}

// EmptyIndices lists records without a conversation.
func (s *Store) EmptyIndices() []int {
	var out []int
	for i, r := range s.records {
		if !r.HasConversation() {
			out = append(out, i)
		}
	}
	return out
}

// Progress counts records that have a conversation.
func (s *Store) Progress() Progress {
	p := Progress{Total: len(s.records)}
	for _, r := range s.records {
		if r.HasConversation() {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = int(math.RoundToEven(float64(p.Completed) / float64(p.Total) * 100))
	}
	return p
}
