package packages

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ActiveFileName  = "active_packages.json"
	HistoryFileName = "renewal_history.json"

	backupSuffix = ".backup"
	tmpSuffix    = ".tmp"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Active  map[string]Subscription
	History []HistoryEntry
}

// Persister reads and writes the store state.
type Persister interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// FileStore keeps the state as two JSON documents in a directory. Every save
// keeps the previous version next to the file with a .backup suffix and
// replaces the file through a temp file + rename.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) activePath() string  { return filepath.Join(f.dir, ActiveFileName) }
func (f *FileStore) historyPath() string { return filepath.Join(f.dir, HistoryFileName) }

// Load reads both documents. A missing or unreadable primary file falls back
// to its backup; when neither exists the corresponding part is empty.
func (f *FileStore) Load() (Snapshot, error) {
	snap := Snapshot{Active: make(map[string]Subscription)}

	if err := readWithBackup(f.activePath(), &snap.Active); err != nil {
		return snap, err
	}
	if snap.Active == nil {
		snap.Active = make(map[string]Subscription)
	}
	if err := readWithBackup(f.historyPath(), &snap.History); err != nil {
		return snap, err
	}
	if len(snap.History) > HistoryCap {
		snap.History = snap.History[len(snap.History)-HistoryCap:]
	}
	return snap, nil
}

// Save rewrites both documents. History is written first so a crash between
// the two writes never loses renewal records for packages still on disk.
func (f *FileStore) Save(snap Snapshot) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return &PersistenceError{Op: "save", Path: f.dir, Err: err}
	}

	history := snap.History
	if len(history) > HistoryCap {
		history = history[len(history)-HistoryCap:]
	}
	if history == nil {
		history = []HistoryEntry{}
	}
	if len(history) == 0 {
		onDisk, err := countHistoryOnDisk(f.historyPath())
		if err == nil && onDisk > 0 {
			return &PersistenceError{
				Op:   "save",
				Path: f.historyPath(),
				Err:  fmt.Errorf("refusing to overwrite %d history entries with an empty list", onDisk),
			}
		}
	}
	if err := writeAtomic(f.historyPath(), history); err != nil {
		return err
	}

	active := snap.Active
	if active == nil {
		active = map[string]Subscription{}
	}
	return writeAtomic(f.activePath(), active)
}

func readWithBackup(path string, v any) error {
	err := readJSON(path, v)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("State file unreadable, trying backup")
	}

	backupErr := readJSON(path+backupSuffix, v)
	if backupErr == nil {
		log.Warn().Str("path", path).Msg("Restored state from backup")
		return nil
	}
	if errors.Is(err, os.ErrNotExist) && errors.Is(backupErr, os.ErrNotExist) {
		return nil
	}
	if errors.Is(backupErr, os.ErrNotExist) {
		return &PersistenceError{Op: "load", Path: path, Err: err}
	}
	return &PersistenceError{Op: "load", Path: path, Err: errors.Join(err, backupErr)}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func countHistoryOnDisk(path string) (int, error) {
	var entries []HistoryEntry
	if err := readJSON(path, &entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}

	if err := copyFile(path, path+backupSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to refresh backup copy")
	}

	tmpPath := path + tmpSuffix
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
