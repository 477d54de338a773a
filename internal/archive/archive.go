package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sensorwatch/internal/model"
)

// ErrNothingToExport is returned by the export calls when no batch has been
// archived. No file is written in that case.
var ErrNothingToExport = errors.New("archive is empty, nothing to export")

// ExportError wraps an I/O failure while writing an export.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export archive: %v", e.Err)
	}
	return fmt.Sprintf("export archive to %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Archive is the ordered log of every batch received during a session.
// Appends come from the pipeline consumer; reads and exports may happen
// from any goroutine.
type Archive struct {
	mu      sync.RWMutex
	entries []model.ArchiveEntry
}

func New() *Archive {
	return &Archive{}
}

func (a *Archive) Append(entry model.ArchiveEntry) {
	sensors := make([]model.SensorReading, len(entry.Sensors))
	copy(sensors, entry.Sensors)
	entry.Sensors = sensors
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
}

func (a *Archive) Clear() {
	a.mu.Lock()
	a.entries = nil
	a.mu.Unlock()
}

func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Entries returns a copy of the archived batches, oldest first.
func (a *Archive) Entries() []model.ArchiveEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.ArchiveEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Marshal serializes the archive in export form.
func (a *Archive) Marshal() ([]byte, error) {
	entries := a.Entries()
	if len(entries) == 0 {
		return nil, ErrNothingToExport
	}
	return Encode(entries)
}

// Export writes the archive to w.
func (a *Archive) Export(w io.Writer) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return &ExportError{Err: err}
	}
	return nil
}

// ExportFile writes the archive to dir/Session_<unix>.json and returns the
// path written.
func (a *Archive) ExportFile(dir string, now time.Time) (string, error) {
	data, err := a.Marshal()
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &ExportError{Path: path, Err: err}
	}
	return path, nil
}

func FileName(now time.Time) string {
	return fmt.Sprintf("Session_%d.json", now.Unix())
}

// Encode renders entries as the pretty-printed export document.
func Encode(entries []model.ArchiveEntry) ([]byte, error) {
	if entries == nil {
		entries = []model.ArchiveEntry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads an export document. Every entry must carry a sensors list.
func Decode(r io.Reader) ([]model.ArchiveEntry, error) {
	var raw []struct {
		ReceivedAt *float64              `json:"timestamp_unix"`
		Sensors    []model.SensorReading `json:"sensors"`
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	out := make([]model.ArchiveEntry, 0, len(raw))
	for i, e := range raw {
		if e.Sensors == nil {
			return nil, fmt.Errorf("entry %d: missing sensors", i)
		}
		entry := model.ArchiveEntry{Sensors: e.Sensors}
		if e.ReceivedAt != nil {
			entry.ReceivedAt = *e.ReceivedAt
		}
		out = append(out, entry)
	}
	return out, nil
}
