// Package results keeps a per-directory history of translated documents,
// so batch runs can resume and users can find earlier outputs.
package results

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pdf-translator/internal/types"
)

// TranslationStatus tracks where a document is in its run.
type TranslationStatus string

const (
	// StatusTranslating indicates the document is being processed.
	StatusTranslating TranslationStatus = "translating"
	// StatusComplete indicates the mono and dual outputs were written.
	StatusComplete TranslationStatus = "complete"
	// StatusError indicates the run failed before writing outputs.
	StatusError TranslationStatus = "error"
)

// Record describes one translated document.
type Record struct {
	ID         string                `json:"id"`
	InputPath  string                `json:"input_path"`
	Status     TranslationStatus     `json:"status"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	SourceLang string                `json:"source_lang"`
	TargetLang string                `json:"target_lang"`
	Result     types.TranslateResult `json:"result"`
}

const indexFileName = "results.json"

// Manager persists records as a single JSON index under its base
// directory.
type Manager struct {
	baseDir string
}

// NewManager creates the base directory if needed and returns a manager
// over it.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrResource, "cannot create results directory", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// BaseDir returns the directory holding the index.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// DocumentID derives a stable record id from the input path.
func DocumentID(inputPath string) string {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		abs = inputPath
	}
	sum := md5.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])
}

// Begin records a started run, replacing any previous record for the same
// document.
func (m *Manager) Begin(inputPath, sourceLang, targetLang string) (*Record, error) {
	rec := &Record{
		ID:         DocumentID(inputPath),
		InputPath:  inputPath,
		Status:     StatusTranslating,
		StartedAt:  time.Now(),
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}
	if err := m.put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete marks a run finished and stores its result.
func (m *Manager) Complete(rec *Record, result *types.TranslateResult) error {
	rec.Status = StatusComplete
	rec.FinishedAt = time.Now()
	rec.Error = ""
	if result != nil {
		rec.Result = *result
	}
	return m.put(rec)
}

// Fail marks a run failed.
func (m *Manager) Fail(rec *Record, cause error) error {
	rec.Status = StatusError
	rec.FinishedAt = time.Now()
	if cause != nil {
		rec.Error = cause.Error()
	}
	return m.put(rec)
}

// Get returns the record for a document, or nil when none exists.
func (m *Manager) Get(inputPath string) (*Record, error) {
	index, err := m.load()
	if err != nil {
		return nil, err
	}
	rec, ok := index[DocumentID(inputPath)]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

// List returns all records, most recently started first.
func (m *Manager) List() ([]*Record, error) {
	index, err := m.load()
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(index))
	for _, r := range index {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs, nil
}

// Delete removes a document's record. Removing an absent record is not an
// error.
func (m *Manager) Delete(inputPath string) error {
	index, err := m.load()
	if err != nil {
		return err
	}
	delete(index, DocumentID(inputPath))
	return m.store(index)
}

// IsComplete reports whether a document already has a finished run whose
// outputs still exist on disk.
func (m *Manager) IsComplete(inputPath string) bool {
	rec, err := m.Get(inputPath)
	if err != nil || rec == nil || rec.Status != StatusComplete {
		return false
	}
	for _, p := range []string{rec.Result.MonoPath, rec.Result.DualPath} {
		if p == "" {
			return false
		}
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.baseDir, indexFileName)
}

func (m *Manager) load() (map[string]*Record, error) {
	data, err := os.ReadFile(m.indexPath())
	if os.IsNotExist(err) {
		return map[string]*Record{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrResource, "cannot read results index", err)
	}
	var index map[string]*Record
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, types.NewAppError(types.ErrResource, "results index is corrupt", err)
	}
	return index, nil
}

func (m *Manager) store(index map[string]*Record) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrResource, "cannot encode results index", err)
	}
	if err := os.WriteFile(m.indexPath(), data, 0o644); err != nil {
		return types.NewAppError(types.ErrResource, "cannot write results index", err)
	}
	return nil
}

func (m *Manager) put(rec *Record) error {
	index, err := m.load()
	if err != nil {
		return err
	}
	index[rec.ID] = rec
	return m.store(index)
}
