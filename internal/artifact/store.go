// Package artifact persists the per-symbol model bundle: scaler, classifier and
// watermark, written as one revision.
package artifact

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"Cortexa/internal/learner"
	"Cortexa/internal/model"
)

const (
	stateFile    = "state.json"
	featuresFile = "features.csv"
)

// Scaler and model files carry the revision in their name; state.json names the
// committed revision.
func scalerName(rev string) string { return "scaler." + rev + ".json" }
func modelName(rev string) string  { return "model." + rev + ".json" }

var (
	// ErrNotFound means the symbol has no bundle at all.
	ErrNotFound = errors.New("artifacts not found")
	// ErrCorrupt means some bundle files exist but they are unreadable or belong to different revisions.
	ErrCorrupt = errors.New("corrupt artifact bundle")
)

// Bundle is the unit that is loaded and saved together.
type Bundle struct {
	Scaler *learner.Scaler
	Model  *learner.SGDClassifier
	State  model.Watermark
}

type scalerDoc struct {
	Revision string          `json:"revision"`
	Scaler   *learner.Scaler `json:"scaler"`
}

type modelDoc struct {
	Revision string                 `json:"revision"`
	Model    *learner.SGDClassifier `json:"model"`
}

// Store keeps bundles under Root/<symbol>/.
type Store struct {
	Root string

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	newRevision func() string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Root: dir, locks: make(map[string]*sync.Mutex), newRevision: uuid.NewString}
}

// Dir returns the artifact directory of a symbol.
func (s *Store) Dir(symbol string) string {
	return filepath.Join(s.Root, symbol)
}

// Lock takes the single-writer lock of a symbol and returns its release func.
func (s *Store) Lock(symbol string) func() {
	s.mu.Lock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Exists reports whether the symbol has a state file or any revision file.
func (s *Store) Exists(symbol string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.Dir(symbol), stateFile))
	if err == nil {
		return true, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}
	revs, err := s.revisionFiles(symbol)
	if err != nil {
		return false, err
	}
	return len(revs) > 0, nil
}

// Files returns the paths of the committed revision's scaler and model files.
func (s *Store) Files(symbol string) (scalerPath, modelPath string, err error) {
	st, err := s.committed(symbol)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.Dir(symbol), scalerName(st.Revision)), filepath.Join(s.Dir(symbol), modelName(st.Revision)), nil
}

func (s *Store) committed(symbol string) (model.Watermark, error) {
	var st model.Watermark
	if err := readJSON(filepath.Join(s.Dir(symbol), stateFile), &st); err != nil {
		return st, fmt.Errorf("%s state: %w", symbol, err)
	}
	if st.Revision == "" {
		return st, fmt.Errorf("%s: state names no revision: %w", symbol, ErrCorrupt)
	}
	return st, nil
}

// Load reads the revision that state.json names. Files of other revisions are
// ignored, so a save that failed part-way leaves the previous commit loadable.
// A bundle whose named files are missing or disagree is ErrCorrupt, never missing.
func (s *Store) Load(symbol string) (*Bundle, error) {
	exists, err := s.Exists(symbol)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}

	st, err := s.committed(symbol)
	if err != nil {
		return nil, err
	}
	var sd scalerDoc
	if err := readJSON(filepath.Join(s.Dir(symbol), scalerName(st.Revision)), &sd); err != nil {
		return nil, fmt.Errorf("%s scaler: %w", symbol, err)
	}
	var md modelDoc
	if err := readJSON(filepath.Join(s.Dir(symbol), modelName(st.Revision)), &md); err != nil {
		return nil, fmt.Errorf("%s model: %w", symbol, err)
	}

	switch {
	case sd.Revision != st.Revision || md.Revision != st.Revision:
		return nil, fmt.Errorf("%s: revisions state=%q scaler=%q model=%q: %w",
			symbol, st.Revision, sd.Revision, md.Revision, ErrCorrupt)
	case sd.Scaler == nil || md.Model == nil:
		return nil, fmt.Errorf("%s: empty scaler or model: %w", symbol, ErrCorrupt)
	case len(sd.Scaler.Mean) != model.NumFeatures || len(md.Model.Coef) != model.NumFeatures:
		return nil, fmt.Errorf("%s: feature dimension mismatch: %w", symbol, ErrCorrupt)
	}
	if _, err := time.Parse(model.DateLayout, st.LastDate); err != nil {
		return nil, fmt.Errorf("%s: bad watermark %q: %w", symbol, st.LastDate, ErrCorrupt)
	}
	return &Bundle{Scaler: sd.Scaler, Model: md.Model, State: st}, nil
}

// Save commits the bundle under a fresh revision. The revision's scaler and model
// files are written first; replacing state.json is the commit point. Until then
// the previous revision stays the one Load returns. Files of older revisions are
// pruned after the commit. On success b.State carries the new revision.
func (s *Store) Save(symbol string, b *Bundle) error {
	dir := s.Dir(symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rev := s.newRevision()
	st := b.State
	st.Revision = rev
	st.UpdatedAt = time.Now().UTC()

	scalerPath := filepath.Join(dir, scalerName(rev))
	modelPath := filepath.Join(dir, modelName(rev))
	abort := func(what string, err error) error {
		os.Remove(scalerPath)
		os.Remove(modelPath)
		return fmt.Errorf("save %s %s: %w", symbol, what, err)
	}
	if err := writeJSONAtomic(scalerPath, scalerDoc{Revision: rev, Scaler: b.Scaler}); err != nil {
		return abort("scaler", err)
	}
	if err := writeJSONAtomic(modelPath, modelDoc{Revision: rev, Model: b.Model}); err != nil {
		return abort("model", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, stateFile), st); err != nil {
		return abort("state", err)
	}
	b.State = st
	s.prune(symbol, rev)
	return nil
}

// revisionFiles lists every scaler and model revision file of a symbol.
func (s *Store) revisionFiles(symbol string) ([]string, error) {
	var out []string
	for _, pattern := range []string{scalerName("*"), modelName("*")} {
		m, err := filepath.Glob(filepath.Join(s.Dir(symbol), pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

// prune removes revision files other than keep. Failures only leave garbage behind.
func (s *Store) prune(symbol, keep string) {
	files, err := s.revisionFiles(symbol)
	if err != nil {
		return
	}
	current := map[string]bool{
		filepath.Join(s.Dir(symbol), scalerName(keep)): true,
		filepath.Join(s.Dir(symbol), modelName(keep)):  true,
	}
	for _, f := range files {
		if !current[f] {
			os.Remove(f)
		}
	}
}

// WriteFeatures writes a CSV snapshot of the labeled feature table.
func (s *Store) WriteFeatures(symbol string, rows []model.LabeledRow) error {
	dir := s.Dir(symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, featuresFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	header := append([]string{"timestamp", "close"}, model.FeatureNames...)
	header = append(header, "future_ret", "target")
	w.Write(header)
	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.Date(), ftoa(r.Close))
		for _, v := range r.Values {
			rec = append(rec, ftoa(v))
		}
		rec = append(rec, ftoa(r.ForwardReturn), strconv.Itoa(r.Target))
		w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s missing: %w", filepath.Base(path), ErrCorrupt)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", filepath.Base(path), err, ErrCorrupt)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
