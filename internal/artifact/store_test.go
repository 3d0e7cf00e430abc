package artifact

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"Cortexa/internal/learner"
	"Cortexa/internal/model"
)

func newBundle(lastDate string) *Bundle {
	sc := learner.NewScaler(model.NumFeatures)
	sc.Count = 3
	clf := learner.NewSGDClassifier(model.NumFeatures, 1)
	clf.Classes = []int{0, 1}
	clf.Coef[0] = 0.5
	return &Bundle{
		Scaler: sc,
		Model:  clf,
		State:  model.Watermark{LastDate: lastDate, Interval: "1d", Horizon: 5, Threshold: 0.03, Samples: 3},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Load("BTC"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Save("BTC", newBundle("2024-03-01")); err != nil {
		t.Fatal(err)
	}
	b, err := s.Load("BTC")
	if err != nil {
		t.Fatal(err)
	}
	if b.State.LastDate != "2024-03-01" || b.State.Revision == "" {
		t.Errorf("unexpected state %+v", b.State)
	}
	if b.Model.Coef[0] != 0.5 || b.Scaler.Count != 3 {
		t.Errorf("bundle contents not restored")
	}

	raw, _ := os.ReadFile(filepath.Join(s.Dir("BTC"), stateFile))
	if !strings.Contains(string(raw), `"last_dt": "2024-03-01"`) {
		t.Errorf("state.json missing last_dt: %s", raw)
	}
}

func TestStore_MixedRevisionIsCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Save("ETH", newBundle("2024-03-01")); err != nil {
		t.Fatal(err)
	}
	scalerPath, _, err := s.Files("ETH")
	if err != nil {
		t.Fatal(err)
	}
	doc := scalerDoc{Revision: "next", Scaler: learner.NewScaler(model.NumFeatures)}
	data, _ := json.Marshal(doc)
	os.WriteFile(scalerPath, data, 0o644)

	if _, err := s.Load("ETH"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestStore_FailedSaveKeepsPreviousRevision(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Save("ETH", newBundle("2024-03-01")); err != nil {
		t.Fatal(err)
	}
	first, err := s.Load("ETH")
	if err != nil {
		t.Fatal(err)
	}

	// The model file of the next revision cannot be written: its temp path is a directory.
	s.newRevision = func() string { return "r2" }
	blocker := filepath.Join(s.Dir("ETH"), modelName("r2")+".tmp")
	if err := os.Mkdir(blocker, 0o755); err != nil {
		t.Fatal(err)
	}
	next := newBundle("2024-03-08")
	next.Model.Coef[0] = 9
	if err := s.Save("ETH", next); err == nil {
		t.Fatal("expected save to fail")
	}
	if next.State.Revision != "" {
		t.Errorf("failed save assigned revision %q", next.State.Revision)
	}
	if _, err := os.Stat(filepath.Join(s.Dir("ETH"), scalerName("r2"))); !os.IsNotExist(err) {
		t.Errorf("failed save left its scaler file behind: %v", err)
	}

	got, err := s.Load("ETH")
	if err != nil {
		t.Fatalf("previous revision no longer loads: %v", err)
	}
	if got.State.Revision != first.State.Revision || got.State.LastDate != "2024-03-01" || got.Model.Coef[0] != 0.5 {
		t.Errorf("expected first revision, got %+v coef %v", got.State, got.Model.Coef[0])
	}

	// Once the obstacle is gone the next save commits and prunes the old revision.
	os.Remove(blocker)
	if err := s.Save("ETH", next); err != nil {
		t.Fatal(err)
	}
	got, err = s.Load("ETH")
	if err != nil {
		t.Fatal(err)
	}
	if got.State.Revision != "r2" || got.Model.Coef[0] != 9 {
		t.Errorf("expected revision r2, got %+v", got.State)
	}
	files, _ := s.revisionFiles("ETH")
	if len(files) != 2 {
		t.Errorf("expected only the committed scaler and model, got %v", files)
	}
}

func TestStore_MissingFileIsCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Save("SOL", newBundle("2024-03-01"))
	_, modelPath, err := s.Files("SOL")
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(modelPath)
	if _, err := s.Load("SOL"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestStore_OrphanRevisionWithoutStateIsCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Save("ADA", newBundle("2024-03-01"))
	os.Remove(filepath.Join(s.Dir("ADA"), stateFile))
	if _, err := s.Load("ADA"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestStore_GarbageIsCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Save("XRP", newBundle("2024-03-01"))
	os.WriteFile(filepath.Join(s.Dir("XRP"), stateFile), []byte("{not json"), 0o644)
	if _, err := s.Load("XRP"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestStore_WriteFeatures(t *testing.T) {
	s := NewStore(t.TempDir())
	rows := []model.LabeledRow{{
		FeatureRow:    model.FeatureRow{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 10},
		ForwardReturn: 0.04,
		Target:        1,
	}}
	if err := s.WriteFeatures("BTC", rows); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir("BTC"), featuresFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "2024-01-02,10,") || !strings.HasSuffix(lines[1], ",0.04,1") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestStore_LockSerialisesPerSymbol(t *testing.T) {
	s := NewStore(t.TempDir())
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("BTC")
			defer unlock()
			mu.Lock()
			active++
			if active > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if overlap {
		t.Fatal("two writers held the same symbol lock")
	}
}
