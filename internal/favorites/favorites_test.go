package favorites

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/adhara/internal/database"
	"github.com/TobiSchelling/adhara/internal/model"
)

func item(date string) model.FeedItem {
	return model.FeedItem{
		Date:        date,
		Title:       "Title " + date,
		Explanation: "Explanation " + date,
		MediaKind:   model.MediaImage,
		StandardURL: "https://apod.nasa.gov/apod/image/" + date + ".jpg",
	}
}

func insight(title string) *model.Insight {
	return &model.Insight{
		TranslatedTitle:          title,
		TranslatedExplanation:    "explicación",
		Reflection:               "reflexión",
		ScientificContext:        "contexto",
		PhilosophicalPerspective: "perspectiva",
		SuggestedReadings:        []string{"nebulosas"},
	}
}

func dates(entries []model.FavoriteEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Item.Date)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type failingKV struct {
	getErr error
	setErr error
	delErr error
	data   map[string]string
}

func (f *failingKV) Get(key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *failingKV) Set(key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *failingKV) Delete(key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.data, key)
	return nil
}

func TestToggleAddsThenRemoves(t *testing.T) {
	s := Open(NewMemoryKV())

	added, err := s.Toggle(item("2024-05-01"), insight("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added || !s.IsFavorited("2024-05-01") || s.Len() != 1 {
		t.Fatalf("expected 2024-05-01 to be favorited")
	}

	added, err = s.Toggle(item("2024-05-01"), insight("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added || s.IsFavorited("2024-05-01") {
		t.Error("expected second toggle to remove the entry")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty collection, got %d", s.Len())
	}
}

func TestToggleWithoutInsightIsNoop(t *testing.T) {
	kv := NewMemoryKV()
	s := Open(kv)
	s.Toggle(item("2024-04-30"), insight("B"))

	added, err := s.Toggle(item("2024-05-01"), nil)
	if err != nil || added {
		t.Fatalf("expected no-op, got added=%v err=%v", added, err)
	}
	if s.Len() != 1 {
		t.Errorf("expected size 1, got %d", s.Len())
	}

	// An existing entry is not removed by a nil-insight toggle either, and
	// the result still reports it as favorited.
	favorited, err := s.Toggle(item("2024-04-30"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !favorited {
		t.Error("expected nil-insight toggle of a saved date to report favorited")
	}
	if !s.IsFavorited("2024-04-30") {
		t.Error("nil-insight toggle must not remove an entry")
	}
}

func TestTogglePrependsNewest(t *testing.T) {
	s := Open(NewMemoryKV())
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		s.Toggle(item(d), insight(d))
	}

	got := dates(s.List())
	want := []string{"2024-01-03", "2024-01-02", "2024-01-01"}
	if !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDoubleTogglePreservesOrder(t *testing.T) {
	s := Open(NewMemoryKV())
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		s.Toggle(item(d), insight(d))
	}
	before := dates(s.List())

	// Toggling an existing middle entry twice moves it to the front; the
	// others keep their relative order.
	s.Toggle(item("2024-01-02"), insight("x"))
	s.Toggle(item("2024-01-02"), insight("x"))
	got := dates(s.List())
	want := []string{"2024-01-02", "2024-01-03", "2024-01-01"}
	if !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Toggling a new entry twice returns exactly to the original list.
	s2 := Open(NewMemoryKV())
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		s2.Toggle(item(d), insight(d))
	}
	s2.Toggle(item("2024-02-01"), insight("y"))
	s2.Toggle(item("2024-02-01"), insight("y"))
	if got := dates(s2.List()); !equal(got, before) {
		t.Errorf("expected %v, got %v", before, got)
	}
}

func TestEveryMutationPersists(t *testing.T) {
	kv := NewMemoryKV()
	s := Open(kv)
	s.Toggle(item("2024-01-01"), insight("one"))
	s.Toggle(item("2024-01-02"), insight("two"))

	raw, ok, _ := kv.Get(StorageKey)
	if !ok {
		t.Fatal("expected persisted value")
	}
	var stored []model.FavoriteEntry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("persisted value is not JSON: %v", err)
	}
	if got := dates(stored); !equal(got, []string{"2024-01-02", "2024-01-01"}) {
		t.Errorf("unexpected persisted order %v", got)
	}

	s.Toggle(item("2024-01-02"), insight("two"))
	raw, _, _ = kv.Get(StorageKey)
	stored = nil
	json.Unmarshal([]byte(raw), &stored)
	if len(stored) != 1 {
		t.Errorf("expected 1 persisted entry after removal, got %d", len(stored))
	}

	s.Toggle(item("2024-01-01"), insight("one"))
	raw, _, _ = kv.Get(StorageKey)
	if raw != "[]" {
		t.Errorf("expected empty JSON array, got %q", raw)
	}
}

func TestOpenCorruptValueYieldsEmpty(t *testing.T) {
	kv := NewMemoryKV()
	kv.Set(StorageKey, "{not json")

	s := Open(kv)
	if s.Len() != 0 {
		t.Errorf("expected empty collection, got %d", s.Len())
	}

	// The store stays usable.
	if _, err := s.Toggle(item("2024-05-01"), insight("A")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsFavorited("2024-05-01") {
		t.Error("expected toggle to work after corrupt load")
	}
}

func TestOpenUnreadableStoreYieldsEmpty(t *testing.T) {
	s := Open(&failingKV{getErr: errors.New("disk on fire"), data: map[string]string{}})
	if s.Len() != 0 {
		t.Errorf("expected empty collection, got %d", s.Len())
	}
}

func TestPersistFailureLeavesCollectionUnchanged(t *testing.T) {
	kv := &failingKV{data: map[string]string{}}
	s := Open(kv)
	s.Toggle(item("2024-01-01"), insight("one"))

	kv.setErr = errors.New("read-only")
	added, err := s.Toggle(item("2024-01-02"), insight("two"))
	if err == nil {
		t.Fatal("expected persist error")
	}
	if added || s.IsFavorited("2024-01-02") || s.Len() != 1 {
		t.Error("failed toggle must not change the collection")
	}
}

func TestOpenDropsDuplicateDates(t *testing.T) {
	kv := NewMemoryKV()
	entries := []model.FavoriteEntry{
		{Item: item("2024-01-02"), Insight: *insight("new")},
		{Item: item("2024-01-02"), Insight: *insight("old")},
		{Item: item("2024-01-01"), Insight: *insight("other")},
	}
	data, _ := json.Marshal(entries)
	kv.Set(StorageKey, string(data))

	s := Open(kv)
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	e, ok := s.Get("2024-01-02")
	if !ok || e.Insight.TranslatedTitle != "new" {
		t.Errorf("expected newest duplicate to win, got %+v", e)
	}
}

func TestRemove(t *testing.T) {
	s := Open(NewMemoryKV())
	s.Toggle(item("2024-01-01"), insight("one"))

	removed, err := s.Remove("2024-01-01")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, _ = s.Remove("2024-01-01")
	if removed {
		t.Error("expected second removal to report false")
	}
}

func TestClear(t *testing.T) {
	kv := NewMemoryKV()
	s := Open(kv)
	s.Toggle(item("2024-01-01"), insight("one"))
	s.Toggle(item("2024-01-02"), insight("two"))

	n, err := s.Clear()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || s.Len() != 0 {
		t.Errorf("expected 2 removed and empty store, got n=%d len=%d", n, s.Len())
	}
	if _, ok, _ := kv.Get(StorageKey); ok {
		t.Error("expected stored value to be removed")
	}
	if Open(kv).Len() != 0 {
		t.Error("expected reopened store to be empty")
	}
}

func TestClearFailureKeepsEntries(t *testing.T) {
	kv := &failingKV{data: map[string]string{}}
	s := Open(kv)
	s.Toggle(item("2024-01-01"), insight("one"))

	kv.delErr = errors.New("read-only")
	if _, err := s.Clear(); err == nil {
		t.Fatal("expected clear error")
	}
	if !s.IsFavorited("2024-01-01") {
		t.Error("failed clear must not change the collection")
	}
}

func TestSurvivesReopenWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adhara.db")

	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s := Open(db)
	s.Toggle(item("2024-05-01"), insight("Nebulosa"))
	db.Close()

	db, err = database.Open(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db.Close()

	s = Open(db)
	e, ok := s.Get("2024-05-01")
	if !ok {
		t.Fatal("expected favorite to survive reopen")
	}
	if e.Insight.TranslatedTitle != "Nebulosa" || e.Item.Title != "Title 2024-05-01" {
		t.Errorf("unexpected entry after reopen: %+v", e)
	}

	if _, err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := db.Get(StorageKey); ok {
		t.Error("expected the row to be deleted")
	}
}
