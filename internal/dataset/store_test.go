package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/models"
)

func writeDataset(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "listings.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func loadStore(t *testing.T, path string) *Store {
	t.Helper()
	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := loadStore(t, filepath.Join(t.TempDir(), "none.json"))
	snap := s.Snapshot()
	if snap.Len() != 0 || snap.Version != 0 {
		t.Errorf("got %d listings at version %d", snap.Len(), snap.Version)
	}
}

func TestLoad_ArrayAndWrappedFormats(t *testing.T) {
	dir := t.TempDir()
	arr := loadStore(t, writeDataset(t, dir, `[{"id":1,"title":"Pizza King","sector":"Food"}]`))
	if arr.Snapshot().Len() != 1 || arr.Stats().Format != FormatArray {
		t.Errorf("array: %+v", arr.Stats())
	}

	dir2 := t.TempDir()
	wrapped := loadStore(t, writeDataset(t, dir2, `{"source":"seed","dataset_version":7,"listings":[{"id":2,"title":"Burger Hub","sector":"Food"}]}`))
	if wrapped.Version() != 7 || wrapped.Stats().Format != FormatWrapped {
		t.Errorf("wrapped: %+v", wrapped.Stats())
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"listings": [`,
		"no listings":   `{"items": []}`,
		"scalar":        `42`,
		"duplicate ids": `[{"id":1,"title":"a","sector":"b"},{"id":1,"title":"c","sector":"d"}]`,
		"missing title": `[{"id":1,"sector":"b"}]`,
		"missing id":    `[{"title":"a","sector":"b"}]`,
		"tags string":   `[{"id":1,"title":"a","sector":"b","tags":"x,y"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(writeDataset(t, t.TempDir(), body))
			err := s.Load()
			if !errors.Is(err, apperr.ErrDataCorrupt) {
				t.Errorf("Load() error = %v, want ErrDataCorrupt", err)
			}
		})
	}
}

func TestAppend_AssignsNextID(t *testing.T) {
	path := writeDataset(t, t.TempDir(), `{"listings":[{"id":5,"title":"Pizza King","sector":"Food"},{"id":2,"title":"Tea Time","sector":"Beverage"}]}`)
	s := loadStore(t, path)
	before := s.Version()

	got, err := s.Append(models.Listing{Title: "Burger Hub", Sector: "Food"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got.ID != 6 {
		t.Errorf("id = %d, want 6", got.ID)
	}
	if s.Version() != before+1 {
		t.Errorf("version = %d, want %d", s.Version(), before+1)
	}

	reloaded := loadStore(t, path)
	if reloaded.Snapshot().Len() != 3 || reloaded.Version() != before+1 {
		t.Errorf("persisted %d listings at version %d", reloaded.Snapshot().Len(), reloaded.Version())
	}
	if _, ok := reloaded.Snapshot().Find(6); !ok {
		t.Error("appended listing not persisted")
	}
}

func TestAppend_FirstListingGetsIDOne(t *testing.T) {
	s := loadStore(t, filepath.Join(t.TempDir(), "listings.json"))
	got, err := s.Append(models.Listing{Title: "Pizza King", Sector: "Food"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("id = %d, want 1", got.ID)
	}
}

func TestAppend_Validation(t *testing.T) {
	s := loadStore(t, writeDataset(t, t.TempDir(), `[{"id":1,"title":"Pizza King","sector":"Food"}]`))
	cases := []models.Listing{
		{Sector: "Food"},
		{Title: "No sector"},
		{Title: "   ", Sector: "Food"},
		{ID: 1, Title: "Dup", Sector: "Food"},
		{ID: -3, Title: "Neg", Sector: "Food"},
	}
	for _, l := range cases {
		if _, err := s.Append(l); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Append(%+v) error = %v, want ErrValidation", l, err)
		}
	}
	if s.Version() != 0 || s.Snapshot().Len() != 1 {
		t.Errorf("rejected appends changed state: version %d, %d listings", s.Version(), s.Snapshot().Len())
	}
}

func TestAppend_PersistFailureRollsBack(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "data")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	s := loadStore(t, writeDataset(t, sub, `[{"id":1,"title":"Pizza King","sector":"Food"}]`))

	// Replace the directory with a plain file so the temp write fails.
	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sub, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Append(models.Listing{Title: "Burger Hub", Sector: "Food"})
	if !errors.Is(err, apperr.ErrPersist) {
		t.Fatalf("Append error = %v, want ErrPersist", err)
	}
	if s.Snapshot().Len() != 1 || s.Version() != 0 {
		t.Errorf("state drifted: %d listings, version %d", s.Snapshot().Len(), s.Version())
	}
}

func TestAppend_ConcurrentIDsAreUnique(t *testing.T) {
	s := loadStore(t, filepath.Join(t.TempDir(), "listings.json"))
	const n = 20
	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := s.Append(models.Listing{Title: "Shop", Sector: "Retail"})
			if err != nil {
				t.Errorf("Append: %v", err)
				return
			}
			ids <- l.ID
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n || s.Version() != n {
		t.Errorf("got %d ids, version %d", len(seen), s.Version())
	}
}

func TestSnapshot_IsImmutableAcrossWrites(t *testing.T) {
	s := loadStore(t, writeDataset(t, t.TempDir(), `[{"id":1,"title":"Pizza King","sector":"Food"}]`))
	old := s.Snapshot()
	if _, err := s.Append(models.Listing{Title: "Burger Hub", Sector: "Food"}); err != nil {
		t.Fatal(err)
	}
	if old.Len() != 1 || old.Version != 0 {
		t.Errorf("old snapshot changed: %d listings at %d", old.Len(), old.Version)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	path := writeDataset(t, t.TempDir(), `[{"id":1,"title":"Pizza King","sector":"Food","franchise_fee":1000},{"id":2,"title":"Tea Time","sector":"Beverage"}]`)
	s := loadStore(t, path)

	title := "Pizza Queen"
	got, err := s.Update(1, models.ListingPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "Pizza Queen" || got.Sector != "Food" || string(got.Extra["franchise_fee"]) != "1000" {
		t.Errorf("Update() = %+v", got)
	}

	other := 9
	if _, err := s.Update(1, models.ListingPatch{ID: &other}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("changing id: error = %v", err)
	}
	empty := ""
	if _, err := s.Update(1, models.ListingPatch{Sector: &empty}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank sector: error = %v", err)
	}
	if _, err := s.Update(42, models.ListingPatch{Title: &title}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: error = %v", err)
	}

	if err := s.Delete(2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: error = %v", err)
	}
	if s.Version() != 2 {
		t.Errorf("version = %d, want 2", s.Version())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		t.Errorf("array shape not preserved: %s", data)
	}
	if !strings.Contains(string(data), `"franchise_fee"`) || !strings.Contains(string(data), "1000") {
		t.Errorf("extra field lost: %s", data)
	}
}

func TestReload_DetectsExternalEdits(t *testing.T) {
	path := writeDataset(t, t.TempDir(), `{"listings":[{"id":1,"title":"Pizza King","sector":"Food"}]}`)
	s := loadStore(t, path)

	changed, err := s.Reload()
	if err != nil || changed {
		t.Fatalf("Reload unchanged file = %v, %v", changed, err)
	}

	if _, err := s.Append(models.Listing{Title: "Burger Hub", Sector: "Food"}); err != nil {
		t.Fatal(err)
	}
	if changed, _ := s.Reload(); changed {
		t.Error("own write reported as external change")
	}

	writeDataset(t, filepath.Dir(path), `{"listings":[{"id":7,"title":"Taco Town","sector":"Food"}]}`)
	changed, err = s.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload after edit = %v, %v", changed, err)
	}
	if s.Version() != 2 {
		t.Errorf("version = %d, want 2", s.Version())
	}
	if _, ok := s.Snapshot().Find(7); !ok {
		t.Error("reloaded listing missing")
	}
}

func TestListAndFilters(t *testing.T) {
	s := loadStore(t, writeDataset(t, t.TempDir(), `[
		{"id":1,"title":"Pizza King","sector":"Food","location":"Lagos","tags":["pizza","delivery"]},
		{"id":2,"title":"Tea Time","sector":"Beverage","location":"Accra","tags":["tea"]},
		{"id":3,"title":"Burger Hub","sector":"Food","location":"Lagos","tags":["grill"]}
	]`))

	page := s.List(1, 1)
	if len(page.Items) != 1 || page.Items[0].ID != 2 || !page.HasMore || page.Total != 3 {
		t.Errorf("List(1,1) = %+v", page)
	}
	if page := s.List(10, 5); len(page.Items) != 0 || page.HasMore {
		t.Errorf("List past end = %+v", page)
	}
	if page := s.List(0, 0); page.Limit != DefaultPageLimit {
		t.Errorf("default limit = %d", page.Limit)
	}
	if page := s.List(0, 9999); page.Limit != MaxPageLimit {
		t.Errorf("max limit = %d", page.Limit)
	}

	f := s.Filters()
	if strings.Join(f.Sectors, ",") != "Beverage,Food" {
		t.Errorf("sectors = %v", f.Sectors)
	}
	if strings.Join(f.Locations, ",") != "Accra,Lagos" {
		t.Errorf("locations = %v", f.Locations)
	}
	if strings.Join(f.Tags, ",") != "delivery,grill,pizza,tea" {
		t.Errorf("tags = %v", f.Tags)
	}

	if _, err := s.Get(99); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get(99) error = %v", err)
	}
}

func TestSnapshot_FingerprintTracksFileContent(t *testing.T) {
	path := writeDataset(t, t.TempDir(), `[{"id":1,"title":"Pizza King","sector":"Food"}]`)
	s := loadStore(t, path)
	first := s.Snapshot().Fingerprint
	if first == "" || first != s.Fingerprint() {
		t.Fatalf("snapshot fingerprint %q, store %q", first, s.Fingerprint())
	}

	if _, err := s.Append(models.Listing{Title: "Burger Hub", Sector: "Food"}); err != nil {
		t.Fatal(err)
	}
	second := s.Snapshot().Fingerprint
	if second == first {
		t.Error("fingerprint should change when the file is rewritten")
	}

	// Bare arrays carry no version; the fingerprint still tells the files apart.
	again := loadStore(t, path)
	if again.Version() != 0 {
		t.Errorf("version = %d, want 0 for a bare array", again.Version())
	}
	if again.Snapshot().Fingerprint != second {
		t.Error("reloaded fingerprint should match the last write")
	}

	if fp := loadStore(t, filepath.Join(t.TempDir(), "none.json")).Snapshot().Fingerprint; fp != "" {
		t.Errorf("missing file fingerprint = %q, want empty", fp)
	}
}
