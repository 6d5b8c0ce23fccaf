package history

import (
	"path/filepath"
	"testing"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLatestReturnsNewestRecord(t *testing.T) {
	s := newTestStore(t)

	if rec, err := s.Latest("shop", "1.0.0"); err != nil || rec != nil {
		t.Fatalf("Expected no record on empty store, got %+v (%v)", rec, err)
	}

	for _, fp := range []string{"aaa", "bbb"} {
		rec := &Record{Project: "shop", Version: "1.0.0", Fingerprint: fp, Path: "/out/shop.tar.gz", Compression: "gzip"}
		if err := s.Add(rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if rec.ID == 0 {
			t.Errorf("Expected ID to be set")
		}
	}
	s.Add(&Record{Project: "shop", Version: "2.0.0", Fingerprint: "ccc", Path: "/out/shop2.tar.gz", Compression: "zstd"})

	latest, err := s.Latest("shop", "1.0.0")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Fingerprint != "bbb" {
		t.Fatalf("Expected latest fingerprint bbb, got %+v", latest)
	}
	if latest.CreatedAt.IsZero() {
		t.Errorf("Expected created_at to round-trip")
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	s := newTestStore(t)
	s.Add(&Record{Project: "shop", Version: "1.0.0", Fingerprint: "a", Path: "p", Compression: "gzip"})
	s.Add(&Record{Project: "cart", Version: "1.0.0", Fingerprint: "b", Path: "p", Compression: "gzip"})
	s.Add(&Record{Project: "shop", Version: "1.1.0", Fingerprint: "c", Path: "p", Compression: "gzip"})

	all, err := s.List("", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].Fingerprint != "c" {
		t.Errorf("Expected 3 records newest first, got %+v", all)
	}

	shop, _ := s.List("shop", 0)
	if len(shop) != 2 {
		t.Errorf("Expected 2 shop records, got %d", len(shop))
	}

	limited, _ := s.List("", 1)
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Add(&Record{Project: "shop", Version: "1.0.0", Fingerprint: "a", Path: "p", Compression: "gzip"})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	rec, err := s.Latest("shop", "1.0.0")
	if err != nil || rec == nil {
		t.Fatalf("Expected record after reopen, got %+v (%v)", rec, err)
	}
}
