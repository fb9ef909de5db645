package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	hist, err := Load()
	if err != nil {
		t.Fatalf("Load with no history file failed: %v", err)
	}
	if len(hist.Entries) != 0 {
		t.Errorf("got %d entries, want 0", len(hist.Entries))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	hist := &History{}
	hist.AddEntry(NewEntry("pump maintenance", 5, 3, "pump-maintenance"))
	hist.AddEntry(NewEntry("ssh hardening", 2, 1, "ssh-hardening"))
	if err := hist.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path, err := GetHistoryPath()
	if err != nil {
		t.Fatalf("GetHistoryPath failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(".docdex", "history.json")) {
		t.Errorf("history path = %q, want it under .docdex", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("history file was not written: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(loaded.Entries))
	}
	if loaded.Entries[0].Query != "ssh hardening" {
		t.Errorf("newest entry query = %q, want %q", loaded.Entries[0].Query, "ssh hardening")
	}
	if loaded.Entries[0].TopK != 2 || loaded.Entries[0].Results != 1 {
		t.Errorf("newest entry = %+v, want top_k 2, results 1", loaded.Entries[0])
	}
	if loaded.Entries[0].Timestamp.IsZero() {
		t.Errorf("entry timestamp was not set")
	}
	if loaded.Entries[1].Query != "pump maintenance" {
		t.Errorf("oldest entry query = %q, want %q", loaded.Entries[1].Query, "pump maintenance")
	}
}

func TestAddEntryNewestFirst(t *testing.T) {
	hist := &History{}
	for _, q := range []string{"first", "second", "third"} {
		hist.AddEntry(NewEntry(q, 5, 0, ""))
	}

	want := []string{"third", "second", "first"}
	for i, w := range want {
		if hist.Entries[i].Query != w {
			t.Errorf("Entries[%d].Query = %q, want %q", i, hist.Entries[i].Query, w)
		}
	}
}

func TestAddEntryCap(t *testing.T) {
	hist := &History{}
	for i := 0; i < maxEntries+5; i++ {
		hist.AddEntry(NewEntry(fmt.Sprintf("query %d", i), 5, 0, ""))
	}

	if len(hist.Entries) != maxEntries {
		t.Fatalf("got %d entries, want %d", len(hist.Entries), maxEntries)
	}
	if got, want := hist.Entries[0].Query, fmt.Sprintf("query %d", maxEntries+4); got != want {
		t.Errorf("newest entry = %q, want %q", got, want)
	}
	if got, want := hist.Entries[maxEntries-1].Query, "query 5"; got != want {
		t.Errorf("oldest kept entry = %q, want %q", got, want)
	}
}

func TestRecent(t *testing.T) {
	hist := &History{}
	for i := 0; i < 5; i++ {
		hist.AddEntry(NewEntry(fmt.Sprintf("query %d", i), 5, 0, ""))
	}

	if got := hist.Recent(2); len(got) != 2 || got[0].Query != "query 4" {
		t.Errorf("Recent(2) = %d entries starting %q, want 2 starting %q", len(got), got[0].Query, "query 4")
	}
	if got := hist.Recent(50); len(got) != 5 {
		t.Errorf("Recent(50) returned %d entries, want all 5", len(got))
	}
	if got := hist.Recent(0); len(got) != 5 {
		t.Errorf("Recent(0) returned %d entries, want all 5", len(got))
	}
}

func TestLoadCorrupt(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".docdex")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load on corrupt file returned %v, want parse error", err)
	}
}
