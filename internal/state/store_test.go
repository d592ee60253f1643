package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib", "state.yaml")
	s := NewStore(path)

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if st.LastClip != "" || st.Cycles != 0 {
		t.Errorf("Expected zero state, got %+v", st)
	}

	want := State{LastClip: "/sd/gifs/cat.gif", Cycles: 7, UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.LastClip != want.LastClip || got.Cycles != want.Cycles || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file left behind")
	}
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("last_clip: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(path).Load(); err == nil {
		t.Error("Expected parse error")
	}
}

func TestStoreInMemory(t *testing.T) {
	s := NewStore("")
	if err := s.Save(State{LastClip: "a.gif", Cycles: 1}); err != nil {
		t.Fatal(err)
	}
	st, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastClip != "a.gif" {
		t.Errorf("Expected in-memory state, got %+v", st)
	}
}
