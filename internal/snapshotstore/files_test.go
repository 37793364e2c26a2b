package snapshotstore

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
)

func openFileStore(t *testing.T) Store {
	t.Helper()
	cfg, _ := json.Marshal(FileConfig{Basepath: t.TempDir()})
	s, err := Open("files", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := openFileStore(t)

	w, err := s.Write("app")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("image-bytes")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := s.Read("app")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("read back %q, %v", data, err)
	}

	names, err := s.List()
	if err != nil || len(names) != 1 || names[0] != "app" {
		t.Fatalf("list %v, %v", names, err)
	}

	if err := s.Remove("app"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("app"); err != nil {
		t.Fatal("removing a missing snapshot is not an error")
	}
	if names, _ := s.List(); len(names) != 0 {
		t.Fatalf("list after remove: %v", names)
	}
}

func TestFileStoreMissingRead(t *testing.T) {
	s := openFileStore(t)
	r, err := s.Read("absent")
	if err != nil {
		t.Fatal("open failures are reflected on first read")
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("reading a missing snapshot must fail")
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := Open("tape", nil); err == nil {
		t.Fatal("unknown backend must error")
	}
}

func TestManyNames(t *testing.T) {
	s := openFileStore(t)
	for i := 0; i < 10; i++ {
		w, _ := s.Write(fmt.Sprintf("snap-%02d", i))
		w.Write([]byte{byte(i)})
		w.Close()
	}
	names, err := s.List()
	if err != nil || len(names) != 10 {
		t.Fatalf("list %v, %v", names, err)
	}
}
