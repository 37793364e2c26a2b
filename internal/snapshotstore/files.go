package snapshotstore

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileConfig configures the filesystem backend.
type FileConfig struct {
	Basepath string `json:"basepath"`
}

func init() {
	BackendRegistry["files"] = func(raw json.RawMessage) (Store, error) {
		var cfg FileConfig
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, err
			}
		}
		if cfg.Basepath == "" {
			cfg.Basepath = "snapshots"
		}
		if err := os.MkdirAll(cfg.Basepath, 0o755); err != nil {
			return nil, err
		}
		return &fileStore{base: cfg.Basepath}, nil
	}
}

type fileStore struct {
	base string
}

const snapExt = ".snapshot"

func (s *fileStore) path(name string) string {
	return filepath.Join(s.base, name+snapExt)
}

func (s *fileStore) Read(name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return errReader{err}, nil
	}
	return f, nil
}

// Write goes through a temp file plus rename so a crashed writer never
// leaves a half image under the final name.
func (s *fileStore) Write(name string) (io.WriteCloser, error) {
	tmp, err := os.CreateTemp(s.base, name+".tmp*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{f: tmp, final: s.path(name)}, nil
}

type atomicFile struct {
	f     *os.File
	final string
}

func (a *atomicFile) Write(p []byte) (int, error) { return a.f.Write(p) }

func (a *atomicFile) Close() error {
	if err := a.f.Sync(); err != nil {
		a.f.Close()
		return err
	}
	if err := a.f.Close(); err != nil {
		return err
	}
	return os.Rename(a.f.Name(), a.final)
}

func (s *fileStore) Remove(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *fileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), snapExt) {
			names = append(names, strings.TrimSuffix(e.Name(), snapExt))
		}
	}
	return names, nil
}

func (s *fileStore) Close() error { return nil }
