//go:build ceph

package snapshotstore

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ceph/go-ceph/rados"
)

// CephConfig configures the RADOS backend. Snapshots are stored as whole
// objects in one pool; librados offers no cheap prefix listing, so List
// is served from a sidecar index object.
type CephConfig struct {
	ClusterName string `json:"cluster_name"` // often "ceph"
	UserName    string `json:"user_name"`    // e.g. "client.admin"
	ConfigFile  string `json:"config_file"`  // empty: default search path
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

func init() {
	BackendRegistry["ceph"] = func(raw json.RawMessage) (Store, error) {
		var cfg CephConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return newCephStore(cfg)
	}
}

type cephStore struct {
	cfg   CephConfig
	conn  *rados.Conn
	ioctx *rados.IOContext
}

const cephIndexObject = "snapshot-index"

func newCephStore(cfg CephConfig) (*cephStore, error) {
	if cfg.ClusterName == "" {
		cfg.ClusterName = "ceph"
	}
	if cfg.UserName == "" {
		cfg.UserName = "client.admin"
	}
	conn, err := rados.NewConnWithClusterAndUser(cfg.ClusterName, cfg.UserName)
	if err != nil {
		return nil, err
	}
	if cfg.ConfigFile != "" {
		err = conn.ReadConfigFile(cfg.ConfigFile)
	} else {
		err = conn.ReadDefaultConfigFile()
	}
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(); err != nil {
		return nil, err
	}
	ioctx, err := conn.OpenIOContext(cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return nil, err
	}
	return &cephStore{cfg: cfg, conn: conn, ioctx: ioctx}, nil
}

func (s *cephStore) obj(name string) string {
	return s.cfg.Prefix + name + snapExt
}

func (s *cephStore) Read(name string) (io.ReadCloser, error) {
	data, err := s.readAll(s.obj(name))
	if err != nil {
		return errReader{err}, nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *cephStore) readAll(obj string) ([]byte, error) {
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, stat.Size)
	read := 0
	for read < len(buf) {
		n, err := s.ioctx.Read(obj, buf[read:], uint64(read))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		read += n
	}
	return buf[:read], nil
}

func (s *cephStore) Write(name string) (io.WriteCloser, error) {
	return &cephWriter{s: s, name: name}, nil
}

type cephWriter struct {
	s    *cephStore
	name string
	buf  bytes.Buffer
}

func (w *cephWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *cephWriter) Close() error {
	if err := w.s.ioctx.WriteFull(w.s.obj(w.name), w.buf.Bytes()); err != nil {
		return err
	}
	return w.s.indexAdd(w.name)
}

func (s *cephStore) Remove(name string) error {
	err := s.ioctx.Delete(s.obj(name))
	if err == rados.ErrNotFound {
		err = nil
	}
	if err != nil {
		return err
	}
	return s.indexRemove(name)
}

func (s *cephStore) List() ([]string, error) {
	data, err := s.readAll(s.cfg.Prefix + cephIndexObject)
	if err != nil {
		if err == rados.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *cephStore) writeIndex(names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return s.ioctx.WriteFull(s.cfg.Prefix+cephIndexObject, data)
}

func (s *cephStore) indexAdd(name string) error {
	names, err := s.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return s.writeIndex(append(names, name))
}

func (s *cephStore) indexRemove(name string) error {
	names, err := s.List()
	if err != nil {
		return err
	}
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return s.writeIndex(out)
}

func (s *cephStore) Close() error {
	s.ioctx.Destroy()
	s.conn.Shutdown()
	return nil
}
