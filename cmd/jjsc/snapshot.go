package jjsc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/launix-de/jjsgo/internal/snapshot"
	"github.com/launix-de/jjsgo/internal/snapshot/snapshotio"
	"github.com/launix-de/jjsgo/internal/snapshotstore"
)

var (
	flagSnapOut      string
	flagSnapStatic   bool
	flagSnapCompress string
	flagSnapStore    string
	flagSnapStoreCfg string
	flagSnapName     string
	flagMergeDir     string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [file]",
	Short: "Compile a source and write its snapshot image",
	Long: `Compile a source file to byte-code and serialise it into a snapshot
image. With --merge-dir, every .js file of a directory is compiled and
the images are merged into one. The image goes to --out, or into a
snapshot store selected by --store/--store-config under --name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		var image []byte
		var defaultName string
		if flagMergeDir != "" {
			image, err = e.snapshotDir(flagMergeDir)
			defaultName = filepath.Base(flagMergeDir)
		} else {
			var name string
			var src []byte
			name, src, err = readSource(args)
			if err != nil {
				return err
			}
			image, err = e.snapshotOne(name, src)
			defaultName = filepath.Base(name)
		}
		if err != nil {
			return err
		}

		if flagSnapCompress != "" {
			image, err = snapshotio.Encode(image, snapshotio.Codec(flagSnapCompress))
			if err != nil {
				return err
			}
		}

		if flagSnapStore != "" {
			return writeToStore(image, defaultName)
		}
		out := flagSnapOut
		if out == "" {
			out = defaultName + ".snapshot"
		}
		if err := os.WriteFile(out, image, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s: %d bytes\n", out, len(image))
		return nil
	},
}

func init() {
	f := snapshotCmd.Flags()
	f.StringVarP(&flagSnapOut, "out", "o", "", "output file")
	f.BoolVar(&flagSnapStatic, "static", false, "produce a static (in-place literal) snapshot")
	f.StringVar(&flagSnapCompress, "compress", "", "compress the image (xz, lz4)")
	f.StringVar(&flagSnapStore, "store", "", "store backend (files, s3, ceph, sql)")
	f.StringVar(&flagSnapStoreCfg, "store-config", "", "backend config as JSON")
	f.StringVar(&flagSnapName, "name", "", "snapshot name inside the store")
	f.StringVar(&flagMergeDir, "merge-dir", "", "compile every .js file in a directory and merge")
}

func (e *engine) snapshotOne(name string, src []byte) ([]byte, error) {
	rec, err := e.compile(name, src)
	if err != nil {
		return nil, err
	}
	defer rec.Deref()

	var flags uint32
	if flagSnapStatic {
		flags |= snapshot.SaveStatic
	}
	buf := make([]byte, snapshotBufferSize(len(src)))
	n, exc := snapshot.Generate(e.store, rec, flags, buf)
	if exc != nil {
		return nil, exc
	}
	return buf[:n], nil
}

func (e *engine) snapshotDir(dir string) ([]byte, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .js files in %s", dir)
	}
	sort.Strings(files)

	var images [][]byte
	total := 0
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		img, err := e.snapshotOne(f, src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		images = append(images, img)
		total += len(img)
	}

	out := make([]byte, total*2+4096)
	n, msg := snapshot.Merge(e.store, images, out)
	if n == 0 {
		return nil, fmt.Errorf("merge failed: %s", msg)
	}
	return out[:n], nil
}

func snapshotBufferSize(srcLen int) int {
	n := srcLen*8 + (1 << 16)
	if n > snapshot.MaxSnapshotSize {
		n = snapshot.MaxSnapshotSize
	}
	return n
}

func writeToStore(image []byte, defaultName string) error {
	var raw json.RawMessage
	if flagSnapStoreCfg != "" {
		raw = json.RawMessage(flagSnapStoreCfg)
	}
	store, err := snapshotstore.Open(flagSnapStore, raw)
	if err != nil {
		return err
	}
	defer store.Close()

	name := flagSnapName
	if name == "" {
		name = defaultName
	}
	w, err := store.Write(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(image); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("%s -> %s store (%d bytes)\n", name, flagSnapStore, len(image))
	return nil
}
