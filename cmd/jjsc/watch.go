package jjsc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var flagWatchSnapshot bool

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Recompile a source file whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		// Watch the directory: editors replace files on save, which
		// drops a watch registered on the file itself.
		if err := watcher.Add(filepath.Dir(target)); err != nil {
			return err
		}

		rebuild := func() {
			e, err := newEngine()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			defer e.close()
			src, err := os.ReadFile(target)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			if flagWatchSnapshot {
				img, err := e.snapshotOne(target, src)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					return
				}
				out := target + ".snapshot"
				if err := os.WriteFile(out, img, 0o644); err != nil {
					fmt.Fprintln(os.Stderr, err)
					return
				}
				fmt.Printf("%s %s: %d bytes\n", time.Now().Format("15:04:05"), out, len(img))
				return
			}
			rec, err := e.compile(target, src)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return
			}
			fmt.Printf("%s %s: ok (%d bytes byte-code)\n",
				time.Now().Format("15:04:05"), target, len(rec.Code))
			rec.Deref()
		}

		rebuild()
		var last time.Time
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// coalesce editor write bursts
				if time.Since(last) < 100*time.Millisecond {
					continue
				}
				last = time.Now()
				rebuild()
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintln(os.Stderr, "watch:", err)
			}
		}
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchSnapshot, "snapshot", false, "re-snapshot instead of parse-only")
}
