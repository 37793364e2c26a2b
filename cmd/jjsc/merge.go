package jjsc

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/launix-de/jjsgo/internal/snapshot"
	"github.com/launix-de/jjsgo/internal/snapshot/snapshotio"
)

var flagMergeOut string

var mergeCmd = &cobra.Command{
	Use:   "merge <snapshot>...",
	Short: "Merge snapshot images into one",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		var inputs [][]byte
		total := 0
		for _, f := range args {
			data, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			// stored images may be compression-tagged
			if img, derr := snapshotio.Decode(data); derr == nil {
				data = img
			}
			inputs = append(inputs, data)
			total += len(data)
		}

		out := make([]byte, total*2+4096)
		n, msg := snapshot.Merge(e.store, inputs, out)
		if n == 0 {
			return fmt.Errorf("merge failed: %s", msg)
		}
		dst := flagMergeOut
		if dst == "" {
			dst = "merged.snapshot"
		}
		if err := os.WriteFile(dst, out[:n], 0o644); err != nil {
			return err
		}
		fmt.Printf("%s: %d bytes from %d inputs\n", dst, n, len(inputs))
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&flagMergeOut, "out", "o", "", "output file")
}
