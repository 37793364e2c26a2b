package jjsc

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/launix-de/jjsgo/internal/snapshot"
	"github.com/launix-de/jjsgo/internal/snapshot/snapshotio"
)

var (
	flagDumpLiterals  bool
	flagDumpStrings   bool
	flagDumpFunctions bool
	flagDumpIndex     int
)

var dumpCmd = &cobra.Command{
	Use:   "dump <snapshot>",
	Short: "Inspect a snapshot image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if img, derr := snapshotio.Decode(data); derr == nil {
			data = img
		}

		if flagDumpStrings {
			strs, err := snapshot.ExtractStringLiterals(data)
			if err != nil {
				return err
			}
			for _, s := range strs {
				fmt.Printf("%q\n", s)
			}
			return nil
		}

		if flagDumpLiterals || !flagDumpFunctions {
			lits, err := snapshot.ExtractLiterals(data)
			if err != nil {
				return err
			}
			for _, li := range lits {
				switch {
				case li.IsString():
					fmt.Printf("%8d  string  %q\n", li.Offset, li.String)
				case li.IsNumber():
					fmt.Printf("%8d  number  %g\n", li.Offset, li.Number)
				case li.IsBigInt():
					fmt.Printf("%8d  bigint  %sn\n", li.Offset, li.BigInt)
				}
			}
		}

		if flagDumpFunctions {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()
			rec, exc := snapshot.Exec(e.store, data, flagDumpIndex,
				snapshot.ExecAllowStatic, snapshot.ExecOptions{SourceName: args[0]})
			if exc != nil {
				return exc
			}
			dumpTree(os.Stdout, rec, fmt.Sprintf("%s[%d]", args[0], flagDumpIndex))
			rec.Deref()
		}
		return nil
	},
}

func init() {
	f := dumpCmd.Flags()
	f.BoolVar(&flagDumpLiterals, "literals", false, "dump the literal table")
	f.BoolVar(&flagDumpStrings, "strings", false, "dump only string literals")
	f.BoolVar(&flagDumpFunctions, "functions", false, "dump function byte-code")
	f.IntVar(&flagDumpIndex, "index", 0, "function index to load")
}
