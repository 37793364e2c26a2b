package jjsc

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagParseOnly bool

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Compile a source file (stdin with no argument) and report",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		name, src, err := readSource(args)
		if err != nil {
			return err
		}
		rec, err := e.compile(name, src)
		if err != nil {
			return err
		}
		if flagShowOpcodes {
			dumpTree(os.Stdout, rec, name)
		}
		if !flagParseOnly && !flagShowOpcodes {
			fmt.Printf("%s: ok (%d bytes byte-code, %d literals)\n",
				name, len(rec.Code), rec.LiteralEnd-rec.RegisterEnd)
		}
		rec.Deref()
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&flagParseOnly, "parse-only", false, "compile without reporting")
}
