package jjsc

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	newprompt    = "\033[32mjjs>\033[0m "
	resultprompt = "\033[31m=\033[0m "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive compile-and-inspect prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repl()
	},
}

func repl() error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".jjsc-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()
	st := &replState{engine: e, dump: true}

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		// anti-panic func
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r, string(debug.Stack()))
				}
			}()
			if cmd, ok := parseReplCommand(line); ok {
				st.execute(cmd)
				return
			}
			st.compileLine(line)
		}()
	}
	return nil
}

type replState struct {
	engine   *engine
	dump     bool
	lastLine string
}

func (st *replState) compileLine(line string) {
	rec, err := st.engine.compile("<repl>", []byte(line))
	if err != nil {
		fmt.Println(err)
		return
	}
	st.lastLine = line
	fmt.Print(resultprompt)
	fmt.Printf("compiled: %d bytes byte-code, %d literals, stack limit %d\n",
		len(rec.Code), rec.LiteralEnd-rec.RegisterEnd, rec.StackLimit)
	if st.dump {
		dumpTree(os.Stdout, rec, "<repl>")
	}
	rec.Deref()
}

func (st *replState) execute(cmd replCommand) {
	switch cmd.kind {
	case ":help":
		fmt.Println(`:help               this text
:dump on|off        toggle byte-code dumps
:snapshot <file>    snapshot the last compiled line into <file>
:mode strict|sloppy|module
:mem                allocator statistics
:quit               leave`)
	case ":dump":
		st.dump = cmd.arg != "off"
	case ":snapshot":
		if st.lastLine == "" {
			fmt.Println("nothing compiled yet")
			return
		}
		img, err := st.engine.snapshotOne("<repl>", []byte(st.lastLine))
		if err != nil {
			fmt.Println(err)
			return
		}
		if err := os.WriteFile(cmd.arg, img, 0o644); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("%s: %d bytes\n", cmd.arg, len(img))
	case ":mode":
		flagStrict = cmd.arg == "strict"
		flagModule = cmd.arg == "module"
		fmt.Println("mode:", cmd.arg)
	case ":mem":
		fmt.Println(st.engine.ctx.MemStatsString())
	case ":quit":
		os.Exit(0)
	}
}
