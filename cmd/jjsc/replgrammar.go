package jjsc

import (
	"strings"

	packrat "github.com/launix-de/go-packrat"
)

// The repl's meta-command line grammar is built from packrat combinators:
// each command is an AndParser of its atom and argument shape, the
// command set is one OrParser, and matching is anchored with an
// EndParser so trailing garbage fails the parse instead of being
// silently ignored.

type replCommand struct {
	kind string
	arg  string
}

var (
	replParser  packrat.Parser
	replArgWord = packrat.NewRegexParser(`[^\s]+`, false, true)
)

func init() {
	cmd := func(name string, arg packrat.Parser) packrat.Parser {
		atom := packrat.NewAtomParser(name, false, true)
		if arg == nil {
			return packrat.NewAndParser(atom, packrat.NewEndParser(true))
		}
		return packrat.NewAndParser(atom, arg, packrat.NewEndParser(true))
	}
	replParser = packrat.NewOrParser(
		cmd(":help", nil),
		cmd(":dump", packrat.NewOrParser(
			packrat.NewAtomParser("on", false, true),
			packrat.NewAtomParser("off", false, true),
		)),
		cmd(":snapshot", replArgWord),
		cmd(":mode", packrat.NewOrParser(
			packrat.NewAtomParser("strict", false, true),
			packrat.NewAtomParser("sloppy", false, true),
			packrat.NewAtomParser("module", false, true),
		)),
		cmd(":mem", nil),
		cmd(":quit", nil),
	)
}

// parseReplCommand matches a meta command; ok is false for ordinary
// source lines (anything not starting with ':') and for ':' lines that
// the command grammar rejects.
func parseReplCommand(line string) (replCommand, bool) {
	if !strings.HasPrefix(strings.TrimSpace(line), ":") {
		return replCommand{}, false
	}
	scanner := packrat.NewScanner(line, packrat.SkipWhitespaceAndCommentsRegex)
	node, err := packrat.Parse(replParser, scanner)
	if err != nil {
		return replCommand{}, false
	}
	return extractReplCommand(&node), true
}

// extractReplCommand walks the parse tree the way the combinators nest:
// the OrParser picks one AndParser whose children are the atom, the
// optional argument and the end marker.
func extractReplCommand(n *packrat.Node) replCommand {
	for {
		if _, ok := n.Parser.(*packrat.OrParser); ok && len(n.Children) > 0 {
			n = n.Children[0]
			continue
		}
		break
	}
	cmd := replCommand{}
	if len(n.Children) == 0 {
		cmd.kind = strings.TrimSpace(n.Matched)
		return cmd
	}
	cmd.kind = strings.TrimSpace(n.Children[0].Matched)
	if len(n.Children) > 2 {
		arg := n.Children[1]
		for len(arg.Children) > 0 {
			arg = arg.Children[0]
		}
		cmd.arg = strings.TrimSpace(arg.Matched)
	}
	return cmd
}
