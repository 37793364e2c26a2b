package lexer

import (
	nlrm "github.com/launix-de/NonLockingReadMap"
)

// keywordEntry satisfies nlrm.KeyGetter[string]: the lexer's keyword
// tables are built once at init and read on every identifier scan, which
// is exactly the read-heavy/write-once access pattern
// NonLockingReadMap documents itself for.
type keywordEntry struct {
	text string
	kw   Keyword
}

func (k keywordEntry) GetKey() string    { return k.text }
func (k keywordEntry) ComputeSize() uint { return uint(len(k.text)) + 8 }

// keywordsByLength buckets the keyword table by spelling length so a scan
// only ever compares against same-length candidates.
var keywordsByLength = map[int]*nlrm.NonLockingReadMap[keywordEntry, string]{}

// keywordList covers every reserved and contextually reserved spelling
// from two to ten characters.
var keywordList = []struct {
	text string
	kw   Keyword
}{
	{"do", KwDo}, {"if", KwIf}, {"in", KwIn},
	{"for", KwFor}, {"let", KwLet}, {"new", KwNew}, {"try", KwTry}, {"var", KwVar},
	{"case", KwCase}, {"else", KwElse}, {"enum", KwEnum}, {"eval", KwEval},
	{"meta", KwMeta}, {"null", KwNull}, {"this", KwThis}, {"true", KwTrue},
	{"void", KwVoid}, {"with", KwWith},
	{"async", KwAsync}, {"await", KwAwait}, {"break", KwBreak}, {"catch", KwCatch},
	{"class", KwClass}, {"const", KwConst}, {"false", KwFalse}, {"super", KwSuper},
	{"throw", KwThrow}, {"while", KwWhile}, {"yield", KwYield},
	{"delete", KwDelete}, {"export", KwExport}, {"import", KwImport},
	{"public", KwPublic}, {"return", KwReturn}, {"static", KwStatic},
	{"switch", KwSwitch}, {"typeof", KwTypeof},
	{"default", KwDefault}, {"extends", KwExtends}, {"finally", KwFinally},
	{"package", KwPackage}, {"private", KwPrivate},
	{"continue", KwContinue}, {"debugger", KwDebugger}, {"function", KwFunction},
	{"arguments", KwArguments}, {"interface", KwInterface}, {"protected", KwProtected},
	{"implements", KwImplements}, {"instanceof", KwInstanceof},
}

func init() {
	for _, e := range keywordList {
		n := len(e.text)
		m, ok := keywordsByLength[n]
		if !ok {
			fresh := nlrm.New[keywordEntry, string]()
			keywordsByLength[n] = &fresh
			m = &fresh
		}
		m.Set(&keywordEntry{text: e.text, kw: e.kw})
	}
}

// LookupKeyword does the length-bucketed, compare-confirmed keyword
// check: a string only pays for a lookup within candidates of its own
// length.
func LookupKeyword(ident []byte) Keyword {
	n := len(ident)
	if n < 2 || n > 10 {
		return KwNone
	}
	m, ok := keywordsByLength[n]
	if !ok {
		return KwNone
	}
	e := m.Get(string(ident))
	if e == nil {
		return KwNone
	}
	return e.kw
}

// futureStrictReserved marks identifiers that are only reserved in strict
// mode.
var futureStrictReserved = map[Keyword]bool{
	KwLet: true, KwStatic: true, KwYield: true,
	KwImplements: true, KwInterface: true, KwPackage: true,
	KwPrivate: true, KwProtected: true, KwEval: true, KwArguments: true,
}

func IsStrictReserved(kw Keyword) bool { return futureStrictReserved[kw] }

// contextualKeywords are spellings that scan as plain identifiers and are
// promoted to keywords only by surrounding context: `let` in strict code,
// `await`/`yield` in async/generator bodies and modules, `async` before a
// function, `meta` after `import.`, the future-reserved set in strict
// mode, and `eval`/`arguments` as restricted binding names.
var contextualKeywords = map[Keyword]bool{
	KwLet: true, KwStatic: true, KwYield: true, KwAwait: true,
	KwAsync: true, KwMeta: true, KwEval: true, KwArguments: true,
	KwImplements: true, KwInterface: true, KwPackage: true,
	KwPrivate: true, KwProtected: true, KwPublic: true,
}

func IsContextual(kw Keyword) bool { return contextualKeywords[kw] }
