package parser

import (
	"github.com/launix-de/jjsgo/internal/bytecode"
	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/lexer"
)

// Module bookkeeping: while parsing a module the parser maintains import
// nodes keyed by module specifier and export nodes (local, indirect and
// star re-exports). Duplicate checks are keyed separately on the local
// binding name and on the exported name, which carry different error
// codes.

type importEntry struct {
	Specifier  string
	ImportName string // name in the source module; "*" or "default" included
	LocalName  string
}

type exportEntry struct {
	LocalName    string
	ExportName   string
	Specifier    string // non-empty for indirect and star re-exports
	IsStar       bool
	IsIndirect   bool
}

type moduleState struct {
	imports    []importEntry
	exports    []exportEntry
	localNames map[string]bool
	exported   map[string]bool
}

func newModuleState() *moduleState {
	return &moduleState{
		localNames: map[string]bool{},
		exported:   map[string]bool{},
	}
}

// Imports and Exports expose the collected bookkeeping for a host module
// loader.
func (m *moduleState) Imports() []importEntry { return m.imports }
func (m *moduleState) Exports() []exportEntry { return m.exports }

func (m *moduleState) addImport(p *Parser, e importEntry) {
	if m.localNames[e.LocalName] {
		p.raise(errors.ErrDuplicatedImportedIdentifier)
	}
	m.localNames[e.LocalName] = true
	m.imports = append(m.imports, e)
}

func (m *moduleState) addExport(p *Parser, e exportEntry) {
	if !e.IsStar {
		if m.exported[e.ExportName] {
			p.raise(errors.ErrDuplicatedExportedIdentifier)
		}
		m.exported[e.ExportName] = true
	}
	m.exports = append(m.exports, e)
}

// validate runs the cross-statement module checks after the whole body
// has been parsed.
func (m *moduleState) validate(p *Parser) {
	for _, e := range m.exports {
		if e.IsStar || e.IsIndirect {
			continue
		}
		if isReservedExportName(e.LocalName) {
			p.raise(errors.ErrReservedWordAsIdentifier)
		}
	}
}

func isReservedExportName(name string) bool {
	kw := lexer.LookupKeyword([]byte(name))
	return kw != lexer.KwNone && !lexer.IsContextual(kw)
}

func (p *Parser) requireModule() {
	if p.module == nil {
		p.raise(errors.ErrUnexpectedToken)
	}
}

// parseImportDeclaration handles every import statement form:
//
//	import "mod"
//	import d from "mod"
//	import * as ns from "mod"
//	import { a, b as c } from "mod"
//	import d, { a } from "mod" / import d, * as ns from "mod"
func (p *Parser) parseImportDeclaration() {
	p.requireModule()
	p.advance() // import

	if t := p.cur(); t.Type == lexer.StringLiteral {
		spec := string(lexer.DecodeString(p.source, t))
		p.advance()
		p.module.imports = append(p.module.imports, importEntry{Specifier: spec})
		p.expectSemicolon()
		return
	}

	var pending []importEntry

	// default binding
	if t := p.cur(); t.Type == lexer.Identifier {
		name := p.bindingIdent()
		pending = append(pending, importEntry{ImportName: "default", LocalName: name})
		if p.isPunct(lexer.PComma) {
			p.advance()
		} else {
			p.expectFrom(pending)
			return
		}
	}

	switch {
	case p.eatPunct(lexer.PMul):
		p.expectAs()
		name := p.bindingIdent()
		pending = append(pending, importEntry{ImportName: "*", LocalName: name})
	case p.eatPunct(lexer.PLBrace):
		for !p.isPunct(lexer.PRBrace) {
			imported := p.moduleName()
			local := imported
			if p.isAs() {
				p.advance()
				local = p.bindingIdent()
			}
			pending = append(pending, importEntry{ImportName: imported, LocalName: local})
			if !p.eatPunct(lexer.PComma) {
				break
			}
		}
		p.expectPunct(lexer.PRBrace, errors.ErrExpectedRightBrace)
	default:
		p.raise(errors.ErrUnexpectedToken)
	}
	p.expectFrom(pending)
}

func (p *Parser) expectFrom(pending []importEntry) {
	if t := p.cur(); t.Type != lexer.Identifier || p.text(t) != "from" {
		p.raise(errors.ErrExpectedFrom)
	}
	p.advance()
	t := p.cur()
	if t.Type != lexer.StringLiteral {
		p.raise(errors.ErrExpectedStringLiteral)
	}
	spec := string(lexer.DecodeString(p.source, t))
	p.advance()
	for _, e := range pending {
		e.Specifier = spec
		p.module.addImport(p, e)
	}
	p.expectSemicolon()
}

func (p *Parser) isAs() bool {
	t := p.cur()
	return t.Type == lexer.Identifier && p.text(t) == "as"
}

func (p *Parser) expectAs() {
	if !p.isAs() {
		p.raise(errors.ErrUnexpectedToken)
	}
	p.advance()
}

// moduleName consumes an import/export name, which may be any identifier
// or reserved word spelling.
func (p *Parser) moduleName() string {
	t := p.cur()
	if t.Type != lexer.Identifier && t.Type != lexer.KeywordType {
		p.raise(errors.ErrExpectedIdentifier)
	}
	p.advance()
	return p.identText(t)
}

// parseExportDeclaration handles:
//
//	export { a, b as c }           (local)
//	export { a } from "mod"        (indirect)
//	export * from "mod"            (star)
//	export * as ns from "mod"
//	export var/let/const/function/class ...
//	export default <expression|function|class>
func (p *Parser) parseExportDeclaration() {
	p.requireModule()
	p.advance() // export

	switch {
	case p.eatPunct(lexer.PMul):
		exportName := ""
		if p.isAs() {
			p.advance()
			exportName = p.moduleName()
		}
		spec := p.fromSpecifier()
		p.module.addExport(p, exportEntry{
			ExportName: exportName, Specifier: spec,
			IsStar: exportName == "", IsIndirect: exportName != "",
		})
		p.expectSemicolon()

	case p.eatPunct(lexer.PLBrace):
		type namePair struct{ local, exported string }
		var pairs []namePair
		for !p.isPunct(lexer.PRBrace) {
			local := p.moduleName()
			exported := local
			if p.isAs() {
				p.advance()
				exported = p.moduleName()
			}
			pairs = append(pairs, namePair{local, exported})
			if !p.eatPunct(lexer.PComma) {
				break
			}
		}
		p.expectPunct(lexer.PRBrace, errors.ErrExpectedRightBrace)
		if t := p.cur(); t.Type == lexer.Identifier && p.text(t) == "from" {
			spec := p.fromSpecifier()
			for _, pr := range pairs {
				p.module.addExport(p, exportEntry{
					LocalName: pr.local, ExportName: pr.exported,
					Specifier: spec, IsIndirect: true,
				})
			}
		} else {
			for _, pr := range pairs {
				p.module.addExport(p, exportEntry{LocalName: pr.local, ExportName: pr.exported})
				p.fc.em.EmitExtLiteral(bytecode.ExtOpModuleExport, p.identIndex(pr.local, false))
			}
		}
		p.expectSemicolon()

	case p.isKw(lexer.KwDefault):
		p.advance()
		p.module.addExport(p, exportEntry{ExportName: "default", LocalName: "*default*"})
		switch {
		case p.isKw(lexer.KwFunction) || (p.isKw(lexer.KwAsync) && p.peekAt(1).Keyword == lexer.KwFunction):
			p.parseFunctionExpression()
		case p.isKw(lexer.KwClass):
			p.parseClassExpression()
		default:
			p.parseAssignmentExpr()
			p.expectSemicolon()
		}
		p.fc.em.EmitExtLiteral(bytecode.ExtOpModuleExport, p.identIndex("*default*", false))

	case p.isKw(lexer.KwVar):
		p.exportDeclNames(func() {
			p.advance()
			p.parseVariableDeclaration(declVar, false)
		})
	case p.isKw(lexer.KwLet):
		p.exportDeclNames(func() {
			p.advance()
			p.parseVariableDeclaration(declLet, false)
		})
	case p.isKw(lexer.KwConst):
		p.exportDeclNames(func() {
			p.advance()
			p.parseVariableDeclaration(declConst, false)
		})
	case p.isKw(lexer.KwFunction), p.isKw(lexer.KwAsync):
		from := p.pos
		p.parseFunctionDeclaration()
		name := p.declaredNameAfter(from)
		p.module.addExport(p, exportEntry{LocalName: name, ExportName: name})
	case p.isKw(lexer.KwClass):
		from := p.pos
		p.parseClassDeclaration()
		name := p.declaredNameAfter(from)
		p.module.addExport(p, exportEntry{LocalName: name, ExportName: name})
	default:
		p.raise(errors.ErrUnexpectedToken)
	}
}

// exportDeclNames runs a declaration parse and exports every name it
// binds, by re-reading the token range.
func (p *Parser) exportDeclNames(parse func()) {
	from := p.pos
	parse()
	p.expectSemicolon()
	// binding positions only: skip keys, defaults and initialiser
	// expressions the same way the scanner does
	bound := newFnScan(from, p.pos)
	(&scanner{toks: p.toks, source: p.source}).scanDeclNames(from+1, bound, declVar)
	for _, v := range bound.vars {
		name := v.name
		if p.module.exported[name] {
			continue
		}
		p.module.addExport(p, exportEntry{LocalName: name, ExportName: name})
		p.fc.em.EmitExtLiteral(bytecode.ExtOpModuleExport, p.identIndex(name, false))
	}
}

// declaredNameAfter extracts the binding name of a function/class
// declaration that begins at token index from.
func (p *Parser) declaredNameAfter(from int) string {
	for i := from; i < p.pos; i++ {
		if p.toks[i].Type == lexer.Identifier {
			name := p.identText(p.toks[i])
			if name == "async" {
				continue
			}
			return name
		}
	}
	return ""
}

func (p *Parser) fromSpecifier() string {
	if t := p.cur(); t.Type != lexer.Identifier || p.text(t) != "from" {
		p.raise(errors.ErrExpectedFrom)
	}
	p.advance()
	t := p.cur()
	if t.Type != lexer.StringLiteral {
		p.raise(errors.ErrExpectedStringLiteral)
	}
	p.advance()
	return string(lexer.DecodeString(p.source, t))
}
