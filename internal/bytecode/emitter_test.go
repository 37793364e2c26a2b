package bytecode

import (
	"testing"
)

func identityMap(raw uint16) uint16 {
	if raw >= RegisterStart {
		return raw - RegisterStart
	}
	return raw
}

func TestPushLiteralFusion(t *testing.T) {
	e := NewEmitter()
	e.EmitLiteral(OpPushLiteral, 1)
	e.EmitLiteral(OpPushLiteral, 2)
	code := e.PostProcess(identityMap, 0, false)
	if len(code) != 3 || Op(code[0]) != OpPushTwoLiterals {
		t.Fatalf("two pushes must fuse: % x", code)
	}
	if code[1] != 1 || code[2] != 2 {
		t.Fatalf("fused arguments: % x", code)
	}
	// the fused stack effect equals the sum of the originals
	if e.StackLimit() != 2 {
		t.Fatalf("stack limit %d", e.StackLimit())
	}
}

func TestPushThreeLiteralsFusion(t *testing.T) {
	e := NewEmitter()
	e.EmitLiteral(OpPushLiteral, 3)
	e.EmitLiteral(OpPushLiteral, 4)
	e.EmitLiteral(OpPushLiteral, 5)
	code := e.PostProcess(identityMap, 0, false)
	if len(code) != 4 || Op(code[0]) != OpPushThreeLiterals {
		t.Fatalf("three pushes must fuse: % x", code)
	}
	if e.StackLimit() != 3 {
		t.Fatalf("stack limit %d", e.StackLimit())
	}
}

func TestPostIncrRewrite(t *testing.T) {
	e := NewEmitter()
	e.EmitOp(OpPostIncr)
	e.EmitOp(OpPop) // result unused
	code := e.PostProcess(identityMap, 0, false)
	if len(code) != 1 || Op(code[0]) != OpPreIncr {
		t.Fatalf("unused post-increment must rewrite in place: % x", code)
	}

	e = NewEmitter()
	e.EmitOp(OpPostDecr)
	e.EmitOp(OpAdd) // result used: no rewrite
	code = e.PostProcess(identityMap, 0, false)
	if Op(code[0]) != OpPostDecr {
		t.Fatalf("used post-decrement must survive: % x", code)
	}
}

func TestForwardBranchShortening(t *testing.T) {
	e := NewEmitter()
	b := e.EmitForwardBranch(OpJumpForward)
	for i := 0; i < 10; i++ {
		e.EmitOp(OpNop)
	}
	e.SetTarget(b)
	code := e.PostProcess(identityMap, 0, false)
	if Op(code[0]) != OpJumpForward {
		t.Fatalf("short branch keeps the one-byte form: %v", Op(code[0]))
	}
	// delta measured from the opcode byte in final coordinates
	if int(code[1]) != len(code) {
		t.Fatalf("delta %d, code len %d", code[1], len(code))
	}
}

func TestForwardBranchTwoBytes(t *testing.T) {
	e := NewEmitter()
	b := e.EmitForwardBranch(OpJumpForward)
	for i := 0; i < 300; i++ {
		e.EmitOp(OpNop)
	}
	e.SetTarget(b)
	code := e.PostProcess(identityMap, 0, false)
	if Op(code[0]) != OpJumpForward2 {
		t.Fatalf("expected the two-byte variant, got %v", Op(code[0]))
	}
	delta := int(code[1])<<8 | int(code[2])
	if delta != len(code) {
		t.Fatalf("delta %d, code len %d", delta, len(code))
	}
}

// Branches that straddle the stream page size still resolve exactly.
func TestBranchAcrossPageBoundary(t *testing.T) {
	e := NewEmitter()
	b := e.EmitForwardBranch(OpBranchIfFalseForward)
	for i := 0; i < StreamPageSize*5; i++ {
		e.EmitOp(OpNop)
	}
	e.SetTarget(b)
	e.EmitOp(OpPushUndefined)
	code := e.PostProcess(identityMap, 0, false)
	if Op(code[0]) != OpBranchIfFalseForward2 {
		t.Fatalf("got %v", Op(code[0]))
	}
	delta := int(code[1])<<8 | int(code[2])
	target := 0 + delta
	if Op(code[target]) != OpPushUndefined {
		t.Fatalf("branch lands on %v at %d", Op(code[target]), target)
	}
}

func TestBackwardBranch(t *testing.T) {
	e := NewEmitter()
	top := e.Position()
	e.EmitOp(OpNop)
	e.EmitOp(OpNop)
	e.EmitBackwardBranch(OpJumpBackward, top)
	code := e.PostProcess(identityMap, 0, false)
	// opcode sits at final offset 2; delta 2 points back to offset 0
	if Op(code[2]) != OpJumpBackward || code[3] != 2 {
		t.Fatalf("backward encoding: % x", code)
	}
}

func TestAssignSetIdentBecomesMovForRegisters(t *testing.T) {
	e := NewEmitter()
	e.EmitLiteral(OpAssignSetIdent, RegisterStart+2)
	e.EmitLiteral(OpAssignSetIdent, 7) // heap ident stays
	code := e.PostProcess(identityMap, 5, false)
	if Op(code[0]) != OpMovIdent || code[1] != 2 {
		t.Fatalf("register destination must rewrite to MOV_IDENT: % x", code)
	}
	if Op(code[2]) != OpAssignSetIdent || code[3] != 7 {
		t.Fatalf("heap destination must stay ASSIGN_SET_IDENT: % x", code)
	}
}

func TestFullLiteralEncoding(t *testing.T) {
	e := NewEmitter()
	e.EmitLiteral(OpLoadIdent, 0x23)
	e.EmitLiteral(OpLoadIdent, 0x1234)
	code := e.PostProcess(identityMap, 0, true)
	if code[1] != 0x23 {
		t.Fatalf("small index stays one byte: % x", code)
	}
	if code[3] != 0x80|0x12 || code[4] != 0x34 {
		t.Fatalf("large index uses the marked two-byte form: % x", code)
	}
}

func TestScopeStack(t *testing.T) {
	var s ScopeStack
	s.PushFunc()
	mark := s.Depth()
	s.Push(1, RegisterStart+0)
	s.Push(2, 9)
	if to, ok := s.Resolve(1); !ok || to != RegisterStart {
		t.Fatalf("resolve 1: %v %v", to, ok)
	}
	if !s.DeclaredInBlock(2, mark) {
		t.Fatal("2 is declared in the block")
	}
	s.PushFunc()
	if _, ok := s.Resolve(1); ok {
		t.Fatal("resolution must stop at the function boundary")
	}
	s.PopTo(mark)
	if _, ok := s.Resolve(1); ok {
		t.Fatal("popped mappings must be gone")
	}
}

func TestCompiledCodeDeref(t *testing.T) {
	inner := &CompiledCode{Refs: 1}
	outer := &CompiledCode{
		Refs:            1,
		RegisterEnd:     0,
		ConstLiteralEnd: 0,
		LiteralEnd:      1,
		Literals:        []LiteralSlot{{Code: inner}},
	}
	outer.Deref()
	if inner.Refs != 0 {
		t.Fatalf("dropping the last holder must deref nested records, refs=%d", inner.Refs)
	}
}
