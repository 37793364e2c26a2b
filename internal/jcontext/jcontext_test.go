package jcontext

import (
	"testing"

	"github.com/launix-de/jjsgo/internal/value"
)

func TestArenaReservesNull(t *testing.T) {
	a, err := NewArena(1 << 12)
	if err != nil {
		t.Fatal(err)
	}
	cp := a.Alloc(16)
	if cp.IsNull() {
		t.Fatal("first allocation must succeed")
	}
	if cp == 0 {
		t.Fatal("offset 0 is reserved for NULL")
	}
	if int(cp)%value.Alignment != 0 {
		t.Fatalf("unaligned pointer %d", cp)
	}
}

func TestArenaGrows(t *testing.T) {
	a, _ := NewArena(64)
	var last value.CompressedPointer
	for i := 0; i < 100; i++ {
		cp := a.Alloc(32)
		if cp.IsNull() {
			t.Fatalf("allocation %d failed", i)
		}
		if cp == last {
			t.Fatal("allocations must not alias")
		}
		last = cp
	}
}

func TestCellReuse(t *testing.T) {
	a, _ := NewArena(1 << 12)
	c1 := a.AllocCell()
	a.FreeCell(c1)
	c2 := a.AllocCell()
	if c1 != c2 {
		t.Fatalf("freed cells are reused LIFO: %d vs %d", c1, c2)
	}
}

func TestFinalizersRunInReverse(t *testing.T) {
	ctx, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	var order []int
	ctx.RegisterFinalizer(func() { order = append(order, 1) })
	ctx.RegisterFinalizer(func() { order = append(order, 2) })
	ctx.Destroy()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("teardown order %v", order)
	}
	ctx.Destroy() // second destroy is a no-op
	if len(order) != 2 {
		t.Fatal("finalizers must run once")
	}
}

func TestExceptionSlot(t *testing.T) {
	ctx, _ := New(Options{})
	defer ctx.Destroy()
	if ctx.HasException() {
		t.Fatal("fresh context has no exception")
	}
	ctx.SetException(value.Int(3))
	v, ok := ctx.TakeException()
	if !ok || !v.IsException() {
		t.Fatalf("take: %v %v", v, ok)
	}
	if _, ok := ctx.TakeException(); ok {
		t.Fatal("take clears the slot")
	}
}

func TestScratchLifo(t *testing.T) {
	ctx, _ := New(Options{})
	defer ctx.Destroy()
	s1 := ctx.AcquireScratch()
	s2 := ctx.AcquireScratch()
	if s2.Alloc(16) == nil {
		t.Fatal("scratch allocation failed")
	}
	s2.Release()
	s1.Release()
	s1.Release() // double release is inert
	if s1.Alloc(8) != nil {
		t.Fatal("released scratch must refuse allocations")
	}
}
