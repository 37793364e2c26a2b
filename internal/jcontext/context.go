// Package jcontext implements the engine's process-local context: the
// heap region, free-list/cell allocators, the current exception slot,
// per-request flags, and the finalizer teardown chain. Every other
// component takes a *Context explicitly rather than reaching for
// ambient/global state.
package jcontext

import (
	"fmt"
	"sync"

	"github.com/dc0d/onexit"
	units "github.com/docker/go-units"

	"github.com/launix-de/jjsgo/internal/errors"
	"github.com/launix-de/jjsgo/internal/value"
)

// Options configures a new Context. It is passed once at construction;
// there are no package-level knobs.
type Options struct {
	// InitialHeapSize reserves the VM heap's backing arena up front.
	// context_new fails with out-of-memory if this cannot be met.
	InitialHeapSize int
	// ScratchArenaSize is kept with the options but not read: the scratch
	// allocator has no fixed-size arena and no fallback allocator.
	ScratchArenaSize int
	ShowOpcodes      bool
	MemStats         bool
	StrictMemoryLayout bool
}

// Context is the single mutable root every component is threaded
// through: heap, free lists, the current exception, registered finalizers
// and per-request flags.
type Context struct {
	opts Options

	mu        sync.Mutex // guards the finalizer stack, the destroyed flag and the scratch count
	ownerGor  int64
	destroyed bool

	heap   *Arena
	scratchDepth int
	scratch      []*Arena

	exception value.Value
	hasExc    bool

	finalizers []func()

	cb callbacks

	// Stats, surfaced through --mem-stats.
	allocCount int
	allocBytes int64
}

// New creates a process-local engine context and binds its allocator set.
// It fails with errors.OutOfMemory if the initial heap reservation cannot
// be met.
func New(opts Options) (*Context, error) {
	if opts.InitialHeapSize <= 0 {
		opts.InitialHeapSize = 1 << 20
	}
	heap, err := NewArena(opts.InitialHeapSize)
	if err != nil {
		return nil, errors.OutOfMemory
	}
	c := &Context{opts: opts, heap: heap}
	onexit.Register(func() {
		// Best-effort: if the process is torn down without an explicit
		// Destroy, still run registered finalizers in reverse order.
		c.Destroy()
	})
	return c, nil
}

// Destroy tears the context down in reverse order of initialisation,
// running every registered finalizer.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	for i := len(c.finalizers) - 1; i >= 0; i-- {
		c.finalizers[i]()
	}
	c.finalizers = nil
}

// RegisterFinalizer pushes fn onto the teardown stack; Destroy runs these
// LIFO, mirroring onexit's registration-order-reversed semantics.
func (c *Context) RegisterFinalizer(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizers = append(c.finalizers, fn)
}

// SetException records an exception value (is_exception observable via
// value.Value.IsException; holders must never silently drop it).
func (c *Context) SetException(v value.Value) {
	c.exception = v.AsException()
	c.hasExc = true
}

// TakeException returns and clears the current exception.
func (c *Context) TakeException() (value.Value, bool) {
	if !c.hasExc {
		return value.Value{}, false
	}
	v := c.exception
	c.hasExc = false
	c.exception = value.Value{}
	return v, true
}

func (c *Context) HasException() bool { return c.hasExc }

// Heap exposes the VM heap arena to components that allocate compiled-code
// records (internal/bytecode, internal/snapshot).
func (c *Context) Heap() *Arena { return c.heap }

// ShowOpcodes / MemStats / StrictMemoryLayout expose the per-request
// flags.
func (c *Context) ShowOpcodes() bool        { return c.opts.ShowOpcodes }
func (c *Context) MemStats() bool           { return c.opts.MemStats }
func (c *Context) StrictMemoryLayout() bool { return c.opts.StrictMemoryLayout }

// RecordAlloc adds one block of n bytes to the totals that --mem-stats
// reports via go-units. The arena does not call it; only allocations
// reported through it are counted.
func (c *Context) RecordAlloc(n int) {
	c.allocCount++
	c.allocBytes += int64(n)
}

// MemStatsString renders the current allocation totals the way the CLI's
// --mem-stats flag prints them.
func (c *Context) MemStatsString() string {
	return fmt.Sprintf("allocations=%d total=%s arena-cap=%s",
		c.allocCount, units.BytesSize(float64(c.allocBytes)), units.BytesSize(float64(c.heap.Capacity())))
}
