package jcontext

import (
	"errors"

	"github.com/launix-de/jjsgo/internal/value"
)

var errModuleImportUnsupported = errors.New("dynamic import is not supported by the host")

// Host callback registration. All callbacks are per-context, invoked on
// the context's owning goroutine only; none of them introduce suspension
// points inside lexing, parsing or the snapshot codecs.

// ImportMetaCallback fires the first time a module evaluates import.meta;
// the host may populate properties on the meta object.
type ImportMetaCallback func(moduleSpecifier string, meta value.Value, user any)

// ModuleImportCallback serves dynamic import() requests.
type ModuleImportCallback func(specifier string, user any) (value.Value, error)

// PromiseEvent enumerates the filterable promise/job event stream.
type PromiseEvent uint32

const (
	PromiseCreate PromiseEvent = 1 << iota
	PromiseResolve
	PromiseReject
	PromiseResolveFulfilled
	PromiseRejectFulfilled
	PromiseRejectWithoutHandler
	PromiseCatchHandlerAdded
	PromiseBeforeReactionJob
	PromiseAfterReactionJob
	PromiseAsyncAwait
	PromiseAsyncBeforeResolve
	PromiseAsyncBeforeReject
	PromiseAsyncAfterResolve
	PromiseAsyncAfterReject
)

// PromiseCallback receives events matching the registered filter.
type PromiseCallback func(event PromiseEvent, object, payload value.Value, user any)

// ExecStopCallback is polled at a configurable opcode granularity. A nil
// return continues execution; a non-nil value is injected as an
// exception.
type ExecStopCallback func(user any) *value.Value

type callbacks struct {
	importMeta     ImportMetaCallback
	importMetaUser any

	moduleImport     ModuleImportCallback
	moduleImportUser any

	promise       PromiseCallback
	promiseFilter PromiseEvent
	promiseUser   any

	execStop            ExecStopCallback
	execStopUser        any
	execStopGranularity uint32
}

// SetImportMetaCallback registers the import.meta hook.
func (c *Context) SetImportMetaCallback(cb ImportMetaCallback, user any) {
	c.cb.importMeta = cb
	c.cb.importMetaUser = user
}

// NotifyImportMeta runs the registered hook, if any.
func (c *Context) NotifyImportMeta(specifier string, meta value.Value) {
	if c.cb.importMeta != nil {
		c.cb.importMeta(specifier, meta, c.cb.importMetaUser)
	}
}

// SetModuleImportCallback registers the dynamic import() resolver.
func (c *Context) SetModuleImportCallback(cb ModuleImportCallback, user any) {
	c.cb.moduleImport = cb
	c.cb.moduleImportUser = user
}

// ResolveModuleImport serves one dynamic import through the host; with no
// resolver registered the import fails.
func (c *Context) ResolveModuleImport(specifier string) (value.Value, error) {
	if c.cb.moduleImport == nil {
		return value.Undefined(), errModuleImportUnsupported
	}
	return c.cb.moduleImport(specifier, c.cb.moduleImportUser)
}

// SetPromiseCallback registers the filtered promise/job event stream.
func (c *Context) SetPromiseCallback(filter PromiseEvent, cb PromiseCallback, user any) {
	c.cb.promise = cb
	c.cb.promiseFilter = filter
	c.cb.promiseUser = user
}

// NotifyPromiseEvent delivers one event if it passes the filter.
func (c *Context) NotifyPromiseEvent(event PromiseEvent, object, payload value.Value) {
	if c.cb.promise != nil && c.cb.promiseFilter&event != 0 {
		c.cb.promise(event, object, payload, c.cb.promiseUser)
	}
}

// SetExecStopCallback registers the cancellation poll and its opcode
// granularity.
func (c *Context) SetExecStopCallback(cb ExecStopCallback, user any, granularity uint32) {
	if granularity == 0 {
		granularity = 1024
	}
	c.cb.execStop = cb
	c.cb.execStopUser = user
	c.cb.execStopGranularity = granularity
}

// PollExecStop runs the cancellation callback; the returned value, when
// present, is the exception to inject.
func (c *Context) PollExecStop() *value.Value {
	if c.cb.execStop == nil {
		return nil
	}
	return c.cb.execStop(c.cb.execStopUser)
}

// ExecStopGranularity reports the configured poll interval in opcodes.
func (c *Context) ExecStopGranularity() uint32 {
	return c.cb.execStopGranularity
}
