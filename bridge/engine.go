// Package bridge gives host objects referenced from a script heap a stable
// identity. It keeps at most one live script wrapper per host object and
// defers releases requested off the owning goroutine until the owner drains
// them.
package bridge

import (
	"errors"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("hostbind.bridge")

var (
	// ErrNotOwner is returned for owner-only operations called from another goroutine.
	ErrNotOwner = errors.New("bridge: not on the owning goroutine")
	// ErrClosed is returned for requests made after the runtime was closed.
	ErrClosed = errors.New("bridge: runtime closed")
	// ErrUnknownObject is returned for ids that are not live in the cache.
	ErrUnknownObject = errors.New("bridge: unknown object")
	// ErrUnhashable is returned for host values that cannot serve as identity keys.
	ErrUnhashable = errors.New("bridge: host object is not hashable")
	// ErrOutOfRoot is returned for module ids resolving outside the source root.
	ErrOutOfRoot = errors.New("bridge: module path escapes source root")
)

// ObjectID identifies a host object slot. Zero is never allocated.
type ObjectID int32

// Value is an opaque script engine handle. Zero is the undefined value.
type Value uint64

// Engine is the script engine as seen by the runtime. Implementations are
// only called from the runtime's owning goroutine.
type Engine interface {
	// NewObject creates a script wrapper backed by the host object slot id.
	NewObject(id ObjectID) (Value, error)
	// NewBuffer creates a script byte buffer holding a copy of data.
	NewBuffer(data []byte) (Value, error)
	FreeValue(v Value) error
	SetModuleLoader(loader ModuleLoader) error
}

// ModuleLoader resolves and reads script modules for the engine.
type ModuleLoader interface {
	// Resolve maps a module id imported by parent to a loadable path.
	Resolve(parent, id string) (string, error)
	Load(path string) ([]byte, error)
}
