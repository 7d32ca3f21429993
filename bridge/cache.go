package bridge

import (
	"fmt"
	"io"
	"reflect"
	"sync"
)

// State is the lifecycle state of an object record.
type State uint8

const (
	StateNone State = iota
	StateCreated
	StateWrapperBound
	StatePendingFree
	StateFreed
)

var stateNames = [...]string{"none", "created", "wrapper-bound", "pending-free", "freed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

type record struct {
	id         ObjectID
	host       any
	disposable bool
	value      Value
	bound      bool
	state      State
}

// DisposeFunc releases a host object owned by the script side.
type DisposeFunc func(host any) error

// ObjectCache maps host objects to slot ids and bound script values in both
// directions. Host objects are used as map keys and must be comparable,
// typically pointers; other hosts are refused.
type ObjectCache struct {
	mu      sync.RWMutex
	next    ObjectID
	byID    map[ObjectID]*record
	byHost  map[any]ObjectID
	dispose DisposeFunc
}

// NewObjectCache returns an empty cache. With a nil dispose, disposable
// hosts implementing io.Closer are closed.
func NewObjectCache(dispose DisposeFunc) *ObjectCache {
	if dispose == nil {
		dispose = closeHost
	}
	return &ObjectCache{
		byID:    make(map[ObjectID]*record),
		byHost:  make(map[any]ObjectID),
		dispose: dispose,
	}
}

func closeHost(host any) error {
	if c, ok := host.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AddObject allocates a slot for host. A host already in the cache keeps its
// slot and disposable flag unless that slot is pending release, in which case
// a new slot takes over the host. It returns 0 for unhashable hosts.
func (c *ObjectCache) AddObject(host any, disposable bool) ObjectID {
	id, _ := c.add(host, disposable)
	return id
}

func (c *ObjectCache) add(host any, disposable bool) (ObjectID, bool) {
	if !hashable(host) {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if host != nil {
		if id, ok := c.byHost[host]; ok && c.byID[id].state != StatePendingFree {
			return id, true
		}
	}
	c.next++
	r := &record{id: c.next, host: host, disposable: disposable, state: StateCreated}
	c.byID[r.id] = r
	if host != nil {
		c.byHost[host] = r.id
	}
	return r.id, false
}

// AddScriptValue binds the script wrapper v to host. It fails when host has
// no slot or is already bound, so a host never has two live wrappers.
func (c *ObjectCache) AddScriptValue(host any, v Value) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.lookupHost(host)
	if r == nil || r.bound || r.state == StatePendingFree {
		return false
	}
	r.value = v
	r.bound = true
	r.state = StateWrapperBound
	return true
}

// TryGetScriptValue returns the wrapper bound to host. A wrapper pending
// release is not returned.
func (c *ObjectCache) TryGetScriptValue(host any) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := c.lookupHost(host)
	if r == nil || !r.bound || r.state == StatePendingFree {
		return 0, false
	}
	return r.value, true
}

// TryGetID returns the slot of host.
func (c *ObjectCache) TryGetID(host any) (ObjectID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r := c.lookupHost(host); r != nil {
		return r.id, true
	}
	return 0, false
}

// TryGetObject returns the host object in slot id.
func (c *ObjectCache) TryGetObject(id ObjectID) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.byID[id]; ok {
		return r.host, true
	}
	return nil, false
}

// RemoveScriptValue unbinds the wrapper of host, leaving its slot in place.
func (c *ObjectCache) RemoveScriptValue(host any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.lookupHost(host)
	if r == nil || !r.bound {
		return false
	}
	r.value = 0
	r.bound = false
	if r.state == StateWrapperBound {
		r.state = StateCreated
	}
	return true
}

// RemoveObject frees slot id. A disposable host is disposed exactly once;
// later calls for the same id return false. When a newer slot has taken over
// the host, ownership passes to that slot instead.
func (c *ObjectCache) RemoveObject(id ObjectID) bool {
	c.mu.Lock()
	r, ok := c.byID[id]
	dispose := ok && r.disposable
	if ok {
		c.unlink(r)
		if dispose && r.host != nil {
			if nid, live := c.byHost[r.host]; live {
				c.byID[nid].disposable = true
				dispose = false
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if dispose {
		c.disposeRecord(r)
	}
	return true
}

func (c *ObjectCache) unlink(r *record) {
	delete(c.byID, r.id)
	if r.host != nil && c.byHost[r.host] == r.id {
		delete(c.byHost, r.host)
	}
	r.state = StateFreed
}

func (c *ObjectCache) disposeRecord(r *record) {
	if !r.disposable || r.host == nil {
		return
	}
	if err := c.dispose(r.host); err != nil {
		log.Errorf("disposing object %d: %s", r.id, err)
	}
}

// forget drops slot id without disposing its host.
func (c *ObjectCache) forget(id ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byID[id]; ok {
		c.unlink(r)
	}
}

// markPending moves a live record to PendingFree and reports whether it did.
func (c *ObjectCache) markPending(id ObjectID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.byID[id]
	if !ok || r.state == StatePendingFree {
		return false
	}
	r.state = StatePendingFree
	return true
}

// boundValue returns the wrapper bound to slot id.
func (c *ObjectCache) boundValue(id ObjectID) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.byID[id]; ok && r.bound {
		return r.value, true
	}
	return 0, false
}

// State returns the lifecycle state of id. Ids that were allocated and have
// since been removed report StateFreed.
func (c *ObjectCache) State(id ObjectID) State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.byID[id]; ok {
		return r.state
	}
	if id > 0 && id <= c.next {
		return StateFreed
	}
	return StateNone
}

// Count is the number of live slots.
func (c *ObjectCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Clear frees every slot, disposing disposable hosts, and returns how many
// slots were live.
func (c *ObjectCache) Clear() int {
	c.mu.Lock()
	records := make([]*record, 0, len(c.byID))
	for _, r := range c.byID {
		records = append(records, r)
	}
	for _, r := range records {
		c.unlink(r)
	}
	c.mu.Unlock()

	disposed := make(map[any]bool)
	for _, r := range records {
		if !r.disposable || r.host == nil || disposed[r.host] {
			continue
		}
		disposed[r.host] = true
		c.disposeRecord(r)
	}
	return len(records)
}

func (c *ObjectCache) lookupHost(host any) *record {
	if host == nil || !hashable(host) {
		return nil
	}
	id, ok := c.byHost[host]
	if !ok {
		return nil
	}
	return c.byID[id]
}

// hashable reports whether host can be used as a map key. Comparable types
// may still hold uncomparable values in interface fields, which only show up
// when hashed.
func hashable(host any) (ok bool) {
	if host == nil {
		return true
	}
	if !reflect.TypeOf(host).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m := map[any]struct{}{host: {}}
	return len(m) == 1
}
