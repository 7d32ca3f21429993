package bridge

import (
	"errors"
	"testing"
)

type resource struct {
	name   string
	closed int
}

func (r *resource) Close() error {
	r.closed++
	return nil
}

func TestObjectCache_AddBindLookup(t *testing.T) {
	c := NewObjectCache(nil)
	host := &resource{name: "a"}

	id := c.AddObject(host, false)
	if id == 0 {
		t.Fatal("AddObject returned the zero id")
	}
	if again := c.AddObject(host, true); again != id {
		t.Errorf("re-adding a host = %d, want %d", again, id)
	}
	if got := c.State(id); got != StateCreated {
		t.Errorf("State = %v, want created", got)
	}
	if _, ok := c.TryGetScriptValue(host); ok {
		t.Error("unbound host has a script value")
	}

	if !c.AddScriptValue(host, 42) {
		t.Fatal("AddScriptValue failed")
	}
	if c.AddScriptValue(host, 43) {
		t.Error("a second wrapper was bound")
	}
	if v, ok := c.TryGetScriptValue(host); !ok || v != 42 {
		t.Errorf("TryGetScriptValue = %d, %v", v, ok)
	}
	if got, ok := c.TryGetID(host); !ok || got != id {
		t.Errorf("TryGetID = %d, %v", got, ok)
	}
	if obj, ok := c.TryGetObject(id); !ok || obj != host {
		t.Errorf("TryGetObject = %v, %v", obj, ok)
	}
	if got := c.State(id); got != StateWrapperBound {
		t.Errorf("State = %v, want wrapper-bound", got)
	}

	if !c.RemoveScriptValue(host) {
		t.Error("RemoveScriptValue failed")
	}
	if got := c.State(id); got != StateCreated {
		t.Errorf("State after unbind = %v", got)
	}
	if c.AddScriptValue(&resource{}, 1) {
		t.Error("bound a value to an unknown host")
	}
}

func TestObjectCache_DisposeOnce(t *testing.T) {
	c := NewObjectCache(nil)
	owned := &resource{name: "owned"}
	borrowed := &resource{name: "borrowed"}
	ownedID := c.AddObject(owned, true)
	borrowedID := c.AddObject(borrowed, false)

	if !c.RemoveObject(ownedID) {
		t.Fatal("RemoveObject failed")
	}
	if c.RemoveObject(ownedID) {
		t.Error("second RemoveObject succeeded")
	}
	if owned.closed != 1 {
		t.Errorf("owned closed %d times, want 1", owned.closed)
	}
	if _, ok := c.TryGetID(owned); ok {
		t.Error("removed host still resolves")
	}
	if got := c.State(ownedID); got != StateFreed {
		t.Errorf("State = %v, want freed", got)
	}

	c.RemoveObject(borrowedID)
	if borrowed.closed != 0 {
		t.Error("non-disposable host was closed")
	}
	if got := c.State(99); got != StateNone {
		t.Errorf("State(never allocated) = %v", got)
	}
}

func TestObjectCache_ClearDisposes(t *testing.T) {
	var disposed []string
	c := NewObjectCache(func(host any) error {
		disposed = append(disposed, host.(*resource).name)
		return errors.New("ignored")
	})
	c.AddObject(&resource{name: "a"}, true)
	c.AddObject(&resource{name: "b"}, false)
	c.AddObject(&resource{name: "c"}, true)

	if n := c.Clear(); n != 3 {
		t.Errorf("Clear = %d, want 3", n)
	}
	if c.Count() != 0 {
		t.Errorf("Count = %d after Clear", c.Count())
	}
	if len(disposed) != 2 {
		t.Errorf("disposed %v, want a and c", disposed)
	}
}

func TestObjectCache_IDsAreUnique(t *testing.T) {
	c := NewObjectCache(nil)
	seen := map[ObjectID]bool{}
	for i := 0; i < 100; i++ {
		id := c.AddObject(&resource{}, false)
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
		if i%3 == 0 {
			c.RemoveObject(id)
		}
	}
	if c.Count() != 66 {
		t.Errorf("Count = %d, want 66", c.Count())
	}
}

func TestObjectCache_Unhashable(t *testing.T) {
	c := NewObjectCache(nil)
	if id := c.AddObject([]byte("x"), true); id != 0 {
		t.Errorf("AddObject(slice) = %d, want 0", id)
	}
	if _, ok := c.TryGetID(map[int]int{}); ok {
		t.Error("TryGetID(map) succeeded")
	}
	if c.AddScriptValue([]int{1}, 5) {
		t.Error("bound a wrapper to an unhashable host")
	}
	if c.Count() != 0 {
		t.Errorf("Count = %d", c.Count())
	}
}
