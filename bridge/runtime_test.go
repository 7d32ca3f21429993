package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeEngine struct {
	mu      sync.Mutex
	next    Value
	freed   []Value
	buffers [][]byte
	failOn  Value
	loader  ModuleLoader
	created []ObjectID
}

func (e *fakeEngine) NewObject(id ObjectID) (Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id < 0 {
		return 0, errors.New("bad id")
	}
	e.next++
	e.created = append(e.created, id)
	return 100 + e.next, nil
}

func (e *fakeEngine) NewBuffer(data []byte) (Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.buffers = append(e.buffers, data)
	return 100 + e.next, nil
}

func (e *fakeEngine) FreeValue(v Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v == e.failOn {
		return errors.New("bad handle")
	}
	e.freed = append(e.freed, v)
	return nil
}

func (e *fakeEngine) SetModuleLoader(l ModuleLoader) error {
	e.loader = l
	return nil
}

func (e *fakeEngine) freedValues() []Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Value(nil), e.freed...)
}

// offOwner runs fn on a fresh goroutine and waits for it.
func offOwner(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	wg.Wait()
}

func TestRuntime_OwnerFreesImmediately(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)

	if !rt.IsOwner() {
		t.Fatal("creating goroutine must own the runtime")
	}
	if err := rt.FreeValue(7); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Value{7}, eng.freedValues()); diff != "" {
		t.Errorf("freed (-want +got):\n%s", diff)
	}
	if rt.Pending() != 0 {
		t.Error("owner frees must bypass the queue")
	}
}

func TestRuntime_DrainFIFO(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)

	for _, v := range []Value{1, 2, 3} {
		offOwner(func() {
			if err := rt.FreeValue(v); err != nil {
				t.Errorf("FreeValue(%d): %v", v, err)
			}
		})
	}
	if len(eng.freedValues()) != 0 {
		t.Fatal("off-owner frees ran synchronously")
	}
	if rt.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", rt.Pending())
	}

	var offDrained int
	offOwner(func() { offDrained = rt.Drain() })
	if offDrained != 0 || rt.Pending() != 3 {
		t.Error("Drain off the owner must not touch the queue")
	}

	if n := rt.Drain(); n != 3 {
		t.Errorf("Drain = %d, want 3", n)
	}
	if diff := cmp.Diff([]Value{1, 2, 3}, eng.freedValues()); diff != "" {
		t.Errorf("drain order (-want +got):\n%s", diff)
	}
	if n := rt.Drain(); n != 0 {
		t.Errorf("second Drain = %d", n)
	}
	if rt.DrainCount() != 2 || rt.LastDrain() == nil {
		t.Errorf("DrainCount = %d", rt.DrainCount())
	}
}

func TestRuntime_FailedFreeNotRequeued(t *testing.T) {
	eng := &fakeEngine{failOn: 2}
	rt := NewRuntime(eng, nil)
	offOwner(func() {
		rt.FreeValue(1)
		rt.FreeValue(2)
		rt.FreeValue(3)
	})

	if n := rt.Drain(); n != 3 {
		t.Errorf("Drain = %d, want 3", n)
	}
	if s := rt.LastDrain(); s.Failed != 1 || s.Values != 3 {
		t.Errorf("stats = %+v", s)
	}
	if rt.Pending() != 0 {
		t.Error("failed entry was requeued")
	}
}

func TestRuntime_ReleaseObjectOffOwner(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	host := &resource{name: "owned"}

	v, err := rt.NewObject(host, true, true)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := rt.Cache().TryGetID(host)

	offOwner(func() {
		if err := rt.ReleaseObject(id); err != nil {
			t.Errorf("ReleaseObject: %v", err)
		}
		if err := rt.ReleaseObject(id); err != nil {
			t.Errorf("repeated ReleaseObject: %v", err)
		}
		if err := rt.ReleaseObject(999); !errors.Is(err, ErrUnknownObject) {
			t.Errorf("ReleaseObject(999) = %v", err)
		}
	})
	if got := rt.Cache().State(id); got != StatePendingFree {
		t.Errorf("State = %v, want pending-free", got)
	}
	if rt.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", rt.Pending())
	}

	rt.Drain()
	if got := rt.Cache().State(id); got != StateFreed {
		t.Errorf("State = %v, want freed", got)
	}
	if host.closed != 1 {
		t.Errorf("host closed %d times", host.closed)
	}
	if diff := cmp.Diff([]Value{v}, eng.freedValues()); diff != "" {
		t.Errorf("freed (-want +got):\n%s", diff)
	}
}

func TestRuntime_PushReusesWrapper(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	host := &resource{name: "shared"}

	v1, err := rt.Push(host)
	if err != nil {
		t.Fatal(err)
	}
	v2, _ := rt.Push(host)
	if v1 != v2 {
		t.Errorf("Push created a second wrapper: %d != %d", v1, v2)
	}
	if len(eng.created) != 1 {
		t.Errorf("engine objects = %d, want 1", len(eng.created))
	}

	buf, _ := rt.Push([]byte("raw"))
	if buf == 0 || len(eng.buffers) != 1 {
		t.Error("byte slices are pushed as buffers")
	}
	if v, _ := rt.Push(nil); v != 0 {
		t.Errorf("Push(nil) = %d", v)
	}

	var offErr error
	offOwner(func() { _, offErr = rt.Push(&resource{}) })
	if !errors.Is(offErr, ErrNotOwner) {
		t.Errorf("off-owner Push = %v", offErr)
	}
}

func TestRuntime_CloseDrainsOnOwner(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	host := &resource{name: "owned"}
	rt.NewObject(host, true, false)
	offOwner(func() { rt.FreeValue(5) })

	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Value{5}, eng.freedValues()); diff != "" {
		t.Errorf("freed (-want +got):\n%s", diff)
	}
	if host.closed != 1 {
		t.Error("Close must dispose owned hosts")
	}
	if err := rt.FreeValue(6); !errors.Is(err, ErrClosed) {
		t.Errorf("FreeValue after Close = %v", err)
	}
	if err := rt.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close = %v", err)
	}
}

func TestRuntime_CloseOffOwnerLeaks(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	offOwner(func() {
		rt.FreeValue(1)
		rt.FreeValue(2)
		if err := rt.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	if rt.Pending() != 0 {
		t.Error("pending entries survive Close")
	}
	if len(eng.freedValues()) != 0 {
		t.Error("engine touched off the owner")
	}
}

func TestRuntime_Run(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	offOwner(func() { rt.FreeValue(9) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rt.Run(ctx, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v", err)
	}
	if diff := cmp.Diff([]Value{9}, eng.freedValues()); diff != "" {
		t.Errorf("freed (-want +got):\n%s", diff)
	}

	var offErr error
	offOwner(func() { offErr = rt.Run(context.Background(), time.Millisecond) })
	if !errors.Is(offErr, ErrNotOwner) {
		t.Errorf("off-owner Run = %v", offErr)
	}
}

func TestRuntime_SetModuleLoader(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	loader := NewPathResolver(fstest.MapFS{})
	if err := rt.SetModuleLoader(loader); err != nil {
		t.Fatal(err)
	}
	if eng.loader != loader {
		t.Error("loader not registered with the engine")
	}
}

func TestRuntime_PushAfterPendingRelease(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	host := &resource{name: "revived"}

	v1, err := rt.Push(host)
	if err != nil {
		t.Fatal(err)
	}
	oldID, _ := rt.Cache().TryGetID(host)
	offOwner(func() {
		if err := rt.ReleaseObject(oldID); err != nil {
			t.Errorf("ReleaseObject: %v", err)
		}
	})
	if _, ok := rt.Cache().TryGetScriptValue(host); ok {
		t.Error("a wrapper pending release is still handed out")
	}

	v2, err := rt.Push(host)
	if err != nil {
		t.Fatal(err)
	}
	if v2 == v1 {
		t.Fatalf("Push reused wrapper %d that is pending release", v1)
	}
	newID, _ := rt.Cache().TryGetID(host)
	if newID == oldID {
		t.Error("host still points at the pending slot")
	}

	rt.Drain()
	if diff := cmp.Diff([]Value{v1}, eng.freedValues()); diff != "" {
		t.Errorf("freed (-want +got):\n%s", diff)
	}
	if got := rt.Cache().State(oldID); got != StateFreed {
		t.Errorf("old slot state = %v", got)
	}
	if v, ok := rt.Cache().TryGetScriptValue(host); !ok || v != v2 {
		t.Errorf("TryGetScriptValue after drain = %d, %v; want %d", v, ok, v2)
	}
}

func TestRuntime_PendingOwnershipTransfers(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)
	host := &resource{name: "owned"}

	if _, err := rt.NewObject(host, true, true); err != nil {
		t.Fatal(err)
	}
	oldID, _ := rt.Cache().TryGetID(host)
	offOwner(func() { rt.ReleaseObject(oldID) })
	if _, err := rt.Push(host); err != nil {
		t.Fatal(err)
	}

	rt.Drain()
	if host.closed != 0 {
		t.Fatal("host disposed while a newer wrapper is live")
	}
	newID, _ := rt.Cache().TryGetID(host)
	if err := rt.ReleaseObject(newID); err != nil {
		t.Fatal(err)
	}
	if host.closed != 1 {
		t.Errorf("host closed %d times, want 1", host.closed)
	}
}

func TestRuntime_UnhashableHost(t *testing.T) {
	eng := &fakeEngine{}
	rt := NewRuntime(eng, nil)

	type holder struct{ v any }
	for _, host := range []any{[]int{1, 2}, map[string]int{}, holder{v: []int{1}}} {
		if _, err := rt.Push(host); !errors.Is(err, ErrUnhashable) {
			t.Errorf("Push(%T) = %v, want ErrUnhashable", host, err)
		}
	}
	if len(eng.created) != 0 || rt.Cache().Count() != 0 {
		t.Error("unhashable hosts reached the cache or engine")
	}
	if _, err := rt.Push(holder{v: 1}); err != nil {
		t.Errorf("Push(comparable struct) = %v", err)
	}
}

func TestRuntime_EnqueueAfterClose(t *testing.T) {
	rt := NewRuntime(&fakeEngine{}, nil)
	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rt.enqueue(pendingEntry{value: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("enqueue after Close = %v", err)
	}
	if rt.Pending() != 0 {
		t.Error("entry queued after Close")
	}
}
