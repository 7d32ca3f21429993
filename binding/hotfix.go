package binding

import (
	"fmt"
	"strings"

	"github.com/chazu/hostbind/typedesc"
)

// HotfixDelegate is the call shape of a replaceable host method. The
// generated runtime routes calls through a delegate of this shape when a
// script patch is installed.
type HotfixDelegate struct {
	// Declaring is the receiver type for instance shapes and Void for static ones.
	Declaring typedesc.TypeID
	Static    bool
	Return    typedesc.TypeID
	Params    []typedesc.TypeID
}

func (h *HotfixDelegate) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%t:%d(", h.Declaring, h.Static, h.Return)
	for i, p := range h.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", p)
	}
	b.WriteByte(')')
	return b.String()
}

// HotfixTable deduplicates the hotfix delegate shapes of hotfix-marked types.
type HotfixTable struct {
	c     *Collector
	seen  map[string]bool
	order []*HotfixDelegate
}

func newHotfixTable(c *Collector) *HotfixTable {
	return &HotfixTable{c: c, seen: make(map[string]bool)}
}

// Delegates returns the collected shapes in discovery order.
func (h *HotfixTable) Delegates() []*HotfixDelegate {
	return append([]*HotfixDelegate(nil), h.order...)
}

func (h *HotfixTable) add(d *HotfixDelegate) {
	k := d.key()
	if h.seen[k] {
		return
	}
	h.seen[k] = true
	h.order = append(h.order, d)
	h.c.text.AppendLine("hotfix delegate %s", k)
}

func (h *HotfixTable) collect(id typedesc.TypeID) {
	t := h.c.reg.Type(id)
	if t == nil || t.IsValueType() || t.IsGenericDefinition() {
		return
	}
	flags, _ := h.c.Transform(id).Hotfix()
	for _, m := range t.Methods {
		if !h.supported(m) {
			continue
		}
		h.collectMethod(t, m, m.Return)
		if flags != 0 {
			// before/after hooks observe the call without producing its result
			h.collectMethod(t, m, typedesc.Void)
		}
	}
	for _, ctor := range t.Constructors {
		if h.supported(ctor) {
			h.collectMethod(t, ctor, typedesc.Void)
		}
	}
}

func (h *HotfixTable) supported(m *typedesc.Method) bool {
	if m.Generic || h.c.isPointer(m.Return) {
		return false
	}
	for _, p := range m.Params {
		if p.Out || p.Variadic || h.c.isPointer(p.Type) {
			return false
		}
	}
	return true
}

func (h *HotfixTable) collectMethod(t *typedesc.Type, m *typedesc.Method, ret typedesc.TypeID) {
	d := &HotfixDelegate{Static: m.Static, Return: ret}
	if !m.Static {
		d.Declaring = t.ID
	}
	for _, p := range m.Params {
		d.Params = append(d.Params, p.Type)
		h.c.classifier.Classify(p.Type)
	}
	h.c.classifier.Classify(ret)
	h.add(d)
}
