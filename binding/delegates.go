package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/hostbind/typedesc"
)

// ErrUnsupportedDelegate is returned for delegate types that cannot be bound,
// such as signatures carrying pointer parameters.
var ErrUnsupportedDelegate = errors.New("binding: unsupported delegate")

// DelegateSignature is one canonical call shape shared by every declared
// delegate type listed in Types. Types[0] is the canonical declaration.
type DelegateSignature struct {
	Key    string
	Return typedesc.TypeID
	Params []typedesc.Param
	Types  []typedesc.TypeID

	ReturnMarshalling Marshalling
	ParamMarshalling  []Marshalling
}

// Canonical is the first declared type with this shape.
func (s *DelegateSignature) Canonical() typedesc.TypeID { return s.Types[0] }

// DelegateRegistry deduplicates delegate types by call shape so adapters are
// generated once per distinct shape.
type DelegateRegistry struct {
	reg        *typedesc.Registry
	classifier *Classifier

	byKey    map[string]*DelegateSignature
	byType   map[typedesc.TypeID]*DelegateSignature
	redirect map[typedesc.TypeID]string
	order    []*DelegateSignature
	active   map[typedesc.TypeID]bool
}

// NewDelegateRegistry returns a registry wired to cls; cls forwards delegate
// shapes it classifies back into the registry.
func NewDelegateRegistry(reg *typedesc.Registry, cls *Classifier) *DelegateRegistry {
	d := &DelegateRegistry{
		reg:        reg,
		classifier: cls,
		byKey:      make(map[string]*DelegateSignature),
		byType:     make(map[typedesc.TypeID]*DelegateSignature),
		redirect:   make(map[typedesc.TypeID]string),
		active:     make(map[typedesc.TypeID]bool),
	}
	cls.delegates = d
	return d
}

// Canonicalize registers the delegate type id and returns its canonical
// signature. Parameter and return types are classified, which recursively
// registers nested delegate types.
func (d *DelegateRegistry) Canonicalize(id typedesc.TypeID) (*DelegateSignature, error) {
	if sig, ok := d.byType[id]; ok {
		return sig, nil
	}
	t := d.reg.Type(id)
	if t == nil || t.Kind != typedesc.KindDelegate || t.Invoke == nil {
		return nil, fmt.Errorf("%w: %d is not a delegate type", ErrUnsupportedDelegate, id)
	}
	for _, p := range t.Invoke.Params {
		if d.isPointer(p.Type) {
			return nil, fmt.Errorf("%w: %s has pointer parameter %q", ErrUnsupportedDelegate, t.FullName(), p.Name)
		}
	}
	if d.active[id] {
		return nil, fmt.Errorf("%w: %s is self-referential", ErrUnsupportedDelegate, t.FullName())
	}
	d.active[id] = true
	defer delete(d.active, id)

	key := d.shapeKey(t.Invoke)
	if sig, ok := d.byKey[key]; ok {
		sig.Types = append(sig.Types, id)
		d.byType[id] = sig
		d.redirect[id] = key
		return sig, nil
	}

	sig := &DelegateSignature{
		Key:    key,
		Return: t.Invoke.Return,
		Params: append([]typedesc.Param(nil), t.Invoke.Params...),
		Types:  []typedesc.TypeID{id},
	}
	d.byKey[key] = sig
	d.byType[id] = sig
	d.order = append(d.order, sig)

	sig.ReturnMarshalling = d.classifier.Classify(sig.Return)
	for _, p := range sig.Params {
		sig.ParamMarshalling = append(sig.ParamMarshalling, d.classifier.Classify(p.Type))
	}
	return sig, nil
}

func (d *DelegateRegistry) isPointer(id typedesc.TypeID) bool {
	for t := d.reg.Type(id); t != nil; t = d.reg.Type(t.Elem) {
		switch t.Kind {
		case typedesc.KindPointer:
			return true
		case typedesc.KindByRef, typedesc.KindArray, typedesc.KindNullable:
			continue
		}
		return false
	}
	return false
}

func (d *DelegateRegistry) shapeKey(m *typedesc.Method) string {
	var b strings.Builder
	b.WriteString(d.slotName(m.Return))
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		if p.Out {
			b.WriteString("out ")
		}
		if p.Variadic {
			b.WriteString("...")
		}
		b.WriteString(d.slotName(p.Type))
	}
	b.WriteByte(')')
	return b.String()
}

func (d *DelegateRegistry) slotName(id typedesc.TypeID) string {
	if t := d.reg.Type(id); t != nil {
		return t.FullName()
	}
	return "void"
}

// Lookup returns the signature a declared delegate type was canonicalized to.
func (d *DelegateRegistry) Lookup(id typedesc.TypeID) (*DelegateSignature, bool) {
	sig, ok := d.byType[id]
	return sig, ok
}

// Redirect returns the canonical key for a non-canonical declared type.
func (d *DelegateRegistry) Redirect(id typedesc.TypeID) (string, bool) {
	key, ok := d.redirect[id]
	return key, ok
}

// Signatures returns every canonical signature in registration order.
func (d *DelegateRegistry) Signatures() []*DelegateSignature {
	return append([]*DelegateSignature(nil), d.order...)
}

// Len is the number of distinct shapes.
func (d *DelegateRegistry) Len() int { return len(d.order) }
