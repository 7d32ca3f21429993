package typedesc

import (
	"fmt"
	"sort"
	"strings"
)

// BuiltinModule is the module name given to the pre-seeded builtin types.
const BuiltinModule = "builtin"

var builtinPrimitives = []string{
	"bool",
	"int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64",
	"float32", "float64",
}

// Module groups the types declared by one loaded package or one generated
// registration unit.
type Module struct {
	Name  string
	Types []TypeID
}

// Registry is the arena of type descriptors. It is not safe for concurrent
// mutation; discovery runs on a single goroutine once registration is done.
type Registry struct {
	types   []*Type
	byName  map[string]TypeID
	derived map[string]TypeID

	modules     []*Module
	moduleIndex map[string]*Module

	builtins map[string]TypeID

	object TypeID
	str    TypeID
	errT   TypeID
	ptr    TypeID
}

// NewRegistry returns a registry pre-seeded with the builtin primitives,
// string, object, error and uintptr.
func NewRegistry() *Registry {
	r := &Registry{
		types:       []*Type{nil},
		byName:      make(map[string]TypeID),
		derived:     make(map[string]TypeID),
		moduleIndex: make(map[string]*Module),
		builtins:    make(map[string]TypeID),
	}
	for _, name := range builtinPrimitives {
		r.builtins[name] = r.Define(&Type{Kind: KindPrimitive, Name: name})
	}
	r.builtins["byte"] = r.builtins["uint8"]
	r.builtins["rune"] = r.builtins["int32"]

	r.str = r.Define(&Type{Kind: KindString, Name: "string"})
	r.object = r.Define(&Type{Kind: KindClass, Name: "object"})
	r.errT = r.Define(&Type{Kind: KindInterface, Name: "error"})
	r.ptr = r.Define(&Type{Kind: KindPointer, Name: "uintptr"})
	r.builtins["string"] = r.str
	r.builtins["object"] = r.object
	r.builtins["any"] = r.object
	r.builtins["error"] = r.errT
	r.builtins["uintptr"] = r.ptr
	return r
}

// Define assigns the next TypeID to t and registers it by full name and module.
// Member Declaring fields are set to the new id.
func (r *Registry) Define(t *Type) TypeID {
	t.ID = TypeID(len(r.types))
	t.reg = r
	r.types = append(r.types, t)
	r.adopt(t)
	if name := t.FullName(); name != "" {
		if _, dup := r.byName[name]; !dup {
			r.byName[name] = t.ID
		}
	}
	if t.Module != "" && t.Module != BuiltinModule {
		m := r.moduleIndex[t.Module]
		if m == nil {
			m = &Module{Name: t.Module}
			r.moduleIndex[t.Module] = m
			r.modules = append(r.modules, m)
		}
		m.Types = append(m.Types, t.ID)
	}
	return t.ID
}

func (r *Registry) adopt(t *Type) {
	for _, f := range t.Fields {
		f.Declaring = t.ID
	}
	for _, p := range t.Properties {
		p.Declaring = t.ID
		if p.Getter != nil {
			p.Getter.Declaring = t.ID
		}
		if p.Setter != nil {
			p.Setter.Declaring = t.ID
		}
	}
	for _, e := range t.Events {
		e.Declaring = t.ID
	}
	for _, m := range t.Methods {
		m.Declaring = t.ID
	}
	for _, c := range t.Constructors {
		c.Declaring = t.ID
	}
}

// Type returns the descriptor for id, or nil when id is out of range or void.
func (r *Registry) Type(id TypeID) *Type {
	if id <= 0 || int(id) >= len(r.types) {
		return nil
	}
	return r.types[id]
}

// Len is the number of registered descriptors.
func (r *Registry) Len() int { return len(r.types) - 1 }

// Lookup finds a type by full name.
func (r *Registry) Lookup(fullName string) (TypeID, bool) {
	id, ok := r.byName[fullName]
	return id, ok
}

// Module returns the named module, or nil.
func (r *Registry) Module(name string) *Module {
	return r.moduleIndex[name]
}

// Modules returns all modules in registration order.
func (r *Registry) Modules() []*Module {
	return append([]*Module(nil), r.modules...)
}

// Primitive returns a builtin by Go name (e.g. "int32", "byte", "string").
func (r *Registry) Primitive(name string) TypeID {
	return r.builtins[name]
}

// Builtins returns the distinct builtin ids in id order.
func (r *Registry) Builtins() []TypeID {
	seen := make(map[TypeID]bool, len(r.builtins))
	var ids []TypeID
	for _, id := range r.builtins {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Object is the id of the root reference type.
func (r *Registry) Object() TypeID { return r.object }

// StringType is the id of the builtin string type.
func (r *Registry) StringType() TypeID { return r.str }

// Error is the id of the builtin error interface.
func (r *Registry) Error() TypeID { return r.errT }

// Bytes is the id of []byte.
func (r *Registry) Bytes() TypeID { return r.ArrayOf(r.builtins["uint8"]) }

// ArrayOf returns the interned array type with the given element.
func (r *Registry) ArrayOf(elem TypeID) TypeID {
	return r.wrap(KindArray, "[]", elem)
}

// PointerTo returns the interned pointer type to elem.
func (r *Registry) PointerTo(elem TypeID) TypeID {
	return r.wrap(KindPointer, "*", elem)
}

// ByRefOf returns the interned by-reference type of elem.
func (r *Registry) ByRefOf(elem TypeID) TypeID {
	return r.wrap(KindByRef, "&", elem)
}

// NullableOf returns the interned nullable type of elem.
func (r *Registry) NullableOf(elem TypeID) TypeID {
	return r.wrap(KindNullable, "?", elem)
}

func (r *Registry) wrap(kind Kind, sigil string, elem TypeID) TypeID {
	key := fmt.Sprintf("%s%d", sigil, elem)
	if id, ok := r.derived[key]; ok {
		return id
	}
	e := r.Type(elem)
	t := &Type{Kind: kind, Elem: elem}
	if e != nil {
		t.Namespace = e.Namespace
		switch kind {
		case KindArray:
			t.Name = e.Name + "[]"
		case KindNullable:
			t.Name = e.Name + "?"
		case KindByRef:
			t.Name = e.Name + "&"
		default:
			t.Name = e.Name + "*"
		}
	}
	id := r.Define(t)
	r.derived[key] = id
	return id
}

// Instantiate returns the interned constructed type of the open generic def
// with the given arguments. Base, interfaces and members are copied with
// generic parameters substituted. Instantiating a definition with its own
// parameters returns def.
func (r *Registry) Instantiate(def TypeID, args ...TypeID) (TypeID, error) {
	d := r.Type(def)
	if d == nil || !d.IsGenericDefinition() {
		return Void, fmt.Errorf("typedesc: %d is not a generic definition", def)
	}
	if len(args) != len(d.GenericParams) {
		return Void, fmt.Errorf("typedesc: %s expects %d type arguments, got %d",
			d.FullName(), len(d.GenericParams), len(args))
	}
	identity := true
	for i, a := range args {
		if a != d.GenericParams[i] {
			identity = false
			break
		}
	}
	if identity {
		return def, nil
	}

	key := fmt.Sprintf("inst:%d%v", def, args)
	if id, ok := r.derived[key]; ok {
		return id, nil
	}

	names := make([]string, len(args))
	for i, a := range args {
		if at := r.Type(a); at != nil {
			names[i] = at.FullName()
		}
	}
	t := &Type{
		Kind:        d.Kind,
		Namespace:   d.Namespace,
		Name:        d.SimpleName() + "[" + strings.Join(names, ",") + "]",
		Declaring:   d.Declaring,
		GenericDef:  def,
		GenericArgs: append([]TypeID(nil), args...),
		Abstract:    d.Abstract,
		Closer:      d.Closer,
		Markers:     d.Markers &^ Export,
		Hotfix:      d.Hotfix,
	}
	// Intern before substituting members so self-references resolve here.
	id := r.Define(t)
	r.derived[key] = id

	sub := make(map[TypeID]TypeID, len(args))
	for i, p := range d.GenericParams {
		sub[p] = args[i]
	}
	t.Base = r.subst(d.Base, sub)
	for _, i := range d.Interfaces {
		t.Interfaces = append(t.Interfaces, r.subst(i, sub))
	}
	if d.Invoke != nil {
		t.Invoke = r.substMethod(d.Invoke, sub)
	}
	for _, f := range d.Fields {
		nf := *f
		nf.Type = r.subst(f.Type, sub)
		t.Fields = append(t.Fields, &nf)
	}
	for _, p := range d.Properties {
		np := *p
		np.Type = r.subst(p.Type, sub)
		if p.Getter != nil {
			np.Getter = r.substMethod(p.Getter, sub)
		}
		if p.Setter != nil {
			np.Setter = r.substMethod(p.Setter, sub)
		}
		t.Properties = append(t.Properties, &np)
	}
	for _, e := range d.Events {
		ne := *e
		ne.Type = r.subst(e.Type, sub)
		t.Events = append(t.Events, &ne)
	}
	for _, m := range d.Methods {
		t.Methods = append(t.Methods, r.substMethod(m, sub))
	}
	for _, c := range d.Constructors {
		t.Constructors = append(t.Constructors, r.substMethod(c, sub))
	}
	r.adopt(t)
	return id, nil
}

func (r *Registry) substMethod(m *Method, sub map[TypeID]TypeID) *Method {
	nm := *m
	nm.Return = r.subst(m.Return, sub)
	nm.Params = make([]Param, len(m.Params))
	for i, p := range m.Params {
		p.Type = r.subst(p.Type, sub)
		nm.Params[i] = p
	}
	return &nm
}

func (r *Registry) subst(id TypeID, sub map[TypeID]TypeID) TypeID {
	if id == Void {
		return Void
	}
	if to, ok := sub[id]; ok {
		return to
	}
	t := r.Type(id)
	if t == nil {
		return id
	}
	switch t.Kind {
	case KindArray:
		return r.ArrayOf(r.subst(t.Elem, sub))
	case KindPointer:
		if t.Elem != Void {
			return r.PointerTo(r.subst(t.Elem, sub))
		}
	case KindByRef:
		return r.ByRefOf(r.subst(t.Elem, sub))
	case KindNullable:
		return r.NullableOf(r.subst(t.Elem, sub))
	}
	if t.IsConstructedGeneric() {
		args := make([]TypeID, len(t.GenericArgs))
		changed := false
		for i, a := range t.GenericArgs {
			args[i] = r.subst(a, sub)
			changed = changed || args[i] != a
		}
		if changed {
			if inst, err := r.Instantiate(t.GenericDef, args...); err == nil {
				return inst
			}
		}
	}
	return id
}

// Outers returns the chain of enclosing types of id, innermost first.
func (r *Registry) Outers(id TypeID) []*Type {
	var chain []*Type
	t := r.Type(id)
	for t != nil && t.Declaring != Void {
		t = r.Type(t.Declaring)
		if t != nil {
			chain = append(chain, t)
		}
	}
	return chain
}
