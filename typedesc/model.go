// Package typedesc holds host type metadata as an arena of descriptors keyed by
// stable TypeID. Descriptors are registered once, either by generated
// registration calls (see builder.go) or by loading Go packages (see load.go),
// and are treated as read-only once binding discovery starts.
package typedesc

import (
	"fmt"
	"strings"
)

// TypeID indexes a Registry. The zero value means void / no type.
type TypeID int32

// Void is the TypeID of a missing return value.
const Void TypeID = 0

// Kind is the structural shape of a type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindPrimitive
	KindString
	KindEnum
	KindStruct
	KindClass
	KindInterface
	KindDelegate
	KindArray
	KindPointer
	KindByRef
	KindNullable
	KindGenericParam
)

var kindNames = [...]string{
	KindInvalid:      "invalid",
	KindPrimitive:    "primitive",
	KindString:       "string",
	KindEnum:         "enum",
	KindStruct:       "struct",
	KindClass:        "class",
	KindInterface:    "interface",
	KindDelegate:     "delegate",
	KindArray:        "array",
	KindPointer:      "pointer",
	KindByRef:        "byref",
	KindNullable:     "nullable",
	KindGenericParam: "generic-param",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Marker is a policy tag attached to a type or member.
type Marker uint8

const (
	Omit Marker = 1 << iota
	Deprecated
	Export
	Hotfix
)

// Has reports whether all bits of x are set.
func (m Marker) Has(x Marker) bool { return m&x == x }

// HotfixFlags selects which hotfix hook variants are generated for a type.
type HotfixFlags uint8

const (
	HotfixBefore HotfixFlags = 1 << iota
	HotfixAfter
)

// Param is a method or delegate parameter.
type Param struct {
	Name     string
	Type     TypeID
	Out      bool
	Variadic bool
}

// P is shorthand for a plain parameter.
func P(name string, t TypeID) Param {
	return Param{Name: name, Type: t}
}

// Method describes a method, constructor, operator or accessor.
type Method struct {
	Name        string
	Declaring   TypeID
	Static      bool
	SpecialName bool
	Generic     bool
	Extension   bool
	Params      []Param
	Return      TypeID
	Markers     Marker
}

// Key identifies the method among its declaring type's members by name and
// parameter types.
func (m *Method) Key() string {
	return MemberKey(m.Name, ParamTypes(m.Params)...)
}

// Mark adds markers and returns m.
func (m *Method) Mark(x Marker) *Method {
	m.Markers |= x
	return m
}

// Field describes a field or package-level variable/constant.
type Field struct {
	Name        string
	Declaring   TypeID
	Type        TypeID
	Static      bool
	ReadOnly    bool
	SpecialName bool
	Markers     Marker
}

// Mark adds markers and returns f.
func (f *Field) Mark(x Marker) *Field {
	f.Markers |= x
	return f
}

// Property describes an accessor pair.
type Property struct {
	Name        string
	Declaring   TypeID
	Type        TypeID
	Getter      *Method
	Setter      *Method
	SpecialName bool
	Markers     Marker
}

// IsStatic reports whether either accessor is static.
func (p *Property) IsStatic() bool {
	return (p.Getter != nil && p.Getter.Static) || (p.Setter != nil && p.Setter.Static)
}

// Mark adds markers and returns p.
func (p *Property) Mark(x Marker) *Property {
	p.Markers |= x
	return p
}

// Event describes a subscribable handler slot.
type Event struct {
	Name        string
	Declaring   TypeID
	Type        TypeID
	Static      bool
	SpecialName bool
	Markers     Marker
}

// Mark adds markers and returns e.
func (e *Event) Mark(x Marker) *Event {
	e.Markers |= x
	return e
}

// Type is a host type descriptor.
type Type struct {
	ID        TypeID
	Kind      Kind
	Namespace string
	Name      string
	Module    string

	Declaring  TypeID
	Base       TypeID
	Elem       TypeID
	GenericDef TypeID

	GenericArgs   []TypeID
	GenericParams []TypeID
	Interfaces    []TypeID

	Abstract  bool
	Synthetic bool
	Closer    bool
	Markers   Marker
	Hotfix    HotfixFlags

	// Invoke is the call signature of a delegate type.
	Invoke *Method

	Fields       []*Field
	Properties   []*Property
	Events       []*Event
	Methods      []*Method
	Constructors []*Method

	reg *Registry
}

// FullName is the namespace-qualified name, with enclosing types joined by '+'.
func (t *Type) FullName() string {
	name := t.Name
	outer := t.Declaring
	for outer != Void && t.reg != nil {
		o := t.reg.Type(outer)
		if o == nil {
			break
		}
		name = o.Name + "+" + name
		outer = o.Declaring
	}
	if t.Namespace == "" {
		return name
	}
	return t.Namespace + "." + name
}

func (t *Type) String() string { return t.FullName() }

// IsValueType reports whether values of t are copied across the boundary.
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case KindPrimitive, KindEnum, KindStruct, KindNullable:
		return true
	}
	return false
}

// IsGenericDefinition reports whether t is an open generic type.
func (t *Type) IsGenericDefinition() bool {
	return len(t.GenericParams) > 0 && t.GenericDef == Void
}

// IsConstructedGeneric reports whether t is an instantiation of a generic definition.
func (t *Type) IsConstructedGeneric() bool { return t.GenericDef != Void }

// IsGeneric reports whether t is either an open or a constructed generic type.
func (t *Type) IsGeneric() bool { return t.IsGenericDefinition() || t.IsConstructedGeneric() }

// SimpleName is the type name without generic arguments.
func (t *Type) SimpleName() string {
	if i := strings.IndexByte(t.Name, '['); i >= 0 {
		return t.Name[:i]
	}
	return t.Name
}

// Mark adds markers and returns t.
func (t *Type) Mark(x Marker) *Type {
	t.Markers |= x
	return t
}

// MemberKey builds the lookup key used for signature-based blocking and renames.
func MemberKey(name string, params ...TypeID) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", p)
	}
	b.WriteByte(')')
	return b.String()
}

// ParamTypes returns the parameter type ids in order.
func ParamTypes(params []Param) []TypeID {
	ids := make([]TypeID, len(params))
	for i, p := range params {
		ids[i] = p.Type
	}
	return ids
}
