package binding

import (
	"github.com/chazu/hostbind/typedesc"
)

// Skip records a member or type excluded from binding.
type Skip struct {
	Member string
	Reason string
}

// MethodVariant is one overload of a method binding.
type MethodVariant struct {
	Method       *typedesc.Method
	Extension    bool
	Params       []Marshalling
	Return       Marshalling
	ReturnPusher string
	Declarations []string
}

// MethodBinding groups the overloads sharing a host name.
type MethodBinding struct {
	HostName   string
	ScriptName string
	Static     bool
	Variants   []*MethodVariant
	keys       map[string]bool
}

func (b *MethodBinding) add(v *MethodVariant) bool {
	key := v.Method.Key()
	if b.keys[key] {
		return false
	}
	if b.keys == nil {
		b.keys = make(map[string]bool)
	}
	b.keys[key] = true
	b.Variants = append(b.Variants, v)
	return true
}

// PropertyBinding is a bound accessor pair.
type PropertyBinding struct {
	Property    *typedesc.Property
	ScriptName  string
	Static      bool
	Marshalling Marshalling
}

// FieldBinding is a bound field.
type FieldBinding struct {
	Field       *typedesc.Field
	ScriptName  string
	Marshalling Marshalling
}

// EventBinding is a bound event.
type EventBinding struct {
	Event      *typedesc.Event
	ScriptName string
	Signature  *DelegateSignature
}

// DelegateBinding is a delegate-typed field or property, bound through its
// canonical signature rather than as a plain value.
type DelegateBinding struct {
	HostName   string
	ScriptName string
	Static     bool
	ReadOnly   bool
	Type       typedesc.TypeID
	Signature  *DelegateSignature
	Field      *typedesc.Field
	Property   *typedesc.Property
}

// OperatorBinding is an operator method bound to a script operator symbol.
type OperatorBinding struct {
	Method *typedesc.Method
	// Symbol is the script operator, e.g. "+" or "neg".
	Symbol      string
	Arity       int
	Mixed       bool
	BindingName string
	Static      bool
	Extension   bool
	Params      []Marshalling
	Return      Marshalling
}

// ConstructorBinding holds the bound constructor overloads.
type ConstructorBinding struct {
	Variants   []*MethodVariant
	Disposable bool
	keys       map[string]bool
}

func (b *ConstructorBinding) add(v *MethodVariant) bool {
	key := v.Method.Key()
	if b.keys[key] {
		return false
	}
	if b.keys == nil {
		b.keys = make(map[string]bool)
	}
	b.keys[key] = true
	b.Variants = append(b.Variants, v)
	return true
}

// TypePlan is the binding plan of one exported type. A collector holds at
// most one plan per type.
type TypePlan struct {
	Type      *typedesc.Type
	Transform *TypeTransform

	// BindingName is the identifier used for the generated binding unit.
	BindingName string
	ScriptName  string
	// Namespace is the script-side module path of the type.
	Namespace string

	Methods       []*MethodBinding
	StaticMethods []*MethodBinding
	Properties    []*PropertyBinding
	Fields        []*FieldBinding
	Events        []*EventBinding
	Delegates     []*DelegateBinding
	Operators     []*OperatorBinding
	Constructors  *ConstructorBinding

	Skipped []Skip

	c         *Collector
	collected bool
	failed    bool
	methods   map[string]*MethodBinding
	statics   map[string]*MethodBinding
	members   map[string]bool
}

func newTypePlan(c *Collector, t *typedesc.Type, tt *TypeTransform) *TypePlan {
	return &TypePlan{
		Type:         t,
		Transform:    tt,
		Constructors: &ConstructorBinding{},
		c:            c,
		methods:      make(map[string]*MethodBinding),
		statics:      make(map[string]*MethodBinding),
		members:      make(map[string]bool),
	}
}

// ID is the host type id of the plan.
func (p *TypePlan) ID() typedesc.TypeID { return p.Type.ID }

// CodeGen reports whether binding code is emitted for the type.
func (p *TypePlan) CodeGen() bool { return p.Transform.Flags&FlagCodeGen != 0 }

// PlatformOnly reports whether the binding is restricted to the target platform.
func (p *TypePlan) PlatformOnly() bool { return p.Transform.Flags&FlagPlatformOnly != 0 }

// EditorOnly reports whether the binding requires the editor capability.
func (p *TypePlan) EditorOnly() bool { return p.Transform.IsEditorOnly() }

// Disposable reports whether script-constructed instances are owned by the script side.
func (p *TypePlan) Disposable() bool { return p.Transform.Disposable() || p.Type.Closer }

// Capabilities returns the capabilities the binding requires.
func (p *TypePlan) Capabilities() []string { return p.Transform.Capabilities() }

// Super is the base type id, or Void.
func (p *TypePlan) Super() typedesc.TypeID { return p.Type.Base }

// Collected reports whether member collection has run.
func (p *TypePlan) Collected() bool { return p.collected }

// Method returns the instance method binding with the given script name.
func (p *TypePlan) Method(name string) (*MethodBinding, bool) {
	b, ok := p.methods[name]
	return b, ok
}

// StaticMethod returns the static method binding with the given script name.
func (p *TypePlan) StaticMethod(name string) (*MethodBinding, bool) {
	b, ok := p.statics[name]
	return b, ok
}

// Operator returns the operator binding with the given binding name.
func (p *TypePlan) Operator(bindingName string) (*OperatorBinding, bool) {
	for _, op := range p.Operators {
		if op.BindingName == bindingName {
			return op, true
		}
	}
	return nil, false
}

func (p *TypePlan) skip(member, reason string) {
	p.Skipped = append(p.Skipped, Skip{Member: member, Reason: reason})
	p.c.infof("skip %s.%s: %s", p.Type.FullName(), member, reason)
}
