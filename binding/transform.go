package binding

import (
	"github.com/chazu/hostbind/typedesc"
)

// EditorCapability is the capability required by editor-only bindings.
const EditorCapability = "EDITOR"

// BindPoint names an extension point in a generated member binding.
type BindPoint uint8

const (
	// BindFull replaces the generated binding body entirely.
	BindFull BindPoint = iota
	// BindBeforeInvoke runs before the host member is invoked.
	BindBeforeInvoke
)

func (p BindPoint) String() string {
	if p == BindFull {
		return "full"
	}
	return "before-invoke"
}

// InjectContext is handed to an Injector by the emitter.
type InjectContext struct {
	Point  BindPoint
	Plan   *TypePlan
	Method *typedesc.Method
	// Variant is the overload being emitted, or nil for constructors.
	Variant *MethodVariant
}

// Injector returns code for an extension point. An empty result leaves the
// default binding in place.
type Injector func(ctx InjectContext) string

// PlanFlags control how a plan is emitted.
type PlanFlags uint8

const (
	FlagCodeGen PlanFlags = 1 << iota
	FlagPlatformOnly
)

// DefaultFlags is the flag set of a newly transformed type.
const DefaultFlags = FlagCodeGen | FlagPlatformOnly

// TypeTransform is the per-type customization registry consulted during
// member collection and emission. Methods return the receiver for chaining.
type TypeTransform struct {
	reg *typedesc.Registry
	typ typedesc.TypeID

	Flags        PlanFlags
	capabilities []string

	scriptName  string
	disposable  bool
	operators   bool
	hotfix      typedesc.HotfixFlags
	hotfixSet   bool
	allCtorsOff bool

	memberBlocked map[string]bool
	methodBlocked map[string]bool
	renames       map[string]string
	pushers       map[string]string
	redirects     map[string]string
	injections    map[string]Injector
	declarations  map[string][]string
	typeDecls     []string

	extensionMethods []*typedesc.Method
	staticMethods    []*typedesc.Method

	fieldFilter    func(*typedesc.Field) bool
	propertyFilter func(*typedesc.Property) bool
	eventFilter    func(*typedesc.Event) bool
	methodFilter   func(*typedesc.Method) bool
	ctorFilter     func(*typedesc.Method) bool
}

func newTypeTransform(reg *typedesc.Registry, id typedesc.TypeID) *TypeTransform {
	tt := &TypeTransform{
		reg:           reg,
		typ:           id,
		Flags:         DefaultFlags,
		operators:     true,
		memberBlocked: make(map[string]bool),
		methodBlocked: make(map[string]bool),
		renames:       make(map[string]string),
		pushers:       make(map[string]string),
		redirects:     make(map[string]string),
		injections:    make(map[string]Injector),
		declarations:  make(map[string][]string),
	}
	if t := reg.Type(id); t != nil && t.IsGenericDefinition() {
		tt.Flags &^= FlagCodeGen
	}
	return tt
}

// Type is the transformed type.
func (tt *TypeTransform) Type() typedesc.TypeID { return tt.typ }

// Rename sets the script-facing name of the type.
func (tt *TypeTransform) Rename(name string) *TypeTransform {
	tt.scriptName = name
	return tt
}

// ScriptName returns the renamed script name, or "".
func (tt *TypeTransform) ScriptName() string { return tt.scriptName }

// SetMemberBlocked blocks every member with the given host name.
func (tt *TypeTransform) SetMemberBlocked(names ...string) *TypeTransform {
	for _, n := range names {
		tt.memberBlocked[n] = true
	}
	return tt
}

// IsMemberBlocked reports whether name was blocked.
func (tt *TypeTransform) IsMemberBlocked(name string) bool { return tt.memberBlocked[name] }

// SetMethodBlocked blocks the overload of name with exactly these parameter types.
func (tt *TypeTransform) SetMethodBlocked(name string, params ...typedesc.TypeID) *TypeTransform {
	tt.methodBlocked[typedesc.MemberKey(name, params...)] = true
	return tt
}

// SetConstructorBlocked blocks the constructor with exactly these parameter types.
func (tt *TypeTransform) SetConstructorBlocked(params ...typedesc.TypeID) *TypeTransform {
	return tt.SetMethodBlocked(".ctor", params...)
}

// SetAllConstructorsBlocked suppresses constructor bindings.
func (tt *TypeTransform) SetAllConstructorsBlocked() *TypeTransform {
	tt.allCtorsOff = true
	return tt
}

// IsBlocked reports whether the method overload m was blocked by signature.
func (tt *TypeTransform) IsBlocked(m *typedesc.Method) bool {
	if m.Name == ".ctor" && tt.allCtorsOff {
		return true
	}
	return tt.methodBlocked[m.Key()]
}

// Inject registers code for a method overload at the given bind point.
func (tt *TypeTransform) Inject(point BindPoint, fn Injector, name string, params ...typedesc.TypeID) *TypeTransform {
	tt.injections[point.String()+":"+typedesc.MemberKey(name, params...)] = fn
	return tt
}

// InjectConstructor replaces the binding of the constructor with these parameters.
func (tt *TypeTransform) InjectConstructor(fn Injector, params ...typedesc.TypeID) *TypeTransform {
	return tt.Inject(BindFull, fn, ".ctor", params...)
}

// Injection runs the injector registered for ctx and reports whether one was found.
func (tt *TypeTransform) Injection(ctx InjectContext) (string, bool) {
	if ctx.Method == nil {
		return "", false
	}
	fn, ok := tt.injections[ctx.Point.String()+":"+ctx.Method.Key()]
	if !ok {
		return "", false
	}
	return fn(ctx), true
}

// AddDeclaration adds a synthetic script-facing declaration to the type.
func (tt *TypeTransform) AddDeclaration(specs ...string) *TypeTransform {
	tt.typeDecls = append(tt.typeDecls, specs...)
	return tt
}

// Declarations returns the synthetic type-level declarations.
func (tt *TypeTransform) Declarations() []string { return tt.typeDecls }

// AddMethodDeclaration overrides the script declaration of one method overload.
func (tt *TypeTransform) AddMethodDeclaration(spec, name string, params ...typedesc.TypeID) *TypeTransform {
	key := typedesc.MemberKey(name, params...)
	tt.declarations[key] = append(tt.declarations[key], spec)
	return tt
}

// MethodDeclarations returns declaration overrides for m.
func (tt *TypeTransform) MethodDeclarations(m *typedesc.Method) []string {
	return tt.declarations[m.Key()]
}

// RenameMethod sets the script name of one method overload.
func (tt *TypeTransform) RenameMethod(newName, name string, params ...typedesc.TypeID) *TypeTransform {
	tt.renames[typedesc.MemberKey(name, params...)] = newName
	return tt
}

// MethodRename returns the renamed script name of m.
func (tt *TypeTransform) MethodRename(m *typedesc.Method) (string, bool) {
	n, ok := tt.renames[m.Key()]
	return n, ok
}

// SetMethodReturnPusher overrides the return pusher of one method overload.
func (tt *TypeTransform) SetMethodReturnPusher(pusher, name string, params ...typedesc.TypeID) *TypeTransform {
	tt.pushers[typedesc.MemberKey(name, params...)] = pusher
	return tt
}

// ReturnPusher returns the return pusher override for m.
func (tt *TypeTransform) ReturnPusher(m *typedesc.Method) (string, bool) {
	p, ok := tt.pushers[m.Key()]
	return p, ok
}

// AddRedirectMethod routes script calls of from to the host method to.
func (tt *TypeTransform) AddRedirectMethod(from, to string) *TypeTransform {
	tt.redirects[from] = to
	return tt
}

// Redirect returns the redirect target of a method name.
func (tt *TypeTransform) Redirect(name string) (string, bool) {
	to, ok := tt.redirects[name]
	return to, ok
}

// AddExtensionMethod attaches m to the type as an extension. m's first
// parameter is the receiver.
func (tt *TypeTransform) AddExtensionMethod(m *typedesc.Method) *TypeTransform {
	for _, e := range tt.extensionMethods {
		if e == m {
			return tt
		}
	}
	if tt.methodFilter != nil && tt.methodFilter(m) {
		return tt
	}
	tt.extensionMethods = append(tt.extensionMethods, m)
	return tt
}

// ExtensionMethods returns the attached extension methods.
func (tt *TypeTransform) ExtensionMethods() []*typedesc.Method { return tt.extensionMethods }

// AddStaticMethod attaches a host static function to the type.
func (tt *TypeTransform) AddStaticMethod(m *typedesc.Method) *TypeTransform {
	for _, e := range tt.staticMethods {
		if e == m {
			return tt
		}
	}
	tt.staticMethods = append(tt.staticMethods, m)
	return tt
}

// StaticMethods returns the attached static functions.
func (tt *TypeTransform) StaticMethods() []*typedesc.Method { return tt.staticMethods }

// AddRequiredCapabilities guards the generated binding with capabilities.
func (tt *TypeTransform) AddRequiredCapabilities(caps ...string) *TypeTransform {
outer:
	for _, c := range caps {
		for _, have := range tt.capabilities {
			if have == c {
				continue outer
			}
		}
		tt.capabilities = append(tt.capabilities, c)
	}
	return tt
}

// Capabilities returns the required capabilities in insertion order.
func (tt *TypeTransform) Capabilities() []string { return tt.capabilities }

// EditorOnly requires the editor capability.
func (tt *TypeTransform) EditorOnly() *TypeTransform {
	return tt.AddRequiredCapabilities(EditorCapability)
}

// IsEditorOnly reports whether the editor capability is required.
func (tt *TypeTransform) IsEditorOnly() bool {
	for _, c := range tt.capabilities {
		if c == EditorCapability {
			return true
		}
	}
	return false
}

// SystemRuntime lifts the platform restriction from the binding.
func (tt *TypeTransform) SystemRuntime() *TypeTransform {
	tt.Flags &^= FlagPlatformOnly
	return tt
}

// SetDisposable marks script-constructed instances as owned by the script side.
func (tt *TypeTransform) SetDisposable() *TypeTransform {
	tt.disposable = true
	return tt
}

// Disposable reports whether SetDisposable was called.
func (tt *TypeTransform) Disposable() bool { return tt.disposable }

// EnableOperatorOverloading toggles operator binding for this type.
func (tt *TypeTransform) EnableOperatorOverloading(on bool) *TypeTransform {
	tt.operators = on
	return tt
}

// OperatorOverloading reports whether operators are bound for this type.
func (tt *TypeTransform) OperatorOverloading() bool { return tt.operators }

// SetHotfix overrides the hotfix flags of the type.
func (tt *TypeTransform) SetHotfix(flags typedesc.HotfixFlags) *TypeTransform {
	tt.hotfix = flags
	tt.hotfixSet = true
	return tt
}

// Hotfix returns the hotfix override, if any.
func (tt *TypeTransform) Hotfix() (typedesc.HotfixFlags, bool) { return tt.hotfix, tt.hotfixSet }

// FilterFields installs a predicate; fields for which it returns true are skipped.
func (tt *TypeTransform) FilterFields(fn func(*typedesc.Field) bool) *TypeTransform {
	tt.fieldFilter = fn
	return tt
}

// FilterProperties installs a skip predicate for properties.
func (tt *TypeTransform) FilterProperties(fn func(*typedesc.Property) bool) *TypeTransform {
	tt.propertyFilter = fn
	return tt
}

// FilterEvents installs a skip predicate for events.
func (tt *TypeTransform) FilterEvents(fn func(*typedesc.Event) bool) *TypeTransform {
	tt.eventFilter = fn
	return tt
}

// FilterMethods installs a skip predicate for methods.
func (tt *TypeTransform) FilterMethods(fn func(*typedesc.Method) bool) *TypeTransform {
	tt.methodFilter = fn
	return tt
}

// FilterConstructors installs a skip predicate for constructors.
func (tt *TypeTransform) FilterConstructors(fn func(*typedesc.Method) bool) *TypeTransform {
	tt.ctorFilter = fn
	return tt
}

func (tt *TypeTransform) filterField(f *typedesc.Field) bool {
	return tt.fieldFilter != nil && tt.fieldFilter(f)
}

func (tt *TypeTransform) filterProperty(p *typedesc.Property) bool {
	return tt.propertyFilter != nil && tt.propertyFilter(p)
}

func (tt *TypeTransform) filterEvent(e *typedesc.Event) bool {
	return tt.eventFilter != nil && tt.eventFilter(e)
}

func (tt *TypeTransform) filterMethod(m *typedesc.Method) bool {
	return tt.methodFilter != nil && tt.methodFilter(m)
}

func (tt *TypeTransform) filterConstructor(c *typedesc.Method) bool {
	return tt.ctorFilter != nil && tt.ctorFilter(c)
}
