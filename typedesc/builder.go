package typedesc

// Builder helpers used by generated registration code and by tests.

func (r *Registry) newNamed(kind Kind, module, namespace, name string) *Type {
	t := &Type{Kind: kind, Module: module, Namespace: namespace, Name: name}
	r.Define(t)
	return t
}

// NewClass registers a reference type.
func (r *Registry) NewClass(module, namespace, name string) *Type {
	return r.newNamed(KindClass, module, namespace, name)
}

// NewStruct registers a value aggregate.
func (r *Registry) NewStruct(module, namespace, name string) *Type {
	return r.newNamed(KindStruct, module, namespace, name)
}

// NewEnum registers an enumerated value type.
func (r *Registry) NewEnum(module, namespace, name string) *Type {
	return r.newNamed(KindEnum, module, namespace, name)
}

// NewInterface registers an interface type.
func (r *Registry) NewInterface(module, namespace, name string) *Type {
	return r.newNamed(KindInterface, module, namespace, name)
}

// NewDelegate registers a function-shaped type with the given call signature.
func (r *Registry) NewDelegate(module, namespace, name string, ret TypeID, params ...Param) *Type {
	t := r.newNamed(KindDelegate, module, namespace, name)
	t.Invoke = &Method{Name: "Invoke", Declaring: t.ID, Params: params, Return: ret}
	return t
}

// NewGeneric registers an open generic definition of the given kind with one
// generic parameter type per name.
func (r *Registry) NewGeneric(kind Kind, module, namespace, name string, params ...string) *Type {
	t := r.newNamed(kind, module, namespace, name)
	for _, p := range params {
		pt := &Type{Kind: KindGenericParam, Name: p, Declaring: t.ID}
		t.GenericParams = append(t.GenericParams, r.Define(pt))
	}
	return t
}

// NestedClass registers a reference type enclosed by outer.
func (r *Registry) NestedClass(outer *Type, name string) *Type {
	t := &Type{Kind: KindClass, Module: outer.Module, Namespace: outer.Namespace, Name: name, Declaring: outer.ID}
	r.Define(t)
	return t
}

// Param returns the generic parameter type at index i.
func (t *Type) Param(i int) TypeID { return t.GenericParams[i] }

// AddField adds an instance field.
func (t *Type) AddField(name string, typ TypeID) *Field {
	f := &Field{Name: name, Declaring: t.ID, Type: typ}
	t.Fields = append(t.Fields, f)
	return f
}

// AddStaticField adds a static field.
func (t *Type) AddStaticField(name string, typ TypeID, readOnly bool) *Field {
	f := t.AddField(name, typ)
	f.Static = true
	f.ReadOnly = readOnly
	return f
}

// AddMethod adds an instance method.
func (t *Type) AddMethod(name string, ret TypeID, params ...Param) *Method {
	m := &Method{Name: name, Declaring: t.ID, Params: params, Return: ret}
	t.Methods = append(t.Methods, m)
	return m
}

// AddStaticMethod adds a static method.
func (t *Type) AddStaticMethod(name string, ret TypeID, params ...Param) *Method {
	m := t.AddMethod(name, ret, params...)
	m.Static = true
	return m
}

// AddOperator adds a static special-name operator method named "op_"+op.
func (t *Type) AddOperator(op string, ret TypeID, params ...Param) *Method {
	m := t.AddStaticMethod("op_"+op, ret, params...)
	m.SpecialName = true
	return m
}

// AddConstructor adds a constructor.
func (t *Type) AddConstructor(params ...Param) *Method {
	c := &Method{Name: ".ctor", Declaring: t.ID, Params: params, SpecialName: true}
	t.Constructors = append(t.Constructors, c)
	return c
}

func (t *Type) addProperty(name string, typ TypeID, static, get, set bool, index []Param) *Property {
	p := &Property{Name: name, Declaring: t.ID, Type: typ}
	if get {
		p.Getter = &Method{Name: "get_" + name, Declaring: t.ID, Static: static, SpecialName: true,
			Params: index, Return: typ}
	}
	if set {
		params := append(append([]Param(nil), index...), P("value", typ))
		p.Setter = &Method{Name: "set_" + name, Declaring: t.ID, Static: static, SpecialName: true,
			Params: params}
	}
	t.Properties = append(t.Properties, p)
	return p
}

// AddProperty adds an instance property with the requested accessors.
func (t *Type) AddProperty(name string, typ TypeID, get, set bool) *Property {
	return t.addProperty(name, typ, false, get, set, nil)
}

// AddStaticProperty adds a static property with the requested accessors.
func (t *Type) AddStaticProperty(name string, typ TypeID, get, set bool) *Property {
	return t.addProperty(name, typ, true, get, set, nil)
}

// AddIndexer adds the "Item" property indexed by key.
func (t *Type) AddIndexer(typ, key TypeID, get, set bool) *Property {
	return t.addProperty("Item", typ, false, get, set, []Param{P("index", key)})
}

// AddEvent adds an instance event carrying handlers of the given delegate type.
func (t *Type) AddEvent(name string, handler TypeID) *Event {
	e := &Event{Name: name, Declaring: t.ID, Type: handler}
	t.Events = append(t.Events, e)
	return e
}

// SetBase sets the base type and returns t.
func (t *Type) SetBase(base TypeID) *Type {
	t.Base = base
	return t
}
