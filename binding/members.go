package binding

import (
	"strings"

	"github.com/chazu/hostbind/typedesc"
)

const indexerName = "Item"

// collect fills the plan from the host type's members. It runs once.
func (p *TypePlan) collect() {
	if p.collected {
		return
	}
	p.collected = true
	t := p.Type
	tt := p.Transform
	open := t.IsGenericDefinition()

	for _, f := range t.Fields {
		switch {
		case f.SpecialName || strings.HasPrefix(f.Name, ReservedFieldPrefix):
			p.skip(f.Name, "special name")
		case f.Static && open:
			p.skip(f.Name, "static member of open generic definition")
		case p.c.isPointer(f.Type):
			p.skip(f.Name, "pointer type")
		case f.Markers.Has(typedesc.Omit):
			p.skip(f.Name, "omitted")
		case f.Markers.Has(typedesc.Deprecated):
			p.skip(f.Name, "deprecated")
		case tt.IsMemberBlocked(f.Name):
			p.skip(f.Name, "blocked")
		case tt.filterField(f):
			p.skip(f.Name, "filtered")
		default:
			p.addField(f)
		}
	}

	for _, e := range t.Events {
		switch {
		case e.SpecialName:
			p.skip(e.Name, "special name")
		case e.Static && open:
			p.skip(e.Name, "static member of open generic definition")
		case p.c.isPointer(e.Type):
			p.skip(e.Name, "pointer type")
		case e.Markers.Has(typedesc.Omit):
			p.skip(e.Name, "omitted")
		case e.Markers.Has(typedesc.Deprecated):
			p.skip(e.Name, "deprecated")
		case tt.IsMemberBlocked(e.Name):
			p.skip(e.Name, "blocked")
		case tt.filterEvent(e):
			p.skip(e.Name, "filtered")
		default:
			p.addEvent(e)
		}
	}

	for _, prop := range t.Properties {
		switch {
		case prop.SpecialName:
			p.skip(prop.Name, "special name")
		case p.c.isPointer(prop.Type):
			p.skip(prop.Name, "pointer type")
		case prop.IsStatic() && open:
			p.skip(prop.Name, "static member of open generic definition")
		case prop.Markers.Has(typedesc.Omit):
			p.skip(prop.Name, "omitted")
		case prop.Markers.Has(typedesc.Deprecated):
			p.skip(prop.Name, "deprecated")
		case tt.IsMemberBlocked(prop.Name):
			p.skip(prop.Name, "blocked")
		case tt.filterProperty(prop):
			p.skip(prop.Name, "filtered")
		case prop.Name == indexerName:
			// Indexers are exposed through their accessor methods.
			for _, acc := range []*typedesc.Method{prop.Getter, prop.Setter} {
				if acc == nil {
					continue
				}
				if p.c.containsPointer(acc) {
					p.skip(acc.Name, "pointer parameter")
					continue
				}
				p.addMethod(acc, false)
			}
		default:
			p.addProperty(prop)
		}
	}

	if !t.Abstract && t.Kind != typedesc.KindInterface {
		for _, ctor := range t.Constructors {
			switch {
			case ctor.Markers.Has(typedesc.Omit):
				p.skip(ctor.Key(), "omitted")
			case ctor.Markers.Has(typedesc.Deprecated):
				p.skip(ctor.Key(), "deprecated")
			case p.c.containsPointer(ctor):
				p.skip(ctor.Key(), "pointer parameter")
			case p.c.containsByRef(ctor):
				p.skip(ctor.Key(), "by-ref parameter")
			case tt.filterConstructor(ctor):
				p.skip(ctor.Key(), "filtered")
			default:
				p.addConstructor(ctor)
			}
		}
	}

	p.collectMethods(t.Methods, false)
	p.collectMethods(tt.ExtensionMethods(), true)
	p.collectMethods(tt.StaticMethods(), false)
}

func (p *TypePlan) collectMethods(methods []*typedesc.Method, asExtension bool) {
	tt := p.Transform
	for _, m := range methods {
		switch {
		case m.Generic:
			p.skip(m.Name, "generic method")
			continue
		case p.c.containsPointer(m):
			p.skip(m.Name, "pointer parameter")
			continue
		case m.SpecialName && !isOperatorName(m.Name):
			p.skip(m.Name, "special name")
			continue
		case m.Markers.Has(typedesc.Omit):
			p.skip(m.Name, "omitted")
			continue
		case m.Markers.Has(typedesc.Deprecated):
			p.skip(m.Name, "deprecated")
			continue
		case tt.IsMemberBlocked(m.Name):
			p.skip(m.Name, "blocked")
			continue
		case tt.filterMethod(m):
			p.skip(m.Name, "filtered")
			continue
		}
		if (asExtension || m.Extension) && len(m.Params) > 0 {
			if target, ok := p.c.Plan(m.Params[0].Type); ok {
				target.addMethod(m, true)
				continue
			}
		}
		p.addMethod(m, false)
	}
}

func (p *TypePlan) addMethod(m *typedesc.Method, extension bool) {
	tt := p.Transform
	if tt.IsBlocked(m) {
		p.skip(m.Name, "blocked signature")
		return
	}
	static := m.Static && !extension
	if static && p.Type.IsGenericDefinition() {
		p.skip(m.Name, "static member of open generic definition")
		return
	}

	if m.SpecialName && p.operatorsEnabled() {
		if op := p.matchOperator(m, extension, static); op != nil {
			p.Operators = append(p.Operators, op)
			p.c.infof("add operator %s.%s as %s", p.Type.FullName(), m.Name, op.BindingName)
			return
		}
		// Unmatched operator shapes bind as ordinary methods.
	}

	scriptName, renamed := tt.MethodRename(m)
	if !renamed {
		scriptName = p.c.ScriptName(m.Name)
	}
	group := p.methods
	if static {
		group = p.statics
	}
	b, ok := group[scriptName]
	if !ok {
		b = &MethodBinding{HostName: m.Name, ScriptName: scriptName, Static: static}
		group[scriptName] = b
		if static {
			p.StaticMethods = append(p.StaticMethods, b)
		} else {
			p.Methods = append(p.Methods, b)
		}
	}

	v := p.variant(m)
	v.Extension = extension
	if !b.add(v) {
		p.skip(m.Name, "duplicate signature")
		return
	}
	p.c.infof("add method %s.%s", p.Type.FullName(), m.Key())
}

func (p *TypePlan) variant(m *typedesc.Method) *MethodVariant {
	cls := p.c.classifier
	v := &MethodVariant{
		Method:       m,
		Return:       cls.Classify(m.Return),
		Declarations: p.Transform.MethodDeclarations(m),
	}
	for _, param := range m.Params {
		v.Params = append(v.Params, cls.Classify(param.Type))
	}
	if pusher, ok := p.Transform.ReturnPusher(m); ok {
		v.ReturnPusher = pusher
	} else {
		v.ReturnPusher = cls.Pusher(m.Return)
	}
	return v
}

func (p *TypePlan) addConstructor(ctor *typedesc.Method) {
	if p.Transform.IsBlocked(ctor) {
		p.skip(ctor.Key(), "blocked signature")
		return
	}
	if !p.Constructors.add(p.variant(ctor)) {
		p.skip(ctor.Key(), "duplicate signature")
		return
	}
	p.Constructors.Disposable = p.Disposable()
	p.c.infof("add constructor %s%s", p.Type.FullName(), strings.TrimPrefix(ctor.Key(), ".ctor"))
}

func (p *TypePlan) claim(name string) bool {
	if p.members[name] {
		p.skip(name, "duplicate member name")
		return false
	}
	p.members[name] = true
	return true
}

func (p *TypePlan) addField(f *typedesc.Field) {
	if !p.claim(f.Name) {
		return
	}
	if p.c.isDelegate(f.Type) {
		sig, err := p.c.delegates.Canonicalize(f.Type)
		if err != nil {
			p.skip(f.Name, err.Error())
			return
		}
		p.Delegates = append(p.Delegates, &DelegateBinding{
			HostName:   f.Name,
			ScriptName: p.c.ScriptName(f.Name),
			Static:     f.Static,
			ReadOnly:   f.ReadOnly,
			Type:       f.Type,
			Signature:  sig,
			Field:      f,
		})
		p.c.infof("add field %s.%s as delegate", p.Type.FullName(), f.Name)
		return
	}
	p.Fields = append(p.Fields, &FieldBinding{
		Field:       f,
		ScriptName:  p.c.ScriptName(f.Name),
		Marshalling: p.c.classifier.Classify(f.Type),
	})
	p.c.infof("add field %s.%s", p.Type.FullName(), f.Name)
}

func (p *TypePlan) addProperty(prop *typedesc.Property) {
	if !p.claim(prop.Name) {
		return
	}
	if p.c.isDelegate(prop.Type) {
		sig, err := p.c.delegates.Canonicalize(prop.Type)
		if err != nil {
			p.skip(prop.Name, err.Error())
			return
		}
		p.Delegates = append(p.Delegates, &DelegateBinding{
			HostName:   prop.Name,
			ScriptName: p.c.ScriptName(prop.Name),
			Static:     prop.IsStatic(),
			ReadOnly:   prop.Setter == nil,
			Type:       prop.Type,
			Signature:  sig,
			Property:   prop,
		})
		p.c.infof("add property %s.%s as delegate", p.Type.FullName(), prop.Name)
		return
	}
	p.Properties = append(p.Properties, &PropertyBinding{
		Property:    prop,
		ScriptName:  p.c.ScriptName(prop.Name),
		Static:      prop.IsStatic(),
		Marshalling: p.c.classifier.Classify(prop.Type),
	})
	p.c.infof("add property %s.%s", p.Type.FullName(), prop.Name)
}

func (p *TypePlan) addEvent(e *typedesc.Event) {
	if !p.claim(e.Name) {
		return
	}
	sig, err := p.c.delegates.Canonicalize(e.Type)
	if err != nil {
		p.skip(e.Name, err.Error())
		return
	}
	p.Events = append(p.Events, &EventBinding{
		Event:      e,
		ScriptName: p.c.ScriptName(e.Name),
		Signature:  sig,
	})
	p.c.infof("add event %s.%s", p.Type.FullName(), e.Name)
}
