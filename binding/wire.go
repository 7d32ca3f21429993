package binding

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/hostbind/typedesc"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("binding: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SlotRecord is the wire form of a Marshalling.
type SlotRecord struct {
	Type   string `cbor:"1,keyasint"`
	Getter string `cbor:"2,keyasint,omitempty"`
	Pusher string `cbor:"3,keyasint,omitempty"`
	ByRef  bool   `cbor:"4,keyasint,omitempty"`
}

// MemberRecord is the wire form of a bound method variant, property, field
// or delegate member.
type MemberRecord struct {
	Kind       string       `cbor:"1,keyasint"`
	HostName   string       `cbor:"2,keyasint"`
	ScriptName string       `cbor:"3,keyasint"`
	Static     bool         `cbor:"4,keyasint,omitempty"`
	Params     []SlotRecord `cbor:"5,keyasint,omitempty"`
	Return     *SlotRecord  `cbor:"6,keyasint,omitempty"`
	Extension  bool         `cbor:"7,keyasint,omitempty"`
	Signature  string       `cbor:"8,keyasint,omitempty"`

	ParamNames   []string `cbor:"9,keyasint,omitempty"`
	ResultName   string   `cbor:"10,keyasint,omitempty"`
	Declarations []string `cbor:"11,keyasint,omitempty"`
	// Redirect is the host method invoked in place of HostName.
	Redirect string `cbor:"12,keyasint,omitempty"`
	// Full replaces the generated body; BeforeInvoke runs ahead of the call.
	Full         string `cbor:"13,keyasint,omitempty"`
	BeforeInvoke string `cbor:"14,keyasint,omitempty"`
}

// TypeRecord is the wire form of a TypePlan, consumed by out-of-process emitters.
type TypeRecord struct {
	FullName     string         `cbor:"1,keyasint"`
	BindingName  string         `cbor:"2,keyasint"`
	ScriptName   string         `cbor:"3,keyasint"`
	Namespace    string         `cbor:"4,keyasint,omitempty"`
	Super        string         `cbor:"5,keyasint,omitempty"`
	Disposable   bool           `cbor:"6,keyasint,omitempty"`
	EditorOnly   bool           `cbor:"7,keyasint,omitempty"`
	Capabilities []string       `cbor:"8,keyasint,omitempty"`
	Members      []MemberRecord `cbor:"9,keyasint,omitempty"`
	Operators    []MemberRecord `cbor:"10,keyasint,omitempty"`
	Constructors []MemberRecord `cbor:"11,keyasint,omitempty"`
	PlatformOnly bool           `cbor:"12,keyasint,omitempty"`
	Declarations []string       `cbor:"13,keyasint,omitempty"`
}

// SignatureRecord is the wire form of a DelegateSignature.
type SignatureRecord struct {
	Key    string       `cbor:"1,keyasint"`
	Types  []string     `cbor:"2,keyasint"`
	Params []SlotRecord `cbor:"3,keyasint,omitempty"`
	Return SlotRecord   `cbor:"4,keyasint"`
}

// HotfixRecord is the wire form of a HotfixDelegate.
type HotfixRecord struct {
	Declaring string   `cbor:"1,keyasint,omitempty"`
	Static    bool     `cbor:"2,keyasint,omitempty"`
	Return    string   `cbor:"3,keyasint"`
	Params    []string `cbor:"4,keyasint,omitempty"`
}

// DelegatesRecord bundles the delegate table of a run.
type DelegatesRecord struct {
	Signatures []SignatureRecord `cbor:"1,keyasint"`
	Hotfix     []HotfixRecord    `cbor:"2,keyasint,omitempty"`
}

// BindingListRecord lists the binding units of a run.
type BindingListRecord struct {
	Bindings []string `cbor:"1,keyasint"`
}

// MarshalTypeRecord serializes a TypeRecord to CBOR bytes.
func MarshalTypeRecord(r *TypeRecord) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalTypeRecord deserializes a TypeRecord from CBOR bytes.
func UnmarshalTypeRecord(data []byte) (*TypeRecord, error) {
	var r TypeRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("binding: unmarshal type record: %w", err)
	}
	return &r, nil
}

// UnmarshalDelegatesRecord deserializes a DelegatesRecord from CBOR bytes.
func UnmarshalDelegatesRecord(data []byte) (*DelegatesRecord, error) {
	var r DelegatesRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("binding: unmarshal delegates: %w", err)
	}
	return &r, nil
}

// PlanEmitter writes plans as canonical CBOR records.
type PlanEmitter struct {
	reg *typedesc.Registry
}

// NewPlanEmitter returns a CBOR emitter resolving type names through reg.
func NewPlanEmitter(reg *typedesc.Registry) *PlanEmitter {
	return &PlanEmitter{reg: reg}
}

func (e *PlanEmitter) Ext() string { return ".cbor" }

func (e *PlanEmitter) name(id typedesc.TypeID) string {
	if t := e.reg.Type(id); t != nil {
		return t.FullName()
	}
	return ""
}

func (e *PlanEmitter) slot(m Marshalling) SlotRecord {
	return SlotRecord{Type: e.name(m.Type), Getter: m.Getter(), Pusher: m.Pusher(), ByRef: m.ByRef}
}

func (e *PlanEmitter) variant(p *TypePlan, kind, host, script string, static bool, v *MethodVariant) MemberRecord {
	r := MemberRecord{
		Kind:         kind,
		HostName:     host,
		ScriptName:   script,
		Static:       static,
		Extension:    v.Extension,
		Declarations: v.Declarations,
		ResultName:   UniqueName(v.Method.Params, "ret"),
	}
	for i, param := range v.Method.Params {
		name := p.c.ParamName(param)
		if name == "" {
			name = "arg" + strconv.Itoa(i)
		}
		r.ParamNames = append(r.ParamNames, name)
	}
	for _, m := range v.Params {
		r.Params = append(r.Params, e.slot(m))
	}
	if to, ok := p.Transform.Redirect(host); ok && kind == "method" {
		r.Redirect = to
	}
	ctx := InjectContext{Plan: p, Method: v.Method, Variant: v}
	if kind == "constructor" {
		ctx.Variant = nil
	}
	ctx.Point = BindFull
	r.Full, _ = p.Transform.Injection(ctx)
	ctx.Point = BindBeforeInvoke
	r.BeforeInvoke, _ = p.Transform.Injection(ctx)
	if v.Return.Strategy != StrategyVoid {
		ret := e.slot(v.Return)
		if v.ReturnPusher != "" {
			ret.Pusher = v.ReturnPusher
		}
		r.Return = &ret
	}
	return r
}

// Record converts a plan to its wire form.
func (e *PlanEmitter) Record(p *TypePlan) *TypeRecord {
	r := &TypeRecord{
		FullName:     p.Type.FullName(),
		BindingName:  p.BindingName,
		ScriptName:   p.ScriptName,
		Namespace:    p.Namespace,
		Super:        e.name(p.Super()),
		Disposable:   p.Disposable(),
		EditorOnly:   p.EditorOnly(),
		Capabilities: p.Capabilities(),
		PlatformOnly: p.PlatformOnly(),
		Declarations: p.Transform.Declarations(),
	}
	for _, group := range [][]*MethodBinding{p.Methods, p.StaticMethods} {
		for _, b := range group {
			for _, v := range b.Variants {
				r.Members = append(r.Members, e.variant(p, "method", b.HostName, b.ScriptName, b.Static, v))
			}
		}
	}
	for _, prop := range p.Properties {
		ret := e.slot(prop.Marshalling)
		r.Members = append(r.Members, MemberRecord{
			Kind:       "property",
			HostName:   prop.Property.Name,
			ScriptName: prop.ScriptName,
			Static:     prop.Static,
			Return:     &ret,
		})
	}
	for _, f := range p.Fields {
		ret := e.slot(f.Marshalling)
		r.Members = append(r.Members, MemberRecord{
			Kind:       "field",
			HostName:   f.Field.Name,
			ScriptName: f.ScriptName,
			Static:     f.Field.Static,
			Return:     &ret,
		})
	}
	for _, d := range p.Delegates {
		r.Members = append(r.Members, MemberRecord{
			Kind:       "delegate",
			HostName:   d.HostName,
			ScriptName: d.ScriptName,
			Static:     d.Static,
			Signature:  d.Signature.Key,
		})
	}
	for _, ev := range p.Events {
		r.Members = append(r.Members, MemberRecord{
			Kind:       "event",
			HostName:   ev.Event.Name,
			ScriptName: ev.ScriptName,
			Static:     ev.Event.Static,
			Signature:  ev.Signature.Key,
		})
	}
	for _, op := range p.Operators {
		m := MemberRecord{
			Kind:       "operator",
			HostName:   op.BindingName,
			ScriptName: op.Symbol,
			Static:     op.Static,
			Extension:  op.Extension,
		}
		for _, s := range op.Params {
			m.Params = append(m.Params, e.slot(s))
		}
		ret := e.slot(op.Return)
		m.Return = &ret
		r.Operators = append(r.Operators, m)
	}
	for _, v := range p.Constructors.Variants {
		r.Constructors = append(r.Constructors, e.variant(p, "constructor", ".ctor", p.ScriptName, false, v))
	}
	return r
}

func (e *PlanEmitter) EmitType(w io.Writer, p *TypePlan) error {
	data, err := MarshalTypeRecord(e.Record(p))
	if err != nil {
		return fmt.Errorf("binding: marshal %s: %w", p.Type.FullName(), err)
	}
	_, err = w.Write(data)
	return err
}

func (e *PlanEmitter) EmitDelegates(w io.Writer, sigs []*DelegateSignature, hotfix []*HotfixDelegate) error {
	var rec DelegatesRecord
	for _, s := range sigs {
		sr := SignatureRecord{Key: s.Key, Return: e.slot(s.ReturnMarshalling)}
		for _, id := range s.Types {
			sr.Types = append(sr.Types, e.name(id))
		}
		for _, m := range s.ParamMarshalling {
			sr.Params = append(sr.Params, e.slot(m))
		}
		rec.Signatures = append(rec.Signatures, sr)
	}
	for _, h := range hotfix {
		hr := HotfixRecord{Declaring: e.name(h.Declaring), Static: h.Static, Return: e.name(h.Return)}
		for _, id := range h.Params {
			hr.Params = append(hr.Params, e.name(id))
		}
		rec.Hotfix = append(rec.Hotfix, hr)
	}
	data, err := cborEncMode.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("binding: marshal delegates: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func (e *PlanEmitter) EmitBindingList(w io.Writer, plans []*TypePlan) error {
	var rec BindingListRecord
	for _, p := range plans {
		rec.Bindings = append(rec.Bindings, p.BindingName)
	}
	data, err := cborEncMode.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("binding: marshal binding list: %w", err)
	}
	_, err = w.Write(data)
	return err
}
