package binding

import (
	"fmt"

	"github.com/chazu/hostbind/typedesc"
)

// Strategy is the conversion routine family selected for a type shape.
type Strategy uint8

const (
	StrategyVoid Strategy = iota
	StrategyPrimitive
	StrategyString
	StrategyEnum
	StrategyStruct
	StrategyDelegate
	StrategyArray
	StrategyBuffer
	StrategyClass
)

var strategyNames = [...]string{
	StrategyVoid:      "void",
	StrategyPrimitive: "primitive",
	StrategyString:    "string",
	StrategyEnum:      "enumvalue",
	StrategyStruct:    "structvalue",
	StrategyDelegate:  "delegate",
	StrategyArray:     "array",
	StrategyBuffer:    "bytes",
	StrategyClass:     "classvalue",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("strategy(%d)", s)
}

// Marshalling is the classification of one parameter or return slot.
type Marshalling struct {
	Strategy Strategy
	// Type is the classified type after stripping by-ref and nullable wrappers.
	Type  typedesc.TypeID
	Elem  *Marshalling
	ByRef bool
}

// Getter names the routine that reads a script value into a host value.
func (m Marshalling) Getter() string {
	switch m.Strategy {
	case StrategyVoid:
		return ""
	case StrategyArray:
		return m.Elem.Getter() + "_array"
	case StrategyString:
		return "get_primitive"
	}
	return "get_" + m.Strategy.String()
}

// Pusher names the routine that converts a host value into a script value.
func (m Marshalling) Pusher() string {
	switch m.Strategy {
	case StrategyVoid:
		return ""
	case StrategyArray:
		return m.Elem.Pusher() + "_array"
	case StrategyString:
		return "push_primitive"
	}
	return "push_" + m.Strategy.String()
}

// NeedsIdentity reports whether values in this slot go through the object bridge.
func (m Marshalling) NeedsIdentity() bool {
	return m.Strategy == StrategyClass
}

// Classifier maps type descriptors to marshalling strategies. Results depend
// only on the static type shape and are memoized.
type Classifier struct {
	reg       *typedesc.Registry
	delegates *DelegateRegistry
	memo      map[typedesc.TypeID]Marshalling
	pushers   map[typedesc.TypeID]string
}

// NewClassifier returns a classifier over reg.
func NewClassifier(reg *typedesc.Registry) *Classifier {
	return &Classifier{
		reg:     reg,
		memo:    make(map[typedesc.TypeID]Marshalling),
		pushers: make(map[typedesc.TypeID]string),
	}
}

// Classify returns the marshalling of id.
func (c *Classifier) Classify(id typedesc.TypeID) Marshalling {
	if m, ok := c.memo[id]; ok {
		return m
	}
	m := c.classify(id)
	c.memo[id] = m
	if m.Strategy == StrategyDelegate && c.delegates != nil {
		// Memoized first so self-referencing signatures terminate.
		if _, err := c.delegates.Canonicalize(id); err != nil {
			log.Debugf("classify %s: %v", c.name(id), err)
		}
	}
	return m
}

func (c *Classifier) classify(id typedesc.TypeID) Marshalling {
	t := c.reg.Type(id)
	if t == nil {
		return Marshalling{Strategy: StrategyVoid}
	}
	switch t.Kind {
	case typedesc.KindByRef:
		m := c.Classify(t.Elem)
		m.ByRef = true
		return m
	case typedesc.KindNullable:
		m := c.Classify(t.Elem)
		if m.Strategy == StrategyPrimitive || m.Strategy == StrategyEnum {
			m.Strategy = StrategyPrimitive
		}
		return m
	case typedesc.KindArray:
		if t.Elem == c.reg.Primitive("uint8") {
			return Marshalling{Strategy: StrategyBuffer, Type: id}
		}
		elem := c.Classify(t.Elem)
		return Marshalling{Strategy: StrategyArray, Type: id, Elem: &elem}
	case typedesc.KindPrimitive:
		return Marshalling{Strategy: StrategyPrimitive, Type: id}
	case typedesc.KindString:
		return Marshalling{Strategy: StrategyString, Type: id}
	case typedesc.KindEnum:
		return Marshalling{Strategy: StrategyEnum, Type: id}
	case typedesc.KindStruct:
		return Marshalling{Strategy: StrategyStruct, Type: id}
	case typedesc.KindDelegate:
		return Marshalling{Strategy: StrategyDelegate, Type: id}
	}
	return Marshalling{Strategy: StrategyClass, Type: id}
}

// SetPusher overrides the pusher routine for values of type id.
func (c *Classifier) SetPusher(id typedesc.TypeID, pusher string) {
	c.pushers[id] = pusher
}

// Pusher returns the pusher for id, honoring overrides.
func (c *Classifier) Pusher(id typedesc.TypeID) string {
	if p, ok := c.pushers[id]; ok {
		return p
	}
	return c.Classify(id).Pusher()
}

// Getter returns the getter for id.
func (c *Classifier) Getter(id typedesc.TypeID) string {
	return c.Classify(id).Getter()
}

func (c *Classifier) name(id typedesc.TypeID) string {
	if t := c.reg.Type(id); t != nil {
		return t.FullName()
	}
	return "void"
}
