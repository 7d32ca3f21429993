package binding

import (
	"github.com/chazu/hostbind/typedesc"
)

type operatorRule struct {
	symbol string
	arity  int
	// mixed operands must each be exported types rather than the declaring type.
	mixed bool
}

var operatorRules = map[string]operatorRule{
	"op_LessThan":      {"<", 2, false},
	"op_Addition":      {"+", 2, false},
	"op_Subtraction":   {"-", 2, false},
	"op_Equality":      {"==", 2, false},
	"op_Multiply":      {"*", 2, true},
	"op_Division":      {"/", 2, true},
	"op_UnaryNegation": {"neg", 1, false},
}

func isOperatorName(name string) bool {
	_, ok := operatorRules[name]
	return ok
}

func (p *TypePlan) operatorsEnabled() bool {
	return p.c.opts.OperatorOverloading && p.Transform.OperatorOverloading()
}

// matchOperator returns the operator binding for m, or nil when m does not
// have a supported operator shape.
func (p *TypePlan) matchOperator(m *typedesc.Method, extension, static bool) *OperatorBinding {
	rule, ok := operatorRules[m.Name]
	if !ok || len(m.Params) != rule.arity {
		return nil
	}
	name := m.Name
	if rule.arity == 2 {
		a, b := m.Params[0].Type, m.Params[1].Type
		if rule.mixed {
			pa, okA := p.c.Plan(a)
			pb, okB := p.c.Plan(b)
			if !okA || !okB {
				return nil
			}
			name = m.Name + "_" + pa.BindingName + "_" + pb.BindingName
		} else if a != m.Declaring || b != m.Declaring {
			return nil
		}
	}

	v := p.variant(m)
	return &OperatorBinding{
		Method:      m,
		Symbol:      rule.symbol,
		Arity:       rule.arity,
		Mixed:       rule.mixed,
		BindingName: name,
		Static:      static,
		Extension:   extension,
		Params:      v.Params,
		Return:      v.Return,
	}
}
