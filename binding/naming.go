package binding

import (
	"strconv"
	"strings"

	"github.com/chazu/hostbind/typedesc"
)

// ReservedFieldPrefix marks host fields generated for hotfix support. Such
// fields are never bound.
const ReservedFieldPrefix = "_JSFIX_"

// DefaultBindingPrefix prefixes generated binding unit names.
const DefaultBindingPrefix = "hb_"

// NamingStyle selects how host member names are presented to scripts.
type NamingStyle string

const (
	NamingPreserve NamingStyle = "preserve"
	// NamingCamel lowercases the first rune, e.g. "ReadAll" becomes "readAll".
	NamingCamel NamingStyle = "camel"
)

var defaultKeywords = []string{
	"return", "function", "interface", "class", "let", "break", "as", "any",
	"switch", "case", "if", "throw", "else", "var", "number", "string", "get",
	"module", "instanceof", "typeof", "public", "private", "enum", "export",
	"finally", "for", "while", "void", "null", "super", "this", "new", "in",
	"await", "async", "extends", "static", "package", "implements",
	"continue", "yield", "const",
}

// DefaultKeywords returns a copy of the builtin reserved word list.
func DefaultKeywords() []string {
	return append([]string(nil), defaultKeywords...)
}

var separators = strings.NewReplacer(
	".", "_",
	"+", "_",
	"<", "_",
	">", "_",
	"[", "_",
	"]", "_",
	",", "_",
	" ", "_",
	"=", "_",
	"/", "_",
	"`", "_",
)

// Sanitize replaces name separators with underscores.
func Sanitize(name string) string {
	return separators.Replace(name)
}

// FileName returns the output base name of a type: its full name with
// separators replaced, and for generic types the namespace, simple name and
// each generic argument's simple name.
func FileName(reg *typedesc.Registry, id typedesc.TypeID) string {
	t := reg.Type(id)
	if t == nil {
		return ""
	}
	if !t.IsGeneric() {
		return Sanitize(t.FullName())
	}
	var b strings.Builder
	if t.Namespace != "" {
		b.WriteString(t.Namespace)
		b.WriteByte('_')
	}
	b.WriteString(t.SimpleName())
	args := t.GenericArgs
	if t.IsGenericDefinition() {
		args = t.GenericParams
	}
	for _, a := range args {
		b.WriteByte('_')
		if at := reg.Type(a); at != nil {
			b.WriteString(at.SimpleName())
		}
	}
	return Sanitize(b.String())
}

// escape appends "_" to reserved words.
func (c *Collector) escape(name string) string {
	if c.keywords[name] {
		return name + "_"
	}
	return name
}

// ScriptName converts a host member name to its script-facing name.
func (c *Collector) ScriptName(name string) string {
	if c.opts.Naming == NamingCamel && name != "" {
		name = strings.ToLower(name[:1]) + name[1:]
	}
	return c.escape(name)
}

// ParamName returns a script-safe parameter name.
func (c *Collector) ParamName(p typedesc.Param) string {
	return c.escape(p.Name)
}

// UniqueName returns prefix+N for the smallest N not clashing with a
// parameter name.
func UniqueName(params []typedesc.Param, prefix string) string {
	for i := 0; ; i++ {
		name := prefix + strconv.Itoa(i)
		clash := false
		for _, p := range params {
			if p.Name == name {
				clash = true
				break
			}
		}
		if !clash {
			return name
		}
	}
}

func (c *Collector) typeScriptName(t *typedesc.Type, tt *TypeTransform) string {
	if n := tt.ScriptName(); n != "" {
		return n
	}
	if !t.IsConstructedGeneric() {
		return t.SimpleName()
	}
	name := t.SimpleName()
	for _, a := range t.GenericArgs {
		if at := c.reg.Type(a); at != nil {
			name += "_" + at.SimpleName()
		}
	}
	return Sanitize(name)
}
