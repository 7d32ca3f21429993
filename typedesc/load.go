package typedesc

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"
)

var log = commonlog.GetLogger("hostbind.typedesc")

// PackageError records a package the loader skipped.
type PackageError struct {
	Path string
	Err  error
}

func (e PackageError) Error() string { return e.Path + ": " + e.Err.Error() }

// LoadErrors is returned when some packages could not be loaded. The
// remaining Loaded packages are registered regardless.
type LoadErrors struct {
	Failed []PackageError
	Loaded int
}

func (e *LoadErrors) Error() string {
	msgs := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d of %d packages failed to load: %s",
		len(e.Failed), len(e.Failed)+e.Loaded, strings.Join(msgs, "; "))
}

// DirectivePrefix starts a doc-comment directive line, e.g. "//hostbind:omit".
const DirectivePrefix = "//hostbind:"

var operatorFuncs = map[string]bool{
	"OpLessThan":      true,
	"OpAddition":      true,
	"OpSubtraction":   true,
	"OpEquality":      true,
	"OpMultiply":      true,
	"OpDivision":      true,
	"OpUnaryNegation": true,
}

// LoadPackages loads the Go packages matching patterns and registers their
// exported API. Each package becomes a module named by its import path.
func LoadPackages(reg *Registry, patterns ...string) error {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
	}
	return LoadPackagesWithConfig(reg, cfg, patterns...)
}

// LoadPackagesWithConfig is LoadPackages with a caller supplied config, for
// loading from a different directory or with build tags. cfg.Mode must include
// NeedName, NeedTypes and NeedSyntax.
//
// A package with errors is logged and skipped; the others are still
// registered and the skipped ones are reported in a *LoadErrors.
func LoadPackagesWithConfig(reg *Registry, cfg *packages.Config, patterns ...string) error {
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return fmt.Errorf("loading %v: %w", patterns, err)
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages found for %v", patterns)
	}
	l := &loader{
		reg:    reg,
		named:  make(map[*types.TypeName]TypeID),
		params: make(map[*types.TypeParam]TypeID),
		funcs:  make(map[string]TypeID),
	}
	var failed []PackageError
	ok := pkgs[:0:0]
	for _, pkg := range pkgs {
		switch {
		case len(pkg.Errors) > 0:
			failed = append(failed, PackageError{Path: pkg.PkgPath, Err: pkgErrors(pkg.Errors)})
		case pkg.Types == nil:
			failed = append(failed, PackageError{Path: pkg.PkgPath, Err: errors.New("type information not available")})
		default:
			ok = append(ok, pkg)
			continue
		}
		log.Warningf("skipping package %s", failed[len(failed)-1])
	}
	pkgs = ok
	for _, pkg := range pkgs {
		l.declarePackage(pkg)
	}
	// Generic definitions are filled first so instantiations made while
	// filling other types copy complete member lists.
	for _, generic := range []bool{true, false} {
		for _, pkg := range pkgs {
			l.enter(pkg)
			l.fillTypes(generic)
		}
	}
	for _, pkg := range pkgs {
		l.enter(pkg)
		l.fillFuncs()
	}
	if len(failed) > 0 {
		return &LoadErrors{Failed: failed, Loaded: len(pkgs)}
	}
	return nil
}

func pkgErrors(errs []packages.Error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}

type directives struct {
	markers Marker
	hotfix  HotfixFlags
	ext     bool
}

type loader struct {
	reg    *Registry
	named  map[*types.TypeName]TypeID
	params map[*types.TypeParam]TypeID
	funcs  map[string]TypeID

	pkg     *packages.Package
	dirs    map[token.Pos]directives
	pkgDirs map[*packages.Package]map[token.Pos]directives
}

func (l *loader) enter(pkg *packages.Package) {
	if l.pkgDirs == nil {
		l.pkgDirs = make(map[*packages.Package]map[token.Pos]directives)
	}
	dirs, ok := l.pkgDirs[pkg]
	if !ok {
		dirs = collectDirectives(pkg.Syntax)
		l.pkgDirs[pkg] = dirs
	}
	l.pkg = pkg
	l.dirs = dirs
}

func (l *loader) declarePackage(pkg *packages.Package) {
	scope := pkg.Types.Scope()
	enums := enumTypes(scope)
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		kind := namedKind(named, enums[tn])
		if kind == KindInvalid {
			continue
		}
		t := &Type{Kind: kind, Namespace: pkg.PkgPath, Name: tn.Name(), Module: pkg.PkgPath}
		id := l.reg.Define(t)
		l.named[tn] = id
		if tps := named.TypeParams(); tps != nil {
			for i := 0; i < tps.Len(); i++ {
				tp := tps.At(i)
				pid := l.reg.Define(&Type{Kind: KindGenericParam, Name: tp.Obj().Name(), Declaring: id})
				t.GenericParams = append(t.GenericParams, pid)
				l.params[tp] = pid
			}
		}
	}
}

func (l *loader) fillTypes(generic bool) {
	scope := l.pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		id, ok := l.named[tn]
		if !ok || tn.Pkg() != l.pkg.Types {
			continue
		}
		if t := l.reg.Type(id); t.IsGenericDefinition() == generic {
			l.fillType(t, tn)
		}
	}
}

func (l *loader) fillFuncs() {
	pkg := l.pkg
	scope := pkg.Types.Scope()

	var holder *Type
	holderType := func() *Type {
		if holder == nil {
			holder = &Type{Kind: KindClass, Namespace: pkg.PkgPath, Name: toPascal(pkg.Name), Module: pkg.PkgPath}
			l.reg.Define(holder)
		}
		return holder
	}

	for _, name := range scope.Names() {
		obj := scope.Lookup(name)
		if !obj.Exported() {
			continue
		}
		switch o := obj.(type) {
		case *types.Func:
			l.addFunc(o, holderType)
		case *types.Const:
			if tn := namedOf(o.Type()); tn != nil {
				if id, ok := l.named[tn]; ok && l.reg.Type(id).Kind == KindEnum {
					t := l.reg.Type(id)
					f := t.AddStaticField(o.Name(), id, true)
					f.Markers = l.dirs[o.Pos()].markers
					continue
				}
			}
			f := holderType().AddStaticField(o.Name(), l.typeOf(types.Default(o.Type())), true)
			f.Markers = l.dirs[o.Pos()].markers
		case *types.Var:
			f := holderType().AddStaticField(o.Name(), l.typeOf(o.Type()), false)
			f.Markers = l.dirs[o.Pos()].markers
		}
	}
}

func (l *loader) fillType(t *Type, tn *types.TypeName) {
	named := tn.Type().(*types.Named)
	d := l.dirs[tn.Pos()]
	t.Markers |= d.markers
	t.Hotfix = d.hotfix

	switch u := named.Underlying().(type) {
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			f := u.Field(i)
			if f.Embedded() {
				if i == 0 {
					t.Base = l.typeOf(f.Type())
				}
				continue
			}
			if !f.Exported() {
				continue
			}
			fd := t.AddField(f.Name(), l.typeOf(f.Type()))
			fd.Markers = l.dirs[f.Pos()].markers
		}
	case *types.Interface:
		for i := 0; i < u.NumExplicitMethods(); i++ {
			fn := u.ExplicitMethod(i)
			if !fn.Exported() {
				continue
			}
			m := l.method(fn.Name(), fn.Type().(*types.Signature))
			m.Markers = l.dirs[fn.Pos()].markers
			m.Declaring = t.ID
			t.Methods = append(t.Methods, m)
		}
		t.Abstract = true
		return
	case *types.Signature:
		t.Invoke = l.method("Invoke", u)
		t.Invoke.Declaring = t.ID
		return
	}

	for i := 0; i < named.NumMethods(); i++ {
		fn := named.Method(i)
		if !fn.Exported() {
			continue
		}
		sig := fn.Type().(*types.Signature)
		l.bindRecvParams(sig, t)
		m := l.method(fn.Name(), sig)
		m.Declaring = t.ID
		m.Markers = l.dirs[fn.Pos()].markers
		t.Methods = append(t.Methods, m)
	}
	t.Closer = isCloser(named)
}

// bindRecvParams maps the receiver's type parameters, which are distinct
// objects from the declaration's, onto the definition's parameter types.
func (l *loader) bindRecvParams(sig *types.Signature, t *Type) {
	rtps := sig.RecvTypeParams()
	if rtps == nil {
		return
	}
	for i := 0; i < rtps.Len() && i < len(t.GenericParams); i++ {
		l.params[rtps.At(i)] = t.GenericParams[i]
	}
}

func (l *loader) addFunc(fn *types.Func, holder func() *Type) {
	sig := fn.Type().(*types.Signature)
	d := l.dirs[fn.Pos()]
	name := fn.Name()

	if strings.HasPrefix(name, "New") {
		if t := l.localResult(sig); t != nil && name == "New"+t.Name {
			c := l.method(".ctor", sig)
			c.Return = Void
			c.SpecialName = true
			c.Declaring = t.ID
			c.Markers = d.markers
			t.Constructors = append(t.Constructors, c)
			return
		}
	}
	if operatorFuncs[name] && sig.Params().Len() > 0 {
		if t := l.localType(sig.Params().At(0).Type()); t != nil {
			m := l.method("op_"+strings.TrimPrefix(name, "Op"), sig)
			m.Static = true
			m.SpecialName = true
			m.Declaring = t.ID
			m.Markers = d.markers
			t.Methods = append(t.Methods, m)
			return
		}
	}

	h := holder()
	m := l.method(name, sig)
	m.Static = true
	m.Declaring = h.ID
	m.Markers = d.markers
	m.Extension = d.ext && sig.Params().Len() > 0
	h.Methods = append(h.Methods, m)
}

func (l *loader) localResult(sig *types.Signature) *Type {
	if sig.Results().Len() == 0 {
		return nil
	}
	return l.localType(sig.Results().At(0).Type())
}

func (l *loader) localType(t types.Type) *Type {
	tn := namedOf(t)
	if tn == nil || tn.Pkg() != l.pkg.Types {
		return nil
	}
	if id, ok := l.named[tn]; ok {
		return l.reg.Type(id)
	}
	return nil
}

func (l *loader) method(name string, sig *types.Signature) *Method {
	m := &Method{Name: name}
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		pt := p.Type()
		variadic := sig.Variadic() && i == params.Len()-1
		if variadic {
			pt = pt.(*types.Slice).Elem()
		}
		m.Params = append(m.Params, Param{Name: p.Name(), Type: l.typeOf(pt), Variadic: variadic})
	}
	results := sig.Results()
	n := results.Len()
	if n > 0 && isErrorType(results.At(n-1).Type()) {
		n--
	}
	switch n {
	case 0:
	case 1:
		m.Return = l.typeOf(results.At(0).Type())
	default:
		m.Return = l.reg.Object()
	}
	return m
}

func (l *loader) typeOf(t types.Type) TypeID {
	switch t := types.Unalias(t).(type) {
	case *types.Basic:
		return l.basic(t)
	case *types.Named:
		if t.Obj().Pkg() == nil && t.Obj().Name() == "error" {
			return l.reg.Error()
		}
		if args := t.TypeArgs(); args != nil && args.Len() > 0 {
			def := l.namedID(t.Origin().Obj(), t.Origin())
			ids := make([]TypeID, args.Len())
			for i := 0; i < args.Len(); i++ {
				ids[i] = l.typeOf(args.At(i))
			}
			if inst, err := l.reg.Instantiate(def, ids...); err == nil {
				return inst
			}
			return l.reg.Object()
		}
		return l.namedID(t.Obj(), t)
	case *types.TypeParam:
		if id, ok := l.params[t]; ok {
			return id
		}
		return l.reg.Object()
	case *types.Pointer:
		elem := types.Unalias(t.Elem())
		if _, ok := elem.(*types.Named); ok {
			return l.typeOf(elem)
		}
		if b, ok := elem.(*types.Basic); ok {
			return l.reg.ByRefOf(l.basic(b))
		}
		return l.reg.PointerTo(l.typeOf(elem))
	case *types.Slice:
		return l.reg.ArrayOf(l.typeOf(t.Elem()))
	case *types.Array:
		return l.reg.ArrayOf(l.typeOf(t.Elem()))
	case *types.Signature:
		return l.funcType(t)
	}
	return l.reg.Object()
}

func (l *loader) basic(b *types.Basic) TypeID {
	switch b.Kind() {
	case types.UnsafePointer, types.Uintptr:
		return l.reg.Primitive("uintptr")
	case types.String, types.UntypedString:
		return l.reg.StringType()
	case types.UntypedBool:
		return l.reg.Primitive("bool")
	case types.UntypedInt:
		return l.reg.Primitive("int")
	case types.UntypedRune:
		return l.reg.Primitive("int32")
	case types.UntypedFloat:
		return l.reg.Primitive("float64")
	}
	if id := l.reg.Primitive(b.Name()); id != Void {
		return id
	}
	return l.reg.Object()
}

// namedID resolves a named type, registering an opaque descriptor for types
// declared outside the loaded packages.
func (l *loader) namedID(tn *types.TypeName, named *types.Named) TypeID {
	if id, ok := l.named[tn]; ok {
		return id
	}
	kind := namedKind(named, false)
	switch kind {
	case KindInvalid:
		return l.typeOf(named.Underlying())
	case KindDelegate:
		return l.funcType(named.Underlying().(*types.Signature))
	}
	ns := ""
	if tn.Pkg() != nil {
		ns = tn.Pkg().Path()
	}
	if id, ok := l.reg.Lookup(ns + "." + tn.Name()); ok {
		l.named[tn] = id
		return id
	}
	id := l.reg.Define(&Type{Kind: kind, Namespace: ns, Name: tn.Name(), Abstract: kind == KindInterface})
	l.named[tn] = id
	return id
}

// funcType interns an unnamed function type as a synthetic delegate.
func (l *loader) funcType(sig *types.Signature) TypeID {
	key := types.TypeString(sig, nil)
	if id, ok := l.funcs[key]; ok {
		return id
	}
	t := &Type{Kind: KindDelegate, Name: key, Synthetic: true}
	id := l.reg.Define(t)
	l.funcs[key] = id
	t.Invoke = l.method("Invoke", sig)
	t.Invoke.Declaring = id
	return id
}

func namedKind(named *types.Named, enum bool) Kind {
	switch u := named.Underlying().(type) {
	case *types.Struct:
		if hasPointerMethods(named) {
			return KindClass
		}
		return KindStruct
	case *types.Interface:
		return KindInterface
	case *types.Signature:
		return KindDelegate
	case *types.Basic:
		if enum && u.Info()&(types.IsInteger|types.IsString) != 0 {
			return KindEnum
		}
	}
	return KindInvalid
}

func hasPointerMethods(named *types.Named) bool {
	for i := 0; i < named.NumMethods(); i++ {
		recv := named.Method(i).Type().(*types.Signature).Recv()
		if recv == nil {
			continue
		}
		if _, ok := recv.Type().(*types.Pointer); ok {
			return true
		}
	}
	return false
}

func isCloser(named *types.Named) bool {
	mset := types.NewMethodSet(types.NewPointer(named))
	sel := mset.Lookup(nil, "Close")
	if sel == nil {
		return false
	}
	sig := sel.Obj().Type().(*types.Signature)
	return sig.Params().Len() == 0 && sig.Results().Len() == 1 && isErrorType(sig.Results().At(0).Type())
}

func isErrorType(t types.Type) bool {
	named, ok := types.Unalias(t).(*types.Named)
	return ok && named.Obj().Pkg() == nil && named.Obj().Name() == "error"
}

func namedOf(t types.Type) *types.TypeName {
	t = types.Unalias(t)
	if p, ok := t.(*types.Pointer); ok {
		t = types.Unalias(p.Elem())
	}
	if named, ok := t.(*types.Named); ok {
		return named.Origin().Obj()
	}
	return nil
}

// enumTypes finds named basic types with at least one declared constant.
func enumTypes(scope *types.Scope) map[*types.TypeName]bool {
	enums := make(map[*types.TypeName]bool)
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if !ok {
			continue
		}
		if tn := namedOf(c.Type()); tn != nil && tn.Pkg() == scope.Lookup(name).Pkg() {
			enums[tn] = true
		}
	}
	return enums
}

// collectDirectives maps declared identifier positions to the markers found
// in their doc comments.
func collectDirectives(files []*ast.File) map[token.Pos]directives {
	dirs := make(map[token.Pos]directives)
	record := func(doc *ast.CommentGroup, idents ...*ast.Ident) {
		d, ok := parseDirectives(doc)
		if !ok {
			return
		}
		for _, id := range idents {
			dirs[id.Pos()] = d
		}
	}
	for _, file := range files {
		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.FuncDecl:
				record(decl.Doc, decl.Name)
			case *ast.GenDecl:
				for _, spec := range decl.Specs {
					switch spec := spec.(type) {
					case *ast.TypeSpec:
						doc := spec.Doc
						if doc == nil && len(decl.Specs) == 1 {
							doc = decl.Doc
						}
						record(doc, spec.Name)
						recordMembers(spec.Type, record)
					case *ast.ValueSpec:
						doc := spec.Doc
						if doc == nil && len(decl.Specs) == 1 {
							doc = decl.Doc
						}
						record(doc, spec.Names...)
					}
				}
			}
		}
	}
	return dirs
}

func recordMembers(expr ast.Expr, record func(*ast.CommentGroup, ...*ast.Ident)) {
	var list *ast.FieldList
	switch t := expr.(type) {
	case *ast.StructType:
		list = t.Fields
	case *ast.InterfaceType:
		list = t.Methods
	}
	if list == nil {
		return
	}
	for _, f := range list.List {
		record(f.Doc, f.Names...)
	}
}

func parseDirectives(doc *ast.CommentGroup) (directives, bool) {
	var d directives
	if doc == nil {
		return d, false
	}
	found := false
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, DirectivePrefix) {
			continue
		}
		found = true
		word, arg, _ := strings.Cut(strings.TrimPrefix(c.Text, DirectivePrefix), "=")
		switch strings.TrimSpace(word) {
		case "omit":
			d.markers |= Omit
		case "export":
			d.markers |= Export
		case "extension":
			d.ext = true
		case "hotfix":
			d.markers |= Hotfix
			d.hotfix = parseHotfix(arg)
		}
	}
	text := doc.Text()
	if strings.HasPrefix(text, "Deprecated:") || strings.Contains(text, "\nDeprecated:") {
		d.markers |= Deprecated
		found = true
	}
	return d, found
}

func parseHotfix(arg string) HotfixFlags {
	if arg == "" {
		return HotfixBefore | HotfixAfter
	}
	var f HotfixFlags
	for _, part := range strings.Split(arg, ",") {
		switch strings.TrimSpace(part) {
		case "before":
			f |= HotfixBefore
		case "after":
			f |= HotfixAfter
		}
	}
	return f
}

// toPascal converts a package name like "shapes" or "geo_util" to "Shapes"
// or "GeoUtil".
func toPascal(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
