package binding

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/hostbind/typedesc"
)

func discover(t *testing.T, reg *typedesc.Registry, opts Options) *Collector {
	t.Helper()
	c := NewCollector(reg, opts)
	if err := c.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return c
}

func skipped(p *TypePlan, member string) (string, bool) {
	for _, s := range p.Skipped {
		if s.Member == member {
			return s.Reason, true
		}
	}
	return "", false
}

func TestCollector_ExportTypeIdempotent(t *testing.T) {
	reg := typedesc.NewRegistry()
	player := reg.NewClass("game", "game", "Player")
	c := NewCollector(reg, DefaultOptions())

	p1 := c.ExportType(player.ID, false)
	p2 := c.ExportType(player.ID, true)
	if p1 == nil || p1 != p2 {
		t.Fatalf("ExportType returned %p then %p", p1, p2)
	}
	if n := len(c.Plans()); n != 1 {
		t.Errorf("Plans = %d, want 1", n)
	}
	if p1.BindingName != "hb_game_Player" {
		t.Errorf("BindingName = %q", p1.BindingName)
	}
}

func TestCollector_ImportBase(t *testing.T) {
	reg := typedesc.NewRegistry()
	entity := reg.NewClass("game", "game", "Entity")
	actor := reg.NewClass("game", "game", "Actor").SetBase(entity.ID)
	player := reg.NewClass("game", "game", "Player").SetBase(actor.ID)

	c := NewCollector(reg, DefaultOptions())
	c.ExportType(player.ID, false)
	if _, ok := c.Plan(actor.ID); ok {
		t.Error("base exported without ImportBase")
	}

	c = NewCollector(reg, DefaultOptions())
	p := c.ExportType(player.ID, true)
	for _, id := range []typedesc.TypeID{actor.ID, entity.ID} {
		if _, ok := c.Plan(id); !ok {
			t.Errorf("base %s not exported", reg.Type(id).FullName())
		}
	}
	if sp := c.SuperPlan(p); sp == nil || sp.Type != actor {
		t.Errorf("SuperPlan = %v", sp)
	}
}

func TestCollector_BasePropagationThroughExplicitGeneric(t *testing.T) {
	reg := typedesc.NewRegistry()
	list := reg.NewGeneric(typedesc.KindClass, "col", "col", "List", "T").Mark(typedesc.Export)
	list.AddMethod("Add", typedesc.Void, typedesc.P("item", list.Param(0)))
	inst, err := reg.Instantiate(list.ID, reg.StringType())
	if err != nil {
		t.Fatal(err)
	}
	names := reg.NewClass("app", "app", "Names").SetBase(inst)

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"app"}
	c := discover(t, reg, opts)

	if _, ok := c.Plan(names.ID); !ok {
		t.Fatal("Names not exported")
	}
	p, ok := c.Plan(inst)
	if !ok {
		t.Fatal("List[string] must be exported as the base of an exported type")
	}
	if _, ok := c.Plan(list.ID); ok {
		t.Error("open generic definitions are never planned")
	}
	add, ok := p.Method("Add")
	if !ok || len(add.Variants) != 1 {
		t.Fatalf("List[string].Add missing: %+v", p.Methods)
	}
	if got := add.Variants[0].Params[0].Strategy; got != StrategyString {
		t.Errorf("Add param strategy = %v, want string", got)
	}
	if p.ScriptName != "List_string" {
		t.Errorf("ScriptName = %q", p.ScriptName)
	}
}

func TestCollector_BlockingPolicy(t *testing.T) {
	reg := typedesc.NewRegistry()
	old := reg.NewClass("game", "game", "Legacy").Mark(typedesc.Deprecated)
	inner := reg.NestedClass(old, "Part")
	hidden := reg.NewClass("game", "game", "Hidden").Mark(typedesc.Omit)
	cb := reg.NewDelegate("game", "game", "Callback", typedesc.Void)
	internal := reg.NewClass("game", "game.internal", "Cache")
	editor := reg.NewClass("game", "game.editor", "Inspector")
	closure := reg.NewClass("game", "game", "func<1>")
	ok := reg.NewClass("game", "game", "Player")

	opts := DefaultOptions()
	opts.PrefixBlacklist = []string{"game.internal."}
	opts.Target = "server"
	opts.PlatformPrefixes = map[string][]string{
		"server": {"game.editor."},
		"client": {"game.server."},
	}
	c := NewCollector(reg, opts)

	tests := []struct {
		name   string
		id     typedesc.TypeID
		reason string
	}{
		{"deprecated", old.ID, "deprecated"},
		{"deprecated enclosing", inner.ID, "deprecated enclosing type game.Legacy"},
		{"omitted", hidden.ID, "omitted"},
		{"delegate", cb.ID, "delegate"},
		{"prefix", internal.ID, "prefix game.internal."},
		{"platform prefix", editor.ID, "prefix game.editor."},
		{"synthetic", closure.ID, "synthetic name"},
		{"pointer", reg.PointerTo(ok.ID), "pointer"},
		{"generic parameter", reg.NewGeneric(typedesc.KindClass, "game", "game", "Box", "T").Param(0), "generic parameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, reason := c.IsBlocked(tt.id)
			if !blocked || reason != tt.reason {
				t.Errorf("IsBlocked = %v, %q; want true, %q", blocked, reason, tt.reason)
			}
		})
	}
	if blocked, reason := c.IsBlocked(ok.ID); blocked {
		t.Errorf("Player blocked: %s", reason)
	}
}

// A type both blacklisted and explicitly marked for export stays blocked.
func TestCollector_BlacklistBeatsExport(t *testing.T) {
	reg := typedesc.NewRegistry()
	secret := reg.NewClass("game", "game", "Secret").Mark(typedesc.Export)
	open := reg.NewClass("game", "game", "Open").Mark(typedesc.Export)
	plain := reg.NewClass("game", "game", "Plain")

	opts := DefaultOptions()
	opts.Blacklist = []string{"game.Secret"}
	c := discover(t, reg, opts)

	if _, ok := c.Plan(secret.ID); ok {
		t.Error("blacklisted type exported")
	}
	if _, ok := c.Plan(open.ID); !ok {
		t.Error("explicit type in explicit module not exported")
	}
	if _, ok := c.Plan(plain.ID); ok {
		t.Error("unmarked type in explicit module exported")
	}
	if !c.IsExplicit(secret.ID) {
		t.Error("Secret is still explicitly marked")
	}

	if p := c.ExportType(secret.ID, true); p != nil {
		t.Error("direct ExportType of a blacklisted type returned a plan")
	}
	if _, ok := c.Plan(secret.ID); ok {
		t.Error("direct ExportType registered a blacklisted plan")
	}
}

func TestCollector_ModuleSets(t *testing.T) {
	reg := typedesc.NewRegistry()
	reg.NewClass("core", "core", "A")
	reg.NewClass("extra", "extra", "B")
	reg.NewClass("tools", "tools", "C")

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"core", "extra"}
	opts.BlockedModules = []string{"tools"}
	c := NewCollector(reg, opts)
	c.AddModules(false, "core") // already implicit
	c.RemoveModules("extra")
	if err := c.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	implicit, explicit := c.ModuleNames()
	if diff := cmp.Diff([]string{"core"}, implicit); diff != "" {
		t.Errorf("implicit (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"extra"}, explicit); diff != "" {
		t.Errorf("explicit (-want +got):\n%s", diff)
	}
	if _, ok := reg.Lookup("tools.C"); !ok {
		t.Fatal("tools.C missing from registry")
	}
	id, _ := reg.Lookup("tools.C")
	if _, ok := c.Plan(id); ok {
		t.Error("type from blocked module exported")
	}
	if err := c.AddKeywords("late"); err != ErrDiscoveryStarted {
		t.Errorf("AddKeywords after Discover = %v", err)
	}
	if err := c.Discover(context.Background()); err != ErrDiscoveryStarted {
		t.Errorf("second Discover = %v", err)
	}
}

func TestCollector_UnknownModuleIsRecorded(t *testing.T) {
	reg := typedesc.NewRegistry()
	reg.NewClass("core", "core", "A")
	opts := DefaultOptions()
	opts.ImplicitModules = []string{"missing", "core"}
	c := discover(t, reg, opts)

	if len(c.Failures()) != 1 {
		t.Fatalf("Failures = %v", c.Failures())
	}
	id, _ := reg.Lookup("core.A")
	if _, ok := c.Plan(id); !ok {
		t.Error("discovery must continue after a failing module")
	}
}

func TestCollector_BuiltinsExported(t *testing.T) {
	reg := typedesc.NewRegistry()
	c := discover(t, reg, DefaultOptions())

	for _, name := range []string{"int32", "string", "object"} {
		if _, ok := c.Plan(reg.Primitive(name)); !ok {
			t.Errorf("builtin %s not exported", name)
		}
	}
	if _, ok := c.Plan(reg.Primitive("uintptr")); ok {
		t.Error("uintptr is a pointer type")
	}
}

// Fields carrying the reserved hotfix prefix are never bound.
func TestCollector_ReservedFieldSkipped(t *testing.T) {
	reg := typedesc.NewRegistry()
	player := reg.NewClass("game", "game", "Player")
	player.AddField(ReservedFieldPrefix+"helper", reg.Object())
	player.AddField("Name", reg.StringType())

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"game"}
	c := discover(t, reg, opts)

	p, _ := c.Plan(player.ID)
	if reason, ok := skipped(p, "_JSFIX_helper"); !ok || reason != "special name" {
		t.Errorf("_JSFIX_helper skip = %q, %v", reason, ok)
	}
	if len(p.Fields) != 1 || p.Fields[0].Field.Name != "Name" {
		t.Errorf("Fields = %+v", p.Fields)
	}
}

func TestCollector_MemberExclusion(t *testing.T) {
	reg := typedesc.NewRegistry()
	i32 := reg.Primitive("int32")
	cb := reg.NewDelegate("game", "game", "OnHit", typedesc.Void, typedesc.P("damage", i32))
	player := reg.NewClass("game", "game", "Player")
	player.AddField("Raw", reg.PointerTo(i32))
	player.AddField("Secret", i32).Mark(typedesc.Omit)
	player.AddField("Old", i32).Mark(typedesc.Deprecated)
	player.AddField("Blocked", i32)
	player.AddField("Filtered", i32)
	player.AddField("OnHit", cb.ID)
	player.AddProperty("Health", i32, true, true)
	player.AddIndexer(reg.StringType(), i32, true, false)
	player.AddEvent("Died", cb.ID)
	player.AddMethod("Generic", typedesc.Void).Generic = true
	player.AddMethod("Peek", typedesc.Void, typedesc.P("p", reg.PointerTo(i32)))
	player.AddMethod("Hit", typedesc.Void, typedesc.P("damage", i32))
	player.AddMethod("Hit", typedesc.Void, typedesc.P("damage", i32), typedesc.P("crit", reg.Primitive("bool")))
	player.AddMethod("Yield", typedesc.Void)
	player.AddConstructor()
	player.AddConstructor(typedesc.P("hp", reg.ByRefOf(i32)))

	abstract := reg.NewClass("game", "game", "Base")
	abstract.Abstract = true
	abstract.AddConstructor()

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"game"}
	opts.Naming = NamingCamel
	c := NewCollector(reg, opts)
	c.Transform(player.ID).
		SetMemberBlocked("Blocked").
		FilterFields(func(f *typedesc.Field) bool { return f.Name == "Filtered" })
	if err := c.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	p, _ := c.Plan(player.ID)

	wantSkips := map[string]string{
		"Raw":      "pointer type",
		"Secret":   "omitted",
		"Old":      "deprecated",
		"Blocked":  "blocked",
		"Filtered": "filtered",
		"Generic":  "generic method",
		"Peek":     "pointer parameter",
	}
	for member, want := range wantSkips {
		if got, ok := skipped(p, member); !ok || got != want {
			t.Errorf("skip %s = %q, %v; want %q", member, got, ok, want)
		}
	}

	if len(p.Delegates) != 1 || p.Delegates[0].ScriptName != "onHit" {
		t.Errorf("Delegates = %+v", p.Delegates)
	}
	if len(p.Events) != 1 || p.Events[0].Signature != p.Delegates[0].Signature {
		t.Error("event and field of the same delegate type share a signature")
	}
	if len(p.Properties) != 1 || p.Properties[0].ScriptName != "health" {
		t.Errorf("Properties = %+v", p.Properties)
	}
	if _, ok := p.Method("get_Item"); !ok {
		t.Error("indexer getter bound as method")
	}
	hit, ok := p.Method("hit")
	if !ok || len(hit.Variants) != 2 {
		t.Fatalf("hit overloads = %+v", hit)
	}
	if _, ok := p.Method("yield_"); !ok {
		t.Error("keyword method names are escaped")
	}
	if n := len(p.Constructors.Variants); n != 1 {
		t.Errorf("constructors = %d, want 1 (by-ref skipped)", n)
	}

	ap, _ := c.Plan(abstract.ID)
	if len(ap.Constructors.Variants) != 0 {
		t.Error("abstract types get no constructors")
	}
}

func TestCollector_StaticsOfOpenGenericDropped(t *testing.T) {
	reg := typedesc.NewRegistry()
	box := reg.NewGeneric(typedesc.KindClass, "col", "col", "Box", "T")
	box.AddStaticMethod("Empty", box.ID)
	box.AddMethod("Get", box.Param(0))

	c := NewCollector(reg, DefaultOptions())
	p := newTypePlan(c, box, c.Transform(box.ID))
	c.plans[box.ID] = p
	p.collect()

	if reason, ok := skipped(p, "Empty"); !ok || reason != "static member of open generic definition" {
		t.Errorf("Empty skip = %q, %v", reason, ok)
	}
	if _, ok := p.Method("Get"); !ok {
		t.Error("instance members of the definition are still collected")
	}
	if p.CodeGen() {
		t.Error("open generic definitions do not generate code")
	}
}

// Mixed-operand operators get one binding name per operand type pair.
func TestCollector_Operators(t *testing.T) {
	reg := typedesc.NewRegistry()
	f32 := reg.Primitive("float32")
	vec := reg.NewStruct("math", "math", "Vec")
	vec.AddOperator("Multiply", vec.ID, typedesc.P("a", vec.ID), typedesc.P("b", vec.ID))
	vec.AddOperator("Multiply", vec.ID, typedesc.P("a", vec.ID), typedesc.P("s", f32))
	vec.AddOperator("Addition", vec.ID, typedesc.P("a", vec.ID), typedesc.P("b", vec.ID))
	vec.AddOperator("Addition", vec.ID, typedesc.P("a", vec.ID), typedesc.P("s", f32))
	vec.AddOperator("UnaryNegation", vec.ID, typedesc.P("a", vec.ID))

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"math"}
	c := discover(t, reg, opts)
	p, _ := c.Plan(vec.ID)

	var names []string
	for _, op := range p.Operators {
		names = append(names, op.BindingName)
	}
	want := []string{
		"op_Multiply_hb_math_Vec_hb_math_Vec",
		"op_Multiply_hb_math_Vec_hb_float32",
		"op_Addition",
		"op_UnaryNegation",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("operators (-want +got):\n%s", diff)
	}
	if op, _ := p.Operator("op_UnaryNegation"); op == nil || op.Symbol != "neg" || op.Arity != 1 {
		t.Errorf("negation = %+v", op)
	}
	// Addition with a scalar does not match the same-type rule.
	if b, ok := p.StaticMethod("op_Addition"); !ok || len(b.Variants) != 1 {
		t.Errorf("op_Addition fallback = %+v", b)
	}

	reg2 := typedesc.NewRegistry()
	v2 := reg2.NewStruct("math", "math", "Vec")
	v2.AddOperator("Addition", v2.ID, typedesc.P("a", v2.ID), typedesc.P("b", v2.ID))
	c2 := NewCollector(reg2, opts)
	c2.Transform(v2.ID).EnableOperatorOverloading(false)
	if err := c2.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	p2, _ := c2.Plan(v2.ID)
	if len(p2.Operators) != 0 {
		t.Error("operators bound with overloading disabled")
	}
	if _, ok := p2.StaticMethod("op_Addition"); !ok {
		t.Error("disabled operators bind as static methods")
	}
}

func TestCollector_ExtensionMethods(t *testing.T) {
	reg := typedesc.NewRegistry()
	i32 := reg.Primitive("int32")
	player := reg.NewClass("game", "game", "Player").Mark(typedesc.Export)
	helpers := reg.NewClass("game", "game", "Helpers")
	heal := helpers.AddStaticMethod("Heal", typedesc.Void, typedesc.P("p", player.ID), typedesc.P("hp", i32))
	heal.Extension = true
	orphan := reg.NewClass("game", "game", "Orphan")
	ext := reg.NewClass("util", "util", "Ext")
	grow := ext.AddStaticMethod("Grow", typedesc.Void, typedesc.P("o", orphan.ID))
	grow.Extension = true

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"util"}
	c := discover(t, reg, opts)

	p, _ := c.Plan(player.ID)
	b, ok := p.Method("Heal")
	if !ok || !b.Variants[0].Extension || b.Static {
		t.Fatalf("Heal on Player = %+v", b)
	}
	if _, ok := c.Plan(helpers.ID); ok {
		t.Error("unmarked Helpers exported")
	}

	ep, _ := c.Plan(ext.ID)
	if _, ok := ep.StaticMethod("Grow"); !ok {
		t.Error("extension of a non-exported receiver stays a static on its declaring type")
	}
}

func TestCollector_TransformCustomization(t *testing.T) {
	reg := typedesc.NewRegistry()
	i32 := reg.Primitive("int32")
	str := reg.StringType()
	file := reg.NewClass("io", "io", "File")
	file.Closer = true
	file.AddMethod("Read", reg.Bytes(), typedesc.P("n", i32))
	file.AddMethod("Name", str)
	file.AddMethod("Name", str, typedesc.P("full", reg.Primitive("bool")))
	file.AddConstructor(typedesc.P("path", str))
	file.AddConstructor()

	opts := DefaultOptions()
	opts.ImplicitModules = []string{"io"}
	c := NewCollector(reg, opts)
	c.Transform(file.ID).
		Rename("FileHandle").
		RenameMethod("readBytes", "Read", i32).
		SetMethodBlocked("Name", reg.Primitive("bool")).
		SetMethodReturnPusher("push_file_name", "Name").
		SetConstructorBlocked().
		EditorOnly().
		AddRequiredCapabilities("FS", EditorCapability)
	if err := c.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	p, _ := c.Plan(file.ID)

	if p.ScriptName != "FileHandle" {
		t.Errorf("ScriptName = %q", p.ScriptName)
	}
	read, ok := p.Method("readBytes")
	if !ok || read.HostName != "Read" {
		t.Fatalf("readBytes = %+v", read)
	}
	if got := read.Variants[0].Return.Strategy; got != StrategyBuffer {
		t.Errorf("Read return = %v", got)
	}
	name, _ := p.Method("Name")
	if len(name.Variants) != 1 || name.Variants[0].ReturnPusher != "push_file_name" {
		t.Errorf("Name = %+v", name.Variants)
	}
	if n := len(p.Constructors.Variants); n != 1 {
		t.Errorf("constructors = %d, want 1", n)
	}
	if !p.Disposable() || !p.Constructors.Disposable {
		t.Error("closers are disposable")
	}
	if !p.EditorOnly() {
		t.Error("EditorOnly not applied")
	}
	if diff := cmp.Diff([]string{EditorCapability, "FS"}, p.Capabilities()); diff != "" {
		t.Errorf("capabilities (-want +got):\n%s", diff)
	}
}

type recordingProcess struct {
	BaseProcess
	stages []string
}

func (r *recordingProcess) PreCollectModules(*Collector) { r.stages = append(r.stages, "pre-modules") }
func (r *recordingProcess) PostExporting(*Collector)     { r.stages = append(r.stages, "post-exporting") }
func (r *recordingProcess) PreCollectTypes(*Collector)   { panic("boom") }
func (r *recordingProcess) PostCollectTypes(*Collector)  { r.stages = append(r.stages, "post-types") }

func TestCollector_ProcessHooks(t *testing.T) {
	reg := typedesc.NewRegistry()
	c := NewCollector(reg, DefaultOptions())
	rec := &recordingProcess{}
	c.AddProcess(rec)
	if err := c.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pre-modules", "post-exporting", "post-types"}, rec.stages); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}
	if len(c.Failures()) != 1 {
		t.Errorf("panicking hook not recorded: %v", c.Failures())
	}
}

func TestCollector_HotfixDelegates(t *testing.T) {
	reg := typedesc.NewRegistry()
	i32 := reg.Primitive("int32")
	canvas := reg.NewClass("gfx", "gfx", "Canvas").Mark(typedesc.Hotfix)
	canvas.Hotfix = typedesc.HotfixBefore | typedesc.HotfixAfter
	canvas.AddMethod("Draw", typedesc.Void, typedesc.P("n", i32))
	canvas.AddMethod("Title", reg.StringType())
	canvas.AddMethod("Sum", i32, typedesc.Param{Name: "xs", Type: reg.ArrayOf(i32), Variadic: true})
	canvas.AddConstructor()
	reg.NewStruct("gfx", "gfx", "Point").Mark(typedesc.Hotfix).AddMethod("Len", i32)

	c := discover(t, reg, DefaultOptions())
	hs := c.HotfixDelegates()
	if len(hs) != 3 {
		t.Fatalf("HotfixDelegates = %d, want 3: %+v", len(hs), hs)
	}
	for _, h := range hs {
		if h.Declaring != canvas.ID {
			t.Errorf("delegate %+v not declared on Canvas", h)
		}
	}
	if flags, set := c.Transform(canvas.ID).Hotfix(); !set || flags != canvas.Hotfix {
		t.Errorf("transform hotfix = %v, %v", flags, set)
	}
}
