package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/hostbind/typedesc"
)

var log = commonlog.GetLogger("hostbind.binding")

var (
	// ErrDiscoveryStarted is returned by configuration calls made after Discover.
	ErrDiscoveryStarted = errors.New("binding: discovery already started")
	// ErrUnknownModule reports a configured module missing from the registry.
	ErrUnknownModule = errors.New("binding: unknown module")
	// ErrUnknownType reports a type name missing from the registry.
	ErrUnknownType = errors.New("binding: unknown type")
)

// Options configure a Collector.
type Options struct {
	ImplicitModules []string
	ExplicitModules []string
	BlockedModules  []string

	// Blacklist and Whitelist hold type full names.
	Blacklist       []string
	Whitelist       []string
	PrefixBlacklist []string

	// Target selects which PlatformPrefixes apply.
	Target           string
	PlatformPrefixes map[string][]string

	OperatorOverloading bool
	BindingPrefix       string
	Naming              NamingStyle
	Keywords            []string

	// LogPath, when set, receives the text log after generation.
	LogPath string
}

// DefaultOptions returns options with operator overloading enabled and the
// default binding prefix.
func DefaultOptions() Options {
	return Options{
		OperatorOverloading: true,
		BindingPrefix:       DefaultBindingPrefix,
		Naming:              NamingPreserve,
	}
}

// Collector discovers the exported type universe of a registry and builds a
// TypePlan for each exported type. It is single-goroutine.
type Collector struct {
	RunID uuid.UUID

	reg        *typedesc.Registry
	opts       Options
	classifier *Classifier
	delegates  *DelegateRegistry
	hotfix     *HotfixTable
	text       *TextLog
	manifest   *Manifest
	store      *Store

	transforms map[typedesc.TypeID]*TypeTransform
	plans      map[typedesc.TypeID]*TypePlan
	order      []*TypePlan

	implicit       []string
	explicit       []string
	blockedModules map[string]bool
	blacklist      map[typedesc.TypeID]bool
	whitelist      map[typedesc.TypeID]bool
	blacklistNames map[string]bool
	whitelistNames map[string]bool
	prefixes       []string
	keywords       map[string]bool
	hotfixTypes    []typedesc.TypeID
	processes      []Process
	failures       []error

	started time.Time
	frozen  bool
}

// NewCollector returns a collector over reg.
func NewCollector(reg *typedesc.Registry, opts Options) *Collector {
	if opts.BindingPrefix == "" {
		opts.BindingPrefix = DefaultBindingPrefix
	}
	cls := NewClassifier(reg)
	c := &Collector{
		RunID:          uuid.New(),
		reg:            reg,
		opts:           opts,
		classifier:     cls,
		delegates:      NewDelegateRegistry(reg, cls),
		text:           NewTextLog("  "),
		manifest:       NewManifest(),
		transforms:     make(map[typedesc.TypeID]*TypeTransform),
		plans:          make(map[typedesc.TypeID]*TypePlan),
		blockedModules: make(map[string]bool),
		blacklist:      make(map[typedesc.TypeID]bool),
		whitelist:      make(map[typedesc.TypeID]bool),
		blacklistNames: make(map[string]bool),
		whitelistNames: make(map[string]bool),
		keywords:       make(map[string]bool),
		started:        time.Now(),
	}
	c.hotfix = newHotfixTable(c)
	c.AddModules(false, opts.ExplicitModules...)
	c.AddModules(true, opts.ImplicitModules...)
	c.BlockModules(opts.BlockedModules...)
	for _, n := range opts.Blacklist {
		c.blacklistNames[n] = true
	}
	for _, n := range opts.Whitelist {
		c.whitelistNames[n] = true
	}
	c.prefixes = append(c.prefixes, opts.PrefixBlacklist...)
	c.prefixes = append(c.prefixes, opts.PlatformPrefixes[opts.Target]...)
	for _, k := range defaultKeywords {
		c.keywords[k] = true
	}
	for _, k := range opts.Keywords {
		c.keywords[k] = true
	}
	c.text.AppendLine("run %s started %s", c.RunID, c.started.Format(time.RFC3339))
	return c
}

// Registry returns the type registry.
func (c *Collector) Registry() *typedesc.Registry { return c.reg }

// Options returns the collector options.
func (c *Collector) Options() Options { return c.opts }

// Classifier returns the marshalling classifier.
func (c *Collector) Classifier() *Classifier { return c.classifier }

// Delegates returns the delegate registry.
func (c *Collector) Delegates() *DelegateRegistry { return c.delegates }

// HotfixDelegates returns the deduplicated hotfix delegate table.
func (c *Collector) HotfixDelegates() []*HotfixDelegate { return c.hotfix.Delegates() }

// Log returns the text log.
func (c *Collector) Log() *TextLog { return c.text }

// Failures returns the module and type failures recovered during discovery.
func (c *Collector) Failures() []error { return append([]error(nil), c.failures...) }

// SetStore attaches a generation store used to skip rewriting unchanged files.
func (c *Collector) SetStore(s *Store) { c.store = s }

func (c *Collector) infof(format string, args ...any) {
	log.Infof(format, args...)
	c.text.AppendLine(format, args...)
}

func (c *Collector) errorf(err error) {
	log.Errorf("%s", err)
	c.text.AppendLine("error: %s", err)
	c.failures = append(c.failures, err)
}

// AddModules declares modules as implicit (export everything not blocked) or
// explicit (export only marked or whitelisted types). A module already
// declared keeps its first set.
func (c *Collector) AddModules(implicit bool, names ...string) {
	for _, n := range names {
		if contains(c.implicit, n) || contains(c.explicit, n) {
			continue
		}
		if implicit {
			c.implicit = append(c.implicit, n)
		} else {
			c.explicit = append(c.explicit, n)
		}
	}
}

// RemoveModules drops modules from both sets.
func (c *Collector) RemoveModules(names ...string) {
	for _, n := range names {
		c.implicit = remove(c.implicit, n)
		c.explicit = remove(c.explicit, n)
	}
}

// BlockModules excludes modules from discovery.
func (c *Collector) BlockModules(names ...string) {
	for _, n := range names {
		c.blockedModules[n] = true
	}
}

// Blacklist blocks types from export.
func (c *Collector) Blacklist(ids ...typedesc.TypeID) {
	for _, id := range ids {
		c.blacklist[id] = true
	}
}

// Whitelist requests export of types from explicit modules.
func (c *Collector) Whitelist(ids ...typedesc.TypeID) {
	for _, id := range ids {
		c.whitelist[id] = true
	}
}

// AddPrefixBlacklist blocks every type whose full name starts with a prefix.
func (c *Collector) AddPrefixBlacklist(prefixes ...string) {
	c.prefixes = append(c.prefixes, prefixes...)
}

// AddKeywords extends the reserved word set. It must be called before Discover.
func (c *Collector) AddKeywords(words ...string) error {
	if c.frozen {
		return ErrDiscoveryStarted
	}
	for _, w := range words {
		c.keywords[w] = true
	}
	return nil
}

// AddProcess registers binding process hooks.
func (c *Collector) AddProcess(p Process) {
	c.processes = append(c.processes, p)
}

// Transform returns the customization registry of id, creating it on first use.
func (c *Collector) Transform(id typedesc.TypeID) *TypeTransform {
	tt, ok := c.transforms[id]
	if !ok {
		tt = newTypeTransform(c.reg, id)
		c.transforms[id] = tt
	}
	return tt
}

// TransformByName is Transform for a type full name.
func (c *Collector) TransformByName(fullName string) (*TypeTransform, error) {
	id, ok := c.reg.Lookup(fullName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, fullName)
	}
	return c.Transform(id), nil
}

// Plan returns the plan of an exported type.
func (c *Collector) Plan(id typedesc.TypeID) (*TypePlan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Plans returns every exported plan in export order.
func (c *Collector) Plans() []*TypePlan {
	return append([]*TypePlan(nil), c.order...)
}

// SuperPlan returns the nearest exported ancestor of p, or nil.
func (c *Collector) SuperPlan(p *TypePlan) *TypePlan {
	for base := c.reg.Type(p.Type.Base); base != nil; base = c.reg.Type(base.Base) {
		if sp, ok := c.plans[base.ID]; ok {
			return sp
		}
	}
	return nil
}

// IsBlocked applies the blocking policy to id and reports the first matching reason.
func (c *Collector) IsBlocked(id typedesc.TypeID) (bool, string) {
	t := c.reg.Type(id)
	if t == nil {
		return true, "unknown type"
	}
	full := t.FullName()
	switch {
	case c.blacklist[id] || c.blacklistNames[full]:
		return true, "blacklisted"
	case t.IsGenericDefinition():
		return true, "open generic definition"
	case t.Kind == typedesc.KindGenericParam:
		return true, "generic parameter"
	case t.Synthetic || strings.ContainsAny(t.Name, "<("):
		return true, "synthetic name"
	case t.Kind == typedesc.KindDelegate:
		return true, "delegate"
	case t.Kind == typedesc.KindPointer || t.Kind == typedesc.KindByRef:
		return true, "pointer"
	case t.Markers.Has(typedesc.Omit):
		return true, "omitted"
	}
	if t.Markers.Has(typedesc.Deprecated) {
		return true, "deprecated"
	}
	for _, outer := range c.reg.Outers(id) {
		if outer.Markers.Has(typedesc.Deprecated) {
			return true, "deprecated enclosing type " + outer.FullName()
		}
	}
	for _, prefix := range c.prefixes {
		if prefix != "" && strings.HasPrefix(full, prefix) {
			return true, "prefix " + prefix
		}
	}
	return false, ""
}

// IsExplicit reports whether id was whitelisted or marked for export.
func (c *Collector) IsExplicit(id typedesc.TypeID) bool {
	t := c.reg.Type(id)
	if t == nil {
		return false
	}
	return c.whitelist[id] || c.whitelistNames[t.FullName()] || t.Markers.Has(typedesc.Export)
}

// ExportType creates the plan of id once and returns it. Exporting an open
// generic definition whitelists it instead, so that instantiations seen as
// base types are exported. With importBase, non-generic base types are
// exported recursively. Blacklisted types are never exported.
func (c *Collector) ExportType(id typedesc.TypeID, importBase bool) *TypePlan {
	t := c.reg.Type(id)
	if t == nil {
		return nil
	}
	if c.blacklist[id] || c.blacklistNames[t.FullName()] {
		c.infof("refuse to export blacklisted type %s", t.FullName())
		return nil
	}
	if t.IsGenericDefinition() {
		c.whitelist[id] = true
		return nil
	}
	if p, ok := c.plans[id]; ok {
		return p
	}
	tt := c.Transform(id)
	p := newTypePlan(c, t, tt)
	p.BindingName = c.opts.BindingPrefix + Sanitize(t.FullName())
	p.ScriptName = c.typeScriptName(t, tt)
	p.Namespace = t.Namespace
	c.plans[id] = p
	c.order = append(c.order, p)
	c.text.AppendLine("export type %s", t.FullName())

	base := c.reg.Type(t.Base)
	if base == nil {
		return p
	}
	if blocked, _ := c.IsBlocked(base.ID); blocked {
		return p
	}
	if base.IsConstructedGeneric() {
		if c.IsExplicit(base.GenericDef) {
			c.ExportType(base.ID, false)
		}
	} else if importBase {
		c.ExportType(base.ID, true)
	}
	return p
}

// Discover exports the configured modules and collects the members of every
// exported type. Failures in one module or type are logged and recorded in
// Failures; discovery continues. It returns an error only when ctx is done or
// Discover was already called.
func (c *Collector) Discover(ctx context.Context) error {
	if c.frozen {
		return ErrDiscoveryStarted
	}
	c.frozen = true

	c.runHooks("pre-collect-modules", func(p Process) { p.PreCollectModules(c) })
	for _, m := range c.reg.Modules() {
		if !c.blockedModules[m.Name] {
			c.AddModules(false, m.Name)
		}
	}
	c.runHooks("post-collect-modules", func(p Process) { p.PostCollectModules(c) })

	c.runHooks("pre-exporting", func(p Process) { p.PreExporting(c) })
	for _, set := range []struct {
		names    []string
		implicit bool
	}{{c.explicit, false}, {c.implicit, true}} {
		for _, name := range set.names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if c.blockedModules[name] {
				c.text.AppendLine("module %s blocked", name)
				continue
			}
			if err := c.exportModule(name, set.implicit); err != nil {
				c.errorf(err)
			}
		}
	}
	c.exportBuiltins()
	c.runHooks("post-exporting", func(p Process) { p.PostExporting(c) })

	c.text.AppendLine("collecting members")
	c.text.AddTabLevel()
	c.runHooks("pre-collect-types", func(p Process) { p.PreCollectTypes(c) })
	for _, id := range c.hotfixTypes {
		c.hotfix.collect(id)
	}
	for _, p := range c.Plans() {
		if err := ctx.Err(); err != nil {
			c.text.DecTabLevel()
			return err
		}
		c.collectType(p.Type.ID)
	}
	c.runHooks("post-collect-types", func(p Process) { p.PostCollectTypes(c) })
	c.text.DecTabLevel()
	c.dropFailed()
	return nil
}

func (c *Collector) exportModule(name string, implicit bool) (err error) {
	c.text.AppendLine("module %s", name)
	c.text.AddTabLevel()
	defer c.text.DecTabLevel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exporting module %s: %v", name, r)
		}
	}()

	m := c.reg.Module(name)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	c.text.AppendLine("types %d", len(m.Types))
	for _, id := range m.Types {
		t := c.reg.Type(id)
		if t.Markers.Has(typedesc.Hotfix) {
			tt := c.Transform(id)
			if _, set := tt.Hotfix(); !set {
				tt.SetHotfix(t.Hotfix)
			}
			c.addHotfixType(id)
		}
		if blocked, reason := c.IsBlocked(id); blocked {
			c.text.AppendLine("blocked %s: %s", t.FullName(), reason)
			continue
		}
		if implicit || c.IsExplicit(id) {
			c.ExportType(id, false)
			continue
		}
		c.exportExtensions(t)
		c.text.AppendLine("skip %s", t.FullName())
	}
	return nil
}

// exportExtensions hands the extension methods of a non-exported type to
// their receivers' transforms.
func (c *Collector) exportExtensions(t *typedesc.Type) {
	for _, m := range t.Methods {
		if m.Extension && len(m.Params) > 0 {
			c.Transform(m.Params[0].Type).AddExtensionMethod(m)
		}
	}
}

func (c *Collector) exportBuiltins() {
	for _, id := range c.reg.Builtins() {
		if blocked, _ := c.IsBlocked(id); blocked {
			continue
		}
		c.ExportType(id, false)
	}
}

func (c *Collector) addHotfixType(id typedesc.TypeID) {
	if !containsID(c.hotfixTypes, id) {
		c.hotfixTypes = append(c.hotfixTypes, id)
	}
}

// collectType collects enclosing types first so outer plans precede inner ones.
func (c *Collector) collectType(id typedesc.TypeID) {
	t := c.reg.Type(id)
	if t == nil {
		return
	}
	c.collectType(t.Declaring)
	p, ok := c.plans[id]
	if !ok || p.collected {
		return
	}
	c.text.AppendLine("type %s", t.FullName())
	c.text.AddTabLevel()
	defer c.text.DecTabLevel()
	defer func() {
		if r := recover(); r != nil {
			p.failed = true
			c.errorf(fmt.Errorf("collecting %s: %v", t.FullName(), r))
		}
	}()
	p.ScriptName = c.typeScriptName(t, p.Transform)
	p.collect()
}

func (c *Collector) dropFailed() {
	kept := c.order[:0]
	for _, p := range c.order {
		if p.failed {
			delete(c.plans, p.Type.ID)
			continue
		}
		kept = append(kept, p)
	}
	c.order = kept
}

// ModuleNames returns the implicit and explicit module sets, sorted.
func (c *Collector) ModuleNames() (implicit, explicit []string) {
	implicit = append([]string(nil), c.implicit...)
	explicit = append([]string(nil), c.explicit...)
	sort.Strings(implicit)
	sort.Strings(explicit)
	return implicit, explicit
}

func (c *Collector) isPointer(id typedesc.TypeID) bool {
	t := c.reg.Type(id)
	for t != nil {
		switch t.Kind {
		case typedesc.KindPointer:
			return true
		case typedesc.KindByRef, typedesc.KindArray, typedesc.KindNullable:
			t = c.reg.Type(t.Elem)
			continue
		}
		return false
	}
	return false
}

func (c *Collector) isDelegate(id typedesc.TypeID) bool {
	t := c.reg.Type(id)
	return t != nil && t.Kind == typedesc.KindDelegate
}

func (c *Collector) containsPointer(m *typedesc.Method) bool {
	if c.isPointer(m.Return) {
		return true
	}
	for _, p := range m.Params {
		if c.isPointer(p.Type) {
			return true
		}
	}
	return false
}

func (c *Collector) containsByRef(m *typedesc.Method) bool {
	for _, p := range m.Params {
		if p.Out {
			return true
		}
		if t := c.reg.Type(p.Type); t != nil && t.Kind == typedesc.KindByRef {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []typedesc.TypeID, id typedesc.TypeID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
