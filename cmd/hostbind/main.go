// hostbind CLI - compiles Go package metadata into script binding plans
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/tools/go/packages"

	"github.com/chazu/hostbind/binding"
	"github.com/chazu/hostbind/config"
	"github.com/chazu/hostbind/typedesc"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors only, 2 = info, 3 = debug)")
	dir := flag.String("C", ".", "Directory to search for hostbind.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hostbind [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Loads Go packages, decides what is exposed to script and writes binding plans.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  generate    Discover types and write plans to the output directory\n")
		fmt.Fprintf(os.Stderr, "  list        Discover types and print the exported plans\n")
		fmt.Fprintf(os.Stderr, "  clean       Remove every file recorded in the generation store\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hostbind generate             # Use ./hostbind.toml (or a parent's)\n")
		fmt.Fprintf(os.Stderr, "  hostbind -C ./game -v 2 list  # Inspect the plans of another project\n")
		fmt.Fprintf(os.Stderr, "  hostbind list --skipped       # Also print skipped members and reasons\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", config.FileName, err)
		os.Exit(1)
	}
	if cfg == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found in %s or its parents\n", config.FileName, *dir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "generate":
		err = runGenerate(ctx, cfg, os.Stdout)
	case "list":
		err = runList(ctx, cfg, args, os.Stdout)
	case "clean":
		err = runClean(cfg, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// collect loads the configured packages and runs discovery.
func collect(ctx context.Context, cfg *config.Config) (*binding.Collector, error) {
	opts, err := cfg.CollectorOptions()
	if err != nil {
		return nil, err
	}

	reg := typedesc.NewRegistry()
	pcfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
		Dir:  cfg.Dir,
	}
	if err := typedesc.LoadPackagesWithConfig(reg, pcfg, cfg.Project.Packages...); err != nil {
		var le *typedesc.LoadErrors
		if !errors.As(err, &le) || le.Loaded == 0 {
			return nil, fmt.Errorf("load packages: %w", err)
		}
		for _, f := range le.Failed {
			fmt.Fprintf(os.Stderr, "Warning: skipping package %s\n", f)
		}
	}

	col := binding.NewCollector(reg, opts)
	if err := cfg.Apply(col); err != nil {
		return nil, err
	}
	if err := col.Discover(ctx); err != nil {
		return nil, err
	}
	return col, nil
}

func runGenerate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.Output.Format != "cbor" {
		return fmt.Errorf("unsupported output format %q", cfg.Output.Format)
	}
	var store *binding.Store
	if cfg.Output.Store != "" {
		path := cfg.Path(cfg.Output.Store)
		// Stale-file cleanup would delete a store kept in the output directory.
		if filepath.Dir(path) == cfg.OutputDir() {
			return fmt.Errorf("store %s must live outside the output directory", cfg.Output.Store)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		var err error
		if store, err = binding.OpenStore(path); err != nil {
			return err
		}
		defer store.Close()
	}

	col, err := collect(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		col.SetStore(store)
	}

	sum, err := col.Generate(ctx, cfg.OutputDir(), binding.NewPlanEmitter(col.Registry()))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", cfg.Project.Name, sum)
	for _, name := range sum.Failed {
		fmt.Fprintf(out, "  failed: %s\n", name)
	}
	for _, err := range col.Failures() {
		fmt.Fprintf(out, "  error: %v\n", err)
	}
	return nil
}

func runList(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	showSkipped := false
	for _, a := range args {
		switch a {
		case "--skipped", "-s":
			showSkipped = true
		default:
			return fmt.Errorf("list: unknown argument %q", a)
		}
	}

	col, err := collect(ctx, cfg)
	if err != nil {
		return err
	}
	for _, p := range col.Plans() {
		listPlan(out, p, showSkipped)
	}
	return nil
}

func listPlan(out io.Writer, p *binding.TypePlan, showSkipped bool) {
	mode := "bind"
	if !p.CodeGen() {
		mode = "ref"
	}
	fmt.Fprintf(out, "%-4s %s -> %s.%s (%s)\n", mode, p.Type.FullName(), p.Namespace, p.ScriptName, p.BindingName)
	fmt.Fprintf(out, "     %d methods, %d statics, %d properties, %d fields, %d events, %d operators\n",
		len(p.Methods), len(p.StaticMethods), len(p.Properties), len(p.Fields), len(p.Events), len(p.Operators))
	if showSkipped {
		for _, s := range p.Skipped {
			fmt.Fprintf(out, "     skipped %s: %s\n", s.Member, s.Reason)
		}
	}
}

func runClean(cfg *config.Config, out io.Writer) error {
	if cfg.Output.Store == "" {
		return fmt.Errorf("clean needs [output] store in %s", config.FileName)
	}
	store, err := binding.OpenStore(cfg.Path(cfg.Output.Store))
	if err != nil {
		return err
	}
	defer store.Close()

	paths, err := store.Paths()
	if err != nil {
		return err
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
		if err := store.Forget(p); err != nil {
			return err
		}
		removed++
	}
	fmt.Fprintf(out, "removed %d files\n", removed)
	return nil
}
