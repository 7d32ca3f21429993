package binding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Emitter renders binding plans. Each call writes one output file.
type Emitter interface {
	// Ext is the output file extension, including the dot.
	Ext() string
	EmitType(w io.Writer, p *TypePlan) error
	EmitDelegates(w io.Writer, sigs []*DelegateSignature, hotfix []*HotfixDelegate) error
	EmitBindingList(w io.Writer, plans []*TypePlan) error
}

const (
	delegatesFile = "_delegates"
	bindingsFile  = "_bindings"
)

// Summary reports the outcome of a generation run.
type Summary struct {
	RunID           uuid.UUID
	Types           int
	Failed          []string
	Delegates       int
	HotfixDelegates int
	Written         []string
	Unchanged       []string
	Removed         []string
	Elapsed         time.Duration
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d types (%d failed), %d delegates, %d hotfix delegates, %d written, %d unchanged, %d removed in %s",
		s.Types, len(s.Failed), s.Delegates, s.HotfixDelegates,
		len(s.Written), len(s.Unchanged), len(s.Removed), s.Elapsed.Round(time.Millisecond))
}

// Generate emits every code-generating plan into outDir, followed by the
// delegate table and the binding list, then removes stale files. A type whose
// emission fails or panics is logged, listed in Summary.Failed and left out of
// the binding list.
func (c *Collector) Generate(ctx context.Context, outDir string, em Emitter) (*Summary, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	sum := &Summary{RunID: c.RunID}
	c.text.AppendLine("generating into %s", outDir)
	c.text.AddTabLevel()

	var emitted []*TypePlan
	for _, p := range c.Plans() {
		if err := ctx.Err(); err != nil {
			c.text.DecTabLevel()
			return sum, err
		}
		if !p.CodeGen() {
			continue
		}
		c.runHooks("pre-generate-type", func(proc Process) { proc.PreGenerateType(c, p) })
		file := FileName(c.reg, p.ID()) + em.Ext()
		if err := c.emitFile(outDir, file, sum, func(w io.Writer) error { return em.EmitType(w, p) }); err != nil {
			c.errorf(fmt.Errorf("generating %s: %w", p.Type.FullName(), err))
			sum.Failed = append(sum.Failed, p.Type.FullName())
			continue
		}
		c.runHooks("post-generate-type", func(proc Process) { proc.PostGenerateType(c, p) })
		emitted = append(emitted, p)
	}
	c.text.DecTabLevel()
	sum.Types = len(emitted)

	sigs := c.delegates.Signatures()
	hotfix := c.hotfix.Delegates()
	sum.Delegates = len(sigs)
	sum.HotfixDelegates = len(hotfix)
	if err := c.emitFile(outDir, delegatesFile+em.Ext(), sum, func(w io.Writer) error {
		return em.EmitDelegates(w, sigs, hotfix)
	}); err != nil {
		return sum, fmt.Errorf("generating delegates: %w", err)
	}
	if err := c.emitFile(outDir, bindingsFile+em.Ext(), sum, func(w io.Writer) error {
		return em.EmitBindingList(w, emitted)
	}); err != nil {
		return sum, fmt.Errorf("generating binding list: %w", err)
	}

	removed, err := c.Cleanup()
	sum.Removed = removed
	sum.Elapsed = time.Since(c.started)
	c.text.AppendLine("%s", sum)
	if c.opts.LogPath != "" {
		if werr := c.text.WriteFile(c.opts.LogPath); werr != nil {
			log.Warningf("writing log: %s", werr)
		}
	}
	return sum, err
}

// emitFile renders one file into memory and writes it unless the generation
// store shows identical content already on disk. The file is recorded in the
// manifest either way.
func (c *Collector) emitFile(dir, file string, sum *Summary, render func(io.Writer) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	path := filepath.Join(dir, file)
	hash := HashContent(buf.Bytes())
	c.manifest.Add(dir, file)

	if c.store != nil && c.store.Unchanged(path, hash) {
		if _, serr := os.Stat(path); serr == nil {
			sum.Unchanged = append(sum.Unchanged, path)
			return nil
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	sum.Written = append(sum.Written, path)
	c.text.AppendLine("write %s", path)
	if c.store != nil {
		if err := c.store.Record(path, hash, c.RunID.String()); err != nil {
			log.Warningf("%s", err)
		}
	}
	return nil
}
