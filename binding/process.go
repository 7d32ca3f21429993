package binding

import (
	"fmt"
)

// Process receives callbacks at each stage of discovery and generation. Embed
// BaseProcess to implement only the stages of interest.
type Process interface {
	PreCollectModules(c *Collector)
	PostCollectModules(c *Collector)
	PreExporting(c *Collector)
	PostExporting(c *Collector)
	PreCollectTypes(c *Collector)
	PostCollectTypes(c *Collector)
	PreGenerateType(c *Collector, p *TypePlan)
	PostGenerateType(c *Collector, p *TypePlan)
	Cleanup(c *Collector)
}

// BaseProcess implements every Process stage as a no-op.
type BaseProcess struct{}

func (BaseProcess) PreCollectModules(*Collector)           {}
func (BaseProcess) PostCollectModules(*Collector)          {}
func (BaseProcess) PreExporting(*Collector)                {}
func (BaseProcess) PostExporting(*Collector)               {}
func (BaseProcess) PreCollectTypes(*Collector)             {}
func (BaseProcess) PostCollectTypes(*Collector)            {}
func (BaseProcess) PreGenerateType(*Collector, *TypePlan)  {}
func (BaseProcess) PostGenerateType(*Collector, *TypePlan) {}
func (BaseProcess) Cleanup(*Collector)                     {}

// runHooks calls fn for each registered process. A panicking hook is logged
// and does not stop the remaining hooks.
func (c *Collector) runHooks(stage string, fn func(Process)) {
	for _, p := range c.processes {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.errorf(fmt.Errorf("process %T %s: %v", p, stage, r))
				}
			}()
			fn(p)
		}()
	}
}
