package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// BuilderFunc returns (enabled, component, error). enabled=false skips registration.
type BuilderFunc func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error)

// Builder holds metadata.
type Builder struct {
	Name string      // final component name (inferred for auto builders)
	Fn   BuilderFunc // build function
	Auto bool        // name + build-time deps inferred from tags
	Deps []string    // build-time deps ordering builders

	prebuilt   core.Component
	preEnabled bool
}

var (
	buildersMu sync.Mutex
	builders   []*Builder
)

func findBuilder(list []*Builder, name string) *Builder {
	for _, b := range list {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func add(b *Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	if b.Name != "" && findBuilder(builders, b.Name) != nil {
		panic("registry: duplicate builder name " + b.Name)
	}
	builders = append(builders, b)
}

// Register registers a component builder with an explicit name.
func Register(name string, fn BuilderFunc) {
	RegisterWithDeps(name, nil, fn)
}

// RegisterWithDeps registers a named builder that must run after the builders of deps,
// so it can Resolve them from the container.
func RegisterWithDeps(name string, deps []string, fn BuilderFunc) {
	if name == "" {
		panic("registry: empty name in Register")
	}
	add(&Builder{Name: name, Fn: fn, Deps: append([]string(nil), deps...)})
}

// RegisterAuto registers a builder whose component name and build-time dependencies are inferred
// from the built component. Its Name() must be stable and non-empty.
func RegisterAuto(fn BuilderFunc) {
	add(&Builder{Auto: true, Fn: fn})
}

// BuildAndRegisterAll builds every registered builder in dependency order and registers
// the enabled components, then applies runtime dependency extensions.
func BuildAndRegisterAll(cfg *config.AppConfig, c *core.Container) error {
	buildersMu.Lock()
	// 每次构建使用副本, 推断出的名字和预构建组件不回写全局表
	list := make([]*Builder, len(builders))
	for i, b := range builders {
		cp := *b
		cp.Deps = append([]string(nil), b.Deps...)
		list[i] = &cp
	}
	buildersMu.Unlock()

	// auto builders: pre-build once to learn name and tag deps
	for _, b := range list {
		if !b.Auto || b.Name != "" {
			continue
		}
		enabled, comp, err := b.Fn(cfg, c)
		if err != nil {
			return fmt.Errorf("auto builder failed: %w", err)
		}
		b.preEnabled, b.prebuilt = enabled, comp
		if !enabled || comp == nil {
			continue
		}
		name := comp.Name()
		if name == "" {
			return fmt.Errorf("auto builder produced unnamed component")
		}
		if existing := findBuilder(list, name); existing != nil && existing != b {
			return fmt.Errorf("duplicate inferred name: %s", name)
		}
		b.Name = name
		for _, f := range core.DepFields(comp) {
			b.Deps = append(b.Deps, f.Name)
		}
	}

	ordered, err := topoSortBuilders(list)
	if err != nil {
		return err
	}
	for _, b := range ordered {
		enabled, comp := b.preEnabled, b.prebuilt
		if !b.Auto {
			enabled, comp, err = b.Fn(cfg, c)
			if err != nil {
				return fmt.Errorf("build %s failed: %w", b.Name, err)
			}
		}
		if !enabled || comp == nil {
			continue
		}
		if err := c.Register(b.Name, comp); err != nil {
			return fmt.Errorf("register %s failed: %w", b.Name, err)
		}
	}
	applyRuntimeDepExtensions(c)
	return nil
}

// topoSortBuilders orders named builders by Deps; unknown deps are ignored here
// and left to container validation.
func topoSortBuilders(list []*Builder) ([]*Builder, error) {
	byName := map[string]*Builder{}
	inDeg := map[string]int{}
	adj := map[string][]string{}
	for _, b := range list {
		if b.Name == "" {
			continue
		}
		byName[b.Name] = b
		inDeg[b.Name] = 0
	}
	for _, b := range list {
		if b.Name == "" {
			continue
		}
		for _, d := range b.Deps {
			if _, ok := byName[d]; !ok || d == b.Name {
				continue
			}
			adj[d] = append(adj[d], b.Name)
			inDeg[b.Name]++
		}
	}
	var ready []string
	for n, d := range inDeg {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	var ordered []*Builder
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[n])
		for _, next := range adj[n] {
			inDeg[next]--
			if inDeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(ordered) != len(byName) {
		var cyc []string
		for n, d := range inDeg {
			if d > 0 {
				cyc = append(cyc, n)
			}
		}
		sort.Strings(cyc)
		return nil, fmt.Errorf("registry: cyclic builder deps: %v", cyc)
	}
	return ordered, nil
}
