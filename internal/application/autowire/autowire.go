// Package autowire injects container components into exported struct fields tagged
// `infra:"dep:<component_name>"` (or `dep:<name>?` for optional ones). Every injected
// name is also appended to the target's runtime dependencies so start order follows.
package autowire

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

type runtimeDepAdder interface {
	AddDependencies(...string)
}

// InjectAll scans all registered components in the container and injects tagged dependencies.
func InjectAll(c *core.Container) error {
	registered := c.ListRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		if err := Inject(c, registered[name]); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("autowire errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Inject performs injection for a single component.
func Inject(c *core.Container, comp core.Component) error {
	fields := core.DepFields(comp)
	if len(fields) == 0 {
		return nil
	}
	val := reflect.ValueOf(comp).Elem()
	adder, _ := comp.(runtimeDepAdder)

	for _, f := range fields {
		resolved, err := c.Resolve(f.Name)
		if err != nil {
			if f.Optional {
				continue
			}
			return fmt.Errorf("resolve %s failed: %w", f.Name, err)
		}
		fv := val.Field(f.Index)
		if !fv.CanSet() {
			return fmt.Errorf("field %s not settable", f.Field.Name)
		}
		if err := assignValue(fv, resolved); err != nil {
			return fmt.Errorf("assign %s -> field %s failed: %w", f.Name, f.Field.Name, err)
		}
		if adder != nil {
			adder.AddDependencies(f.Name)
		}
	}
	return nil
}

func assignValue(dst reflect.Value, src any) error {
	sv := reflect.ValueOf(src)
	switch {
	case dst.Kind() == reflect.Interface && sv.Type().Implements(dst.Type()):
		dst.Set(sv)
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	default:
		return fmt.Errorf("incompatible types: %s -> %s", sv.Type(), dst.Type())
	}
	return nil
}
