package nbembed

import (
	"context"
)

// Resolver resolves module identifiers to loaded modules. It is the injected
// module-resolution primitive: everything that loads modules goes through one,
// and a Renderer without a configured Resolver fails every load immediately
// with ErrNoResolver.
//
// Resolve takes one or more identifiers and resolves all of them, preserving
// order. A failed identifier is reported via *ModuleLoadError carrying the
// identifier when it is known.
type Resolver interface {
	Resolve(ctx context.Context, ids ...string) ([]Module, error)
}

// RegistryResolver resolves modules against a Registry.
type RegistryResolver struct {
	Registry *Registry
}

// NewRegistryResolver creates a Resolver backed by reg.
func NewRegistryResolver(reg *Registry) *RegistryResolver {
	return &RegistryResolver{Registry: reg}
}

// Resolve looks up every identifier in the registry. The first missing
// identifier aborts resolution with a *ModuleLoadError naming it.
func (r *RegistryResolver) Resolve(ctx context.Context, ids ...string) ([]Module, error) {
	if r.Registry == nil {
		return nil, ErrNoResolver
	}

	modules := make([]Module, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id == "" {
			return nil, &ModuleLoadError{ID: id}
		}
		m, ok := r.Registry.Lookup(id)
		if !ok {
			return nil, &ModuleLoadError{ID: id}
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ids ...string) ([]Module, error)

func (f ResolverFunc) Resolve(ctx context.Context, ids ...string) ([]Module, error) {
	return f(ctx, ids...)
}
