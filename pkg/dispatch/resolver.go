package dispatch

import (
	"context"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
	"github.com/joeydtaylor/steeze-pool/pkg/registry"
)

// Resolver answers resolve queries. Workers resolve through the controller
// over RPC; a single-process server resolves against its own registry.
type Resolver interface {
	Resolve(ctx context.Context, q library.Query) (library.Reply, error)
}

// Local resolves in process.
type Local struct{ Registry *registry.Registry }

func (l Local) Resolve(ctx context.Context, q library.Query) (library.Reply, error) {
	return l.Registry.Resolve(ctx, q), nil
}
