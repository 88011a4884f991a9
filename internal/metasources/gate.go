package metasources

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Process-wide per-(source, limit) gates. Sharing on the limit as well as
// the name means a config change mid-process gets a fresh gate instead of
// mutating one that goroutines may be waiting on.
var (
	sourceGatesMu sync.Mutex
	sourceGates   = make(map[sourceGateKey]*semaphore.Weighted)
)

type sourceGateKey struct {
	source string
	limit  int64
}

func globalSourceGate(source string, limit int64) *semaphore.Weighted {
	if limit <= 0 {
		return nil
	}
	key := sourceGateKey{source: strings.ToLower(strings.TrimSpace(source)), limit: limit}

	sourceGatesMu.Lock()
	defer sourceGatesMu.Unlock()

	gate := sourceGates[key]
	if gate == nil {
		gate = semaphore.NewWeighted(limit)
		sourceGates[key] = gate
	}
	return gate
}

// Gate bounds in-flight external calls. It combines a per-document limit
// with a per-source limit shared across all documents processed by this
// process, so concurrent runs cannot jointly exceed an upstream's rate
// allowance.
type Gate struct {
	document    *semaphore.Weighted
	sourceLimit int64
}

// NewGate creates a gate for one document run. documentLimit bounds the
// document's own total in-flight external calls; sourceLimit bounds each
// source's in-flight calls process-wide. A limit of 0 disables that bound.
func NewGate(documentLimit, sourceLimit int64) *Gate {
	g := &Gate{sourceLimit: sourceLimit}
	if documentLimit > 0 {
		g.document = semaphore.NewWeighted(documentLimit)
	}
	return g
}

// Acquire claims one slot for a call to the named source, blocking until
// both the document and source gates admit it or the context is cancelled.
// The returned release function must be called exactly once.
//
// The document gate is acquired before the source gate and released after
// it; keeping the order fixed on both paths avoids deadlock between
// concurrent documents.
func (g *Gate) Acquire(ctx context.Context, source string) (release func(), err error) {
	if g == nil {
		return func() {}, nil
	}

	if g.document != nil {
		if err := g.document.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	sourceGate := globalSourceGate(source, g.sourceLimit)
	if sourceGate != nil {
		if err := sourceGate.Acquire(ctx, 1); err != nil {
			if g.document != nil {
				g.document.Release(1)
			}
			return nil, err
		}
	}

	return func() {
		if sourceGate != nil {
			sourceGate.Release(1)
		}
		if g.document != nil {
			g.document.Release(1)
		}
	}, nil
}
