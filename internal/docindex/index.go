// Package docindex holds the documentation corpus: documented entities
// (types) with their documented methods and properties. An Index owns the
// current Snapshot and replaces it wholesale on every Load; readers always
// see either the previous snapshot or the next one, never a mix.
package docindex

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
)

type Index struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	version uint64
	loaded  atomic.Bool
	logger  *slog.Logger
}

// New returns an empty index. Queries against it see no entities until the
// first Load.
func New() *Index {
	idx := &Index{
		logger: slog.Default().With("component", "doc-index"),
	}
	idx.current.Store(emptySnapshot)
	return idx
}

// Load builds a snapshot from entities and swaps it in. On error the previous
// snapshot stays current.
func (x *Index) Load(entities []Entity) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	snap, err := BuildSnapshot(entities, x.version+1)
	if err != nil {
		x.logger.Warn("rejected documentation load", "error", err)
		return fmt.Errorf("loading documentation: %w", err)
	}
	x.version = snap.version
	x.current.Store(snap)
	x.loaded.Store(true)
	x.logger.Info("documentation loaded",
		"version", snap.version,
		"entities", snap.Len(),
		"members", snap.members,
		"trie_keys", snap.trie.Len(),
	)
	return nil
}

// Snapshot returns the current snapshot. It is never nil, even for a nil or
// zero Index.
func (x *Index) Snapshot() *Snapshot {
	if x == nil {
		return emptySnapshot
	}
	if snap := x.current.Load(); snap != nil {
		return snap
	}
	return emptySnapshot
}

// Loaded reports whether Load has succeeded at least once.
func (x *Index) Loaded() bool {
	return x != nil && x.loaded.Load()
}

func (x *Index) Lookup(id string) (Entity, bool) {
	return x.Snapshot().Lookup(id)
}

// Get is Lookup with an error for the not-found case.
func (x *Index) Get(id string) (Entity, error) {
	e, ok := x.Snapshot().Lookup(id)
	if !ok {
		return Entity{}, fmt.Errorf("%w: %q", apperrors.ErrEntityNotFound, id)
	}
	return e, nil
}

// AllEntities returns the entities of the last successful Load, in the order
// they were supplied.
func (x *Index) AllEntities() []Entity {
	return x.Snapshot().Entities()
}

func (x *Index) Suggest(prefix string, limit int) []string {
	return x.Snapshot().Suggest(prefix, limit)
}

func (x *Index) Stats() Stats {
	return x.Snapshot().Stats()
}
