package tracker

// Registry is the canonical mapping from run name to its Record for
// the audit period. Iteration follows insertion order, which is what
// the name reconciliation in pkg/match relies on. Records are created
// once and mutated in place; they are never deleted, so cancelled runs
// keep their terminal status for auditing.
type Registry struct {
	order   []string
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Add inserts a record under the given run name. Re-adding an existing
// name is a no-op so a duplicate project listing cannot reset a
// partially populated record.
func (g *Registry) Add(runName string, rec *Record) {
	if _, exists := g.records[runName]; exists {
		return
	}

	rec.RunName = runName
	g.records[runName] = rec
	g.order = append(g.order, runName)
}

// Get returns the record for the given run name.
func (g *Registry) Get(runName string) (*Record, bool) {
	rec, ok := g.records[runName]

	return rec, ok
}

// Keys returns the run names in insertion order.
func (g *Registry) Keys() []string {
	keys := make([]string, len(g.order))
	copy(keys, g.order)

	return keys
}

// Records returns all records in insertion order.
func (g *Registry) Records() []*Record {
	recs := make([]*Record, 0, len(g.order))
	for _, name := range g.order {
		recs = append(recs, g.records[name])
	}

	return recs
}

// Len returns the number of runs in the registry.
func (g *Registry) Len() int {
	return len(g.order)
}

// Rekey renames a run in place, preserving its position in iteration
// order. Used when the staging folder name is taken as authoritative
// over the name extracted from the compute project. A no-op when the
// names are equal, the old name is absent, or the new name is already
// taken.
func (g *Registry) Rekey(oldName, newName string) bool {
	if oldName == newName {
		return false
	}

	rec, ok := g.records[oldName]
	if !ok {
		return false
	}

	if _, taken := g.records[newName]; taken {
		return false
	}

	delete(g.records, oldName)
	rec.RunName = newName
	g.records[newName] = rec

	for i, name := range g.order {
		if name == oldName {
			g.order[i] = newName

			break
		}
	}

	return true
}
