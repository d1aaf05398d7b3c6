package kernel

// Registry is a simple name->function map, the entire plugin seam: adding
// a stage is adding an entry, reordering is editing an order list. Missing
// entries are silently skipped by the composer, enabling partial
// deployments (spec.md §4.4, §9).
type Registry map[string]StageFn

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() Registry {
	return make(Registry)
}

// Register binds name to fn, overwriting any prior binding. Callers
// register both a canonical stage name and any short aliases, mirroring
// the original adapters/registry.py which mapped several names (e.g.
// "b11f2_gatekeeper" and "b11f2_runtime_gatekeeper") to one function.
func (r Registry) Register(fn StageFn, names ...string) {
	for _, n := range names {
		r[n] = fn
	}
}

// Lookup returns the stage bound to name and whether it was found.
func (r Registry) Lookup(name string) (StageFn, bool) {
	fn, ok := r[name]
	return fn, ok
}
