package membership

// VectorState is a map of per-key, per-node monotonic counters layered on
// top of membership. Merge is pointwise max, which makes it commutative,
// associative, and idempotent, so replicas converge whatever the delivery
// order or duplication.
type VectorState struct {
	counters map[string]map[string]uint64 // key -> node -> counter
}

// NewVectorState returns an empty VectorState.
func NewVectorState() *VectorState {
	return &VectorState{
		counters: make(map[string]map[string]uint64),
	}
}

// Increment bumps the counter that node owns under key and returns the new
// total for the key.
func (v *VectorState) Increment(key, node string) uint64 {
	row, ok := v.counters[key]
	if !ok {
		row = make(map[string]uint64)
		v.counters[key] = row
	}
	row[node]++
	return v.Get(key)
}

// Get returns the total for a key: the sum of every node's counter.
func (v *VectorState) Get(key string) uint64 {
	var total uint64
	for _, c := range v.counters[key] {
		total += c
	}
	return total
}

// Counters returns a copy of the per-node counters for a key.
func (v *VectorState) Counters(key string) map[string]uint64 {
	row := make(map[string]uint64, len(v.counters[key]))
	for node, c := range v.counters[key] {
		row[node] = c
	}
	return row
}

// Merge folds other into v, taking the pointwise max of every counter.
// Returns whether v changed.
func (v *VectorState) Merge(other *VectorState) bool {
	changed := false

	for key, row := range other.counters {
		local, ok := v.counters[key]
		if !ok {
			local = make(map[string]uint64)
			v.counters[key] = local
		}
		for node, c := range row {
			if c > local[node] {
				local[node] = c
				changed = true
			}
		}
	}

	return changed
}

// Snapshot returns a deep copy of the whole state.
func (v *VectorState) Snapshot() map[string]map[string]uint64 {
	out := make(map[string]map[string]uint64, len(v.counters))
	for key := range v.counters {
		out[key] = v.Counters(key)
	}
	return out
}
