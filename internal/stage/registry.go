// Package stage defines the fixed, ordered sequence of stages the
// lease-termination workflow moves through, and the mapping between a
// stage's stable persistence key and its runtime index.
package stage

// Stage keys. Keys are persisted in checkpoints and must stay stable even
// if stages are relabelled or reordered.
const (
	KeyDetails  = "details"
	KeyMedia    = "media"
	KeyDamages  = "damages"
	KeyInvoices = "invoices"
	KeyVacated  = "vacated"
)

// Descriptor describes one stage of the workflow.
type Descriptor struct {
	Key     string
	Label   string
	Ordinal int
}

// stages is the total order of the workflow. "Skip" advances past a stage
// without satisfying its optional validation; it never jumps the order.
var stages = []Descriptor{
	{Key: KeyDetails, Label: "Termination Details", Ordinal: 0},
	{Key: KeyMedia, Label: "Media", Ordinal: 1},
	{Key: KeyDamages, Label: "Damages", Ordinal: 2},
	{Key: KeyInvoices, Label: "Invoice Items", Ordinal: 3},
	{Key: KeyVacated, Label: "Vacated", Ordinal: 4},
}

var indexByKey = func() map[string]int {
	m := make(map[string]int, len(stages))
	for i, s := range stages {
		m[s.Key] = i
	}
	return m
}()

// Count returns the number of stages.
func Count() int {
	return len(stages)
}

// LastIndex returns the index of the final stage.
func LastIndex() int {
	return len(stages) - 1
}

// IndexForKey returns the index of the stage with the given key. Unknown
// keys (including legacy keys from old checkpoints) resolve to 0 so that a
// stale checkpoint restarts the workflow rather than failing the load.
func IndexForKey(key string) int {
	if i, ok := indexByKey[key]; ok {
		return i
	}
	return 0
}

// KeyForIndex returns the persistence key of the stage at the given index.
// Out-of-range indices resolve to the first stage's key.
func KeyForIndex(i int) string {
	if i < 0 || i >= len(stages) {
		return stages[0].Key
	}
	return stages[i].Key
}

// At returns the descriptor of the stage at the given index.
// Out-of-range indices resolve to the first stage.
func At(i int) Descriptor {
	if i < 0 || i >= len(stages) {
		return stages[0]
	}
	return stages[i]
}

// Descriptors returns a copy of the full ordered stage list.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(stages))
	copy(out, stages)
	return out
}

// LabelForKey returns the display label for a stage key, or the key itself
// if it is unknown.
func LabelForKey(key string) string {
	if i, ok := indexByKey[key]; ok {
		return stages[i].Label
	}
	return key
}
