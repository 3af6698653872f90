package stage

import "testing"

func TestCount(t *testing.T) {
	if Count() != 5 {
		t.Fatalf("Count() = %d, want 5", Count())
	}
	if LastIndex() != 4 {
		t.Fatalf("LastIndex() = %d, want 4", LastIndex())
	}
}

func TestIndexForKey(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{KeyDetails, 0},
		{KeyMedia, 1},
		{KeyDamages, 2},
		{KeyInvoices, 3},
		{KeyVacated, 4},
		{"", 0},
		{"walkthrough", 0}, // legacy key from an old checkpoint
	}
	for _, tt := range tests {
		if got := IndexForKey(tt.key); got != tt.want {
			t.Errorf("IndexForKey(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestKeyForIndex_roundTrip(t *testing.T) {
	for i := 0; i < Count(); i++ {
		key := KeyForIndex(i)
		if got := IndexForKey(key); got != i {
			t.Errorf("IndexForKey(KeyForIndex(%d)) = %d, want %d", i, got, i)
		}
	}
}

func TestKeyForIndex_outOfRange(t *testing.T) {
	if got := KeyForIndex(-1); got != KeyDetails {
		t.Errorf("KeyForIndex(-1) = %q, want %q", got, KeyDetails)
	}
	if got := KeyForIndex(Count()); got != KeyDetails {
		t.Errorf("KeyForIndex(Count()) = %q, want %q", got, KeyDetails)
	}
}

func TestDescriptors_ordered(t *testing.T) {
	descs := Descriptors()
	if len(descs) != Count() {
		t.Fatalf("Descriptors() length = %d, want %d", len(descs), Count())
	}
	for i, d := range descs {
		if d.Ordinal != i {
			t.Errorf("Descriptors()[%d].Ordinal = %d, want %d", i, d.Ordinal, i)
		}
	}
	// Mutating the returned slice must not affect the registry.
	descs[0].Key = "mutated"
	if At(0).Key != KeyDetails {
		t.Error("mutation of Descriptors() result leaked into registry")
	}
}

func TestLabelForKey(t *testing.T) {
	if got := LabelForKey(KeyVacated); got != "Vacated" {
		t.Errorf("LabelForKey(%q) = %q, want %q", KeyVacated, got, "Vacated")
	}
	if got := LabelForKey("mystery"); got != "mystery" {
		t.Errorf("LabelForKey(unknown) = %q, want the key back", got)
	}
}
