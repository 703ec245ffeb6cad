package rating

import "testing"

func poolOf(values map[int64]float64) population {
	pop := population{values: values}
	first := true
	for _, v := range values {
		if first || v < pop.min {
			pop.min = v
		}
		if first || v > pop.max {
			pop.max = v
		}
		first = false
	}
	return pop
}

func TestNormalizeBoundsAndDefaults(t *testing.T) {
	pool := poolOf(map[int64]float64{1: 0.2, 2: 0.5, 3: 0.8})

	cases := []struct {
		name   string
		userID int64
		invert bool
		def    float64
		want   float64
	}{
		{"min subject scores zero", 1, false, 0.7, 0},
		{"max subject scores one", 3, false, 0.7, 1},
		{"mid subject scales linearly", 2, false, 0.7, 0.5},
		{"inverted flips scale", 1, true, 0.7, 1},
		{"no history returns default", 42, false, 0.7, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalize(pool, tc.userID, tc.invert, tc.def)
			if got != tc.want {
				t.Fatalf("normalize = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestNormalizeZeroSpreadReturnsDefaultExactly(t *testing.T) {
	pool := poolOf(map[int64]float64{1: 0.5, 2: 0.5})
	if got := normalize(pool, 1, false, 0.7); got != 0.7 {
		t.Fatalf("zero-spread pool should return default, got %g", got)
	}
	if got := normalize(population{}, 1, false, 0.7); got != 0.7 {
		t.Fatalf("empty pool should return default, got %g", got)
	}
}

func TestNormalizeCount(t *testing.T) {
	pool := poolOf(map[int64]float64{1: 4, 2: 2})

	if got := normalizeCount(pool, 1); got != 0 {
		t.Fatalf("worst offender should score zero, got %g", got)
	}
	if got := normalizeCount(pool, 2); got != 0.5 {
		t.Fatalf("half the max should score 0.5, got %g", got)
	}
	if got := normalizeCount(pool, 99); got != defaultReliability {
		t.Fatalf("clean subject should get default, got %g", got)
	}
	if got := normalizeCount(population{}, 1); got != defaultReliability {
		t.Fatalf("empty pool should get default, got %g", got)
	}
}
