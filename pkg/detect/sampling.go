package detect

import (
	"math"
	"math/rand"
	"sort"
)

// SampleStats reports how training input was reduced by sampleRows.
type SampleStats struct {
	TotalSamples int
	UsedSamples  int
	Sampled      bool
}

// sampleRows returns up to maxSamples rows drawn without replacement from
// the matrix. When labels are supplied (len == rows), allocation is
// stratified proportionally per class, with the remainder distributed to the
// classes carrying the largest fractional leftover.
func sampleRows(matrix [][]float64, maxSamples int, seed int64, labels []int) ([][]float64, SampleStats) {
	n := len(matrix)
	if n <= maxSamples {
		return matrix, SampleStats{TotalSamples: n, UsedSamples: n}
	}

	rng := rand.New(rand.NewSource(seed))

	var selected []int
	if len(labels) != n {
		selected = rng.Perm(n)[:maxSamples]
	} else {
		selected = stratifiedIndices(labels, maxSamples, rng)
	}

	sampled := make([][]float64, len(selected))
	for i, idx := range selected {
		sampled[i] = matrix[idx]
	}

	return sampled, SampleStats{TotalSamples: n, UsedSamples: len(selected), Sampled: true}
}

// stratifiedIndices allocates maxSamples across classes proportionally to
// class frequency, distributing the rounding remainder to the classes with
// the largest fractional leftovers, then samples each class without
// replacement.
func stratifiedIndices(labels []int, maxSamples int, rng *rand.Rand) []int {
	byClass := map[int][]int{}
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}

	sort.Ints(classes)

	total := float64(len(labels))
	targets := make([]int, len(classes))
	leftovers := make([]float64, len(classes))
	allocated := 0

	for ci, class := range classes {
		exact := float64(len(byClass[class])) / total * float64(maxSamples)
		targets[ci] = int(math.Floor(exact))
		leftovers[ci] = exact - float64(targets[ci])
		allocated += targets[ci]
	}

	// Hand the remainder to the largest fractional leftovers.
	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return leftovers[order[a]] > leftovers[order[b]] })

	for r := 0; r < maxSamples-allocated && r < len(order); r++ {
		targets[order[r]]++
	}

	var selected []int

	for ci, class := range classes {
		indices := byClass[class]
		take := min(targets[ci], len(indices))
		if take <= 0 {
			continue
		}

		perm := rng.Perm(len(indices))
		for _, p := range perm[:take] {
			selected = append(selected, indices[p])
		}
	}

	// Top up from the unselected pool if class caps left a shortfall.
	if len(selected) < maxSamples {
		chosen := make(map[int]struct{}, len(selected))
		for _, idx := range selected {
			chosen[idx] = struct{}{}
		}

		var pool []int

		for i := range labels {
			if _, ok := chosen[i]; !ok {
				pool = append(pool, i)
			}
		}

		perm := rng.Perm(len(pool))
		for _, p := range perm[:min(maxSamples-len(selected), len(pool))] {
			selected = append(selected, pool[p])
		}
	}

	rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})

	return selected
}
