package ml

import "sort"

// RocAUC computes the area under the ROC curve for predicted probabilities
// against 0/1 labels, using the rank formulation with midpoint handling for
// tied scores. Returns 0 when only one class is present.
func RocAUC(probs []float64, labels []int) float64 {
	if len(probs) != len(labels) || len(probs) == 0 {
		return 0
	}
	type pair struct {
		p float64
		y int
	}
	pairs := make([]pair, len(probs))
	for i := range probs {
		pairs[i] = pair{probs[i], labels[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	var positives, negatives float64
	var rankSum float64
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].p == pairs[i].p {
			j++
		}
		// ranks are 1-based; tied scores share the midpoint rank
		midRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if pairs[k].y == 1 {
				rankSum += midRank
			}
		}
		i = j
	}
	for _, p := range pairs {
		if p.y == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0
	}
	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

// AveragePrecision computes PR AUC as the mean precision at each positive
// hit when rows are ranked by descending probability.
func AveragePrecision(probs []float64, labels []int) float64 {
	if len(probs) != len(labels) || len(probs) == 0 {
		return 0
	}
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return probs[order[i]] > probs[order[j]] })

	var positives float64
	for _, y := range labels {
		if y == 1 {
			positives++
		}
	}
	if positives == 0 {
		return 0
	}

	var hits, sum float64
	for rank, idx := range order {
		if labels[idx] == 1 {
			hits++
			sum += hits / float64(rank+1)
		}
	}
	return sum / positives
}
