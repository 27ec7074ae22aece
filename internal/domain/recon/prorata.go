package recon

import "math"

// spreadProRata distributes amount across weights proportionally:
//
//	multiplier = amount / sum(weights)
//	share_i    = weight_i * multiplier
//
// Shares are rounded to cents; a sub-ten-cent rounding drift is folded
// into the largest share so the shares sum back to the amount. When
// amount exceeds the weight sum the spread is capped at the weights
// themselves, so no share can overdraw its voucher.
func spreadProRata(amount float64, weights []float64) []float64 {
	shares := make([]float64, len(weights))
	if amount <= 0 {
		return shares
	}

	var totalWeight float64
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		return shares
	}
	if amount > totalWeight {
		amount = totalWeight
	}

	multiplier := amount / totalWeight
	var distributed float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		shares[i] = roundToCents(w * multiplier)
		distributed += shares[i]
	}

	diff := roundToCents(amount - distributed)
	if diff != 0 && math.Abs(diff) < 0.10 {
		maxIdx := -1
		for i := range shares {
			if maxIdx == -1 || shares[i] > shares[maxIdx] {
				maxIdx = i
			}
		}
		if maxIdx >= 0 {
			shares[maxIdx] = roundToCents(shares[maxIdx] + diff)
		}
	}
	return shares
}

func roundToCents(v float64) float64 {
	return math.Round(v*100) / 100
}
