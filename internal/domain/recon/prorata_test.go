package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpreadProRataBasic(t *testing.T) {
	// 45 across claimable 60 and 30 keeps the 2:1 ratio.
	shares := spreadProRata(45, []float64{60, 30})

	assert.InDelta(t, 30, shares[0], 0.001)
	assert.InDelta(t, 15, shares[1], 0.001)
}

func TestSpreadProRataRoundingDriftFoldedIntoLargestShare(t *testing.T) {
	shares := spreadProRata(100, []float64{100, 100, 100})

	var total float64
	for _, s := range shares {
		total += s
	}
	assert.InDelta(t, 100, total, 0.001)
	// 33.33 + 33.33 + 33.33 leaves a cent; the largest share absorbs it.
	assert.InDelta(t, 33.34, shares[0], 0.001)
}

func TestSpreadProRataCappedAtWeights(t *testing.T) {
	shares := spreadProRata(500, []float64{60, 30})

	assert.InDelta(t, 60, shares[0], 0.001)
	assert.InDelta(t, 30, shares[1], 0.001)
}

func TestSpreadProRataZeroWeights(t *testing.T) {
	shares := spreadProRata(100, []float64{0, 0})

	assert.Equal(t, []float64{0, 0}, shares)
}

func TestSpreadProRataSkipsExhaustedVoucher(t *testing.T) {
	shares := spreadProRata(30, []float64{0, 90})

	assert.Equal(t, 0.0, shares[0])
	assert.InDelta(t, 30, shares[1], 0.001)
}
