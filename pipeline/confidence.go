package pipeline

import (
	"math"

	"qarag/types"
)

// confidenceWeights apply to the 1st, 2nd and 3rd ranked chunk.
var confidenceWeights = [...]float64{0.6, 0.25, 0.15}

// Confidence scores a ranked retrieval in [0, 100], rounded to two decimals.
// Chunks must be ordered by descending similarity. Missing ranks count as
// similarity 0, so fewer than three chunks lower the score and no chunks score 0.
func Confidence(chunks []types.RetrievedChunk) float64 {
	var score float64
	for i, w := range confidenceWeights {
		if i >= len(chunks) {
			break
		}
		score += w * max(0, min(1, chunks[i].Similarity))
	}
	return math.Round(score*100*100) / 100
}
