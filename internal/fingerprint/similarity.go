package fingerprint

import (
	"gonum.org/v1/gonum/floats"

	"github.com/integrityx/forensics/pkg/models"
)

// Layer aspect names reported in similarity results.
const (
	AspectStructural = "structural"
	AspectContent    = "content"
	AspectStyle      = "style"
	AspectSemantic   = "semantic"
)

// Similarity compares two fingerprints layer by layer. Layers are compared
// by Jaccard overlap of their underlying feature sets, not hash equality,
// so near-misses still score high.
func (e *Engine) Similarity(a, b *models.Fingerprint) *models.SimilarityResult {
	layerScores := []float64{
		jaccard(a.StructuralSet, b.StructuralSet),
		jaccard(a.ContentSet, b.ContentSet),
		jaccard(a.StyleSet, b.StyleSet),
		jaccard(a.Keywords, b.Keywords),
	}
	weights := []float64{
		e.config.StructuralWeight,
		e.config.ContentWeight,
		e.config.StyleWeight,
		e.config.SemanticWeight,
	}

	// Normalizing by the weight sum keeps identical fingerprints at
	// exactly 1.0 regardless of float rounding in the weights.
	overall := floats.Dot(weights, layerScores) / floats.Sum(weights)

	aspects := []string{AspectStructural, AspectContent, AspectStyle, AspectSemantic}
	var matching, diverging []string
	for i, aspect := range aspects {
		if layerScores[i] >= e.config.AspectMatchThreshold {
			matching = append(matching, aspect)
		} else {
			diverging = append(diverging, aspect)
		}
	}

	return &models.SimilarityResult{
		FingerprintA:       a.DocumentID,
		FingerprintB:       b.DocumentID,
		Similarity:         overall,
		IsLikelyDerivative: overall > e.config.DerivativeThreshold,
		MatchingAspects:    matching,
		DivergingAspects:   diverging,
	}
}

// jaccard computes |A∩B| / |A∪B| over string sets. Two empty sets are
// considered identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}

	setB := make(map[string]bool, len(b))
	intersection := 0
	for _, s := range b {
		if setB[s] {
			continue
		}
		setB[s] = true
		if setA[s] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
