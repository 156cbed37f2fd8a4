package fingerprint

import (
	"hash/fnv"
	"math"

	"github.com/integrityx/forensics/pkg/models"
)

// FeatureVectorDim is the dimensionality of the hashed feature embedding.
// It must match the vector column width in storage.
const FeatureVectorDim = 256

// FeatureVector folds a fingerprint's feature sets into a fixed-width
// embedding by feature hashing, L2-normalized so cosine distance is
// meaningful. The embedding is a coarse pre-filter for candidate search;
// exact ranking always goes through Similarity.
func FeatureVector(fp *models.Fingerprint) []float32 {
	vec := make([]float32, FeatureVectorDim)

	fold := func(features []string, weight float32) {
		for _, f := range features {
			h := fnv.New32a()
			h.Write([]byte(f))
			vec[h.Sum32()%FeatureVectorDim] += weight
		}
	}

	fold(fp.StructuralSet, 1.0)
	fold(fp.ContentSet, 1.0)
	fold(fp.StyleSet, 0.5)
	fold(fp.Keywords, 1.0)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
