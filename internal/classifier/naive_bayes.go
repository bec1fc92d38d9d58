package classifier

import "math"

// naiveBayes is a multinomial Naive Bayes over word counts with additive
// (Laplace) smoothing.
type naiveBayes struct {
	logPrior      []float64
	logLikelihood [][]float64
}

func fitNaiveBayes(x []sparseVec, y []int, nClasses, nFeatures int, alpha float64) *naiveBayes {
	classRows := make([]float64, nClasses)
	featureCounts := make([][]float64, nClasses)
	for c := range featureCounts {
		featureCounts[c] = make([]float64, nFeatures)
	}
	for i, vec := range x {
		c := y[i]
		classRows[c]++
		for _, f := range vec {
			featureCounts[c][f.idx] += f.v
		}
	}

	nb := &naiveBayes{
		logPrior:      make([]float64, nClasses),
		logLikelihood: make([][]float64, nClasses),
	}
	for c := 0; c < nClasses; c++ {
		nb.logPrior[c] = math.Log(classRows[c] / float64(len(x)))

		total := 0.0
		for _, v := range featureCounts[c] {
			total += v
		}
		denom := total + alpha*float64(nFeatures)
		ll := make([]float64, nFeatures)
		for f := range ll {
			ll[f] = math.Log((featureCounts[c][f] + alpha) / denom)
		}
		nb.logLikelihood[c] = ll
	}
	return nb
}

func (nb *naiveBayes) probabilities(vec sparseVec) []float64 {
	scores := make([]float64, len(nb.logPrior))
	for c := range scores {
		s := nb.logPrior[c]
		for _, f := range vec {
			s += f.v * nb.logLikelihood[c][f.idx]
		}
		scores[c] = s
	}
	return softmax(scores)
}

func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	if math.IsInf(maxScore, -1) {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
