package classifier

import (
	"math"
	"slices"
)

// BoostingParams configures the gradient-boosted tree ensemble.
type BoostingParams struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
}

func (p *BoostingParams) applyDefaults() {
	if p.Rounds <= 0 {
		p.Rounds = 50
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.3
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = 1
	}
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

// regressionTree sends a row left when its count for feature is <= threshold.
type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(vec sparseVec) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.leaf {
			return n.value
		}
		if vec.get(n.feature) <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// gradientBoosting is a multiclass softmax booster: one tree per class per
// round, fitted to the negative gradient of the log loss.
type gradientBoosting struct {
	initScores   []float64
	learningRate float64
	rounds       [][]*regressionTree
}

func fitGradientBoosting(x []sparseVec, y []int, nClasses int, p BoostingParams) *gradientBoosting {
	n := len(x)
	counts := make([]float64, nClasses)
	for _, c := range y {
		counts[c]++
	}
	gb := &gradientBoosting{
		initScores:   make([]float64, nClasses),
		learningRate: p.LearningRate,
	}
	for c := range counts {
		prior := counts[c] / float64(n)
		if prior <= 0 {
			prior = 1e-9
		}
		gb.initScores[c] = math.Log(prior)
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = slices.Clone(gb.initScores)
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	scale := float64(nClasses-1) / float64(nClasses)

	for round := 0; round < p.Rounds; round++ {
		probs := make([][]float64, n)
		for i := range scores {
			probs[i] = softmax(scores[i])
		}
		trees := make([]*regressionTree, nClasses)
		for c := 0; c < nClasses; c++ {
			for i := 0; i < n; i++ {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				pc := probs[i][c]
				grad[i] = target - pc
				hess[i] = pc * (1 - pc)
			}
			tree := &regressionTree{}
			growNode(tree, x, grad, hess, rows, 0, p, scale)
			trees[c] = tree
			for i := 0; i < n; i++ {
				scores[i][c] += p.LearningRate * tree.predict(x[i])
			}
		}
		gb.rounds = append(gb.rounds, trees)
	}
	return gb
}

func (gb *gradientBoosting) probabilities(vec sparseVec) []float64 {
	scores := slices.Clone(gb.initScores)
	for _, trees := range gb.rounds {
		for c, tree := range trees {
			scores[c] += gb.learningRate * tree.predict(vec)
		}
	}
	return softmax(scores)
}

// growNode appends the subtree for rows to tree and returns its node index.
func growNode(tree *regressionTree, x []sparseVec, grad, hess []float64, rows []int, depth int, p BoostingParams, scale float64) int {
	idx := len(tree.nodes)
	tree.nodes = append(tree.nodes, treeNode{leaf: true, value: leafValue(grad, hess, rows, scale)})

	if depth >= p.MaxDepth || len(rows) < 2*p.MinLeaf {
		return idx
	}
	feature, threshold, ok := bestSplit(x, grad, rows, p.MinLeaf)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if x[r].get(feature) <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := growNode(tree, x, grad, hess, left, depth+1, p, scale)
	rt := growNode(tree, x, grad, hess, right, depth+1, p, scale)
	tree.nodes[idx] = treeNode{feature: feature, threshold: threshold, left: l, right: rt}
	return idx
}

func leafValue(grad, hess []float64, rows []int, scale float64) float64 {
	var num, den float64
	for _, r := range rows {
		num += grad[r]
		den += hess[r]
	}
	if den < 1e-12 {
		return 0
	}
	return scale * num / den
}

// bestSplit finds the feature threshold with the largest reduction in squared
// error of the gradients. Rows missing a feature have a count of zero.
func bestSplit(x []sparseVec, grad []float64, rows []int, minLeaf int) (int, float64, bool) {
	type featVal struct {
		v float64
		g float64
	}
	perFeature := make(map[int][]featVal)
	total := 0.0
	for _, r := range rows {
		total += grad[r]
		for _, f := range x[r] {
			if f.v != 0 {
				perFeature[f.idx] = append(perFeature[f.idx], featVal{v: f.v, g: grad[r]})
			}
		}
	}
	features := make([]int, 0, len(perFeature))
	for f := range perFeature {
		features = append(features, f)
	}
	slices.Sort(features)

	n := len(rows)
	base := total * total / float64(n)
	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0

	for _, f := range features {
		vals := perFeature[f]
		slices.SortStableFunc(vals, func(a, b featVal) int {
			switch {
			case a.v < b.v:
				return -1
			case a.v > b.v:
				return 1
			}
			return 0
		})
		nonZeroSum := 0.0
		for _, fv := range vals {
			nonZeroSum += fv.g
		}
		leftN := n - len(vals)
		leftSum := total - nonZeroSum
		prev := 0.0
		for i := 0; i < len(vals); {
			rightN := n - leftN
			if leftN >= minLeaf && rightN >= minLeaf {
				rightSum := total - leftSum
				gain := leftSum*leftSum/float64(leftN) + rightSum*rightSum/float64(rightN) - base
				if gain > bestGain {
					bestGain = gain
					bestFeature = f
					bestThreshold = (prev + vals[i].v) / 2
				}
			}
			v := vals[i].v
			for i < len(vals) && vals[i].v == v {
				leftN++
				leftSum += vals[i].g
				i++
			}
			prev = v
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
