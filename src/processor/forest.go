package processor

import (
	"math"
	"math/rand"
)

// regressionForest is a bagged ensemble of regression trees. Each tree is
// fit on a bootstrap sample with a random feature subset per split.
type regressionForest struct {
	trees     []*treeNode
	nFeatures int
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

type forestConfig struct {
	trees    int
	maxDepth int
	minLeaf  int
	seed     int64
}

func defaultForestConfig() forestConfig {
	return forestConfig{trees: 100, maxDepth: 10, minLeaf: 2, seed: 42}
}

// fitForest trains the ensemble and returns it together with per-feature
// importances: accumulated variance reduction per split, normalized to sum
// to one.
func fitForest(X [][]float64, y []float64, cfg forestConfig) (*regressionForest, []float64) {
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}

	forest := &regressionForest{nFeatures: nFeatures}
	importances := make([]float64, nFeatures)
	rng := rand.New(rand.NewSource(cfg.seed))

	mtry := nFeatures / 3
	if mtry < 1 {
		mtry = 1
	}

	for t := 0; t < cfg.trees; t++ {
		indices := make([]int, len(X))
		for i := range indices {
			indices[i] = rng.Intn(len(X))
		}
		treeRng := rand.New(rand.NewSource(rng.Int63()))
		root := growTree(X, y, indices, 0, cfg, mtry, treeRng, importances)
		forest.trees = append(forest.trees, root)
	}

	normalize(importances)
	return forest, importances
}

func (f *regressionForest) predict(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range f.trees {
		sum += tree.eval(x)
	}
	return sum / float64(len(f.trees))
}

func (n *treeNode) eval(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func growTree(X [][]float64, y []float64, indices []int, depth int, cfg forestConfig, mtry int, rng *rand.Rand, importances []float64) *treeNode {
	if depth >= cfg.maxDepth || len(indices) < 2*cfg.minLeaf {
		return leafNode(y, indices)
	}

	parentImpurity := variance(y, indices)
	if parentImpurity == 0 {
		return leafNode(y, indices)
	}

	feature, threshold, gain := bestSplit(X, y, indices, mtry, cfg.minLeaf, rng, parentImpurity)
	if feature < 0 {
		return leafNode(y, indices)
	}

	var left, right []int
	for _, i := range indices {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < cfg.minLeaf || len(right) < cfg.minLeaf {
		return leafNode(y, indices)
	}

	importances[feature] += gain * float64(len(indices))

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      growTree(X, y, left, depth+1, cfg, mtry, rng, importances),
		right:     growTree(X, y, right, depth+1, cfg, mtry, rng, importances),
	}
}

func leafNode(y []float64, indices []int) *treeNode {
	return &treeNode{leaf: true, value: meanAt(y, indices)}
}

// bestSplit scans a random subset of features for the threshold with the
// largest variance reduction. Returns feature -1 when no split improves.
func bestSplit(X [][]float64, y []float64, indices []int, mtry, minLeaf int, rng *rand.Rand, parentImpurity float64) (int, float64, float64) {
	nFeatures := len(X[indices[0]])
	candidates := rng.Perm(nFeatures)
	if len(candidates) > mtry {
		candidates = candidates[:mtry]
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	for _, f := range candidates {
		thresholds := uniqueSorted(X, indices, f)
		for k := 0; k+1 < len(thresholds); k++ {
			threshold := (thresholds[k] + thresholds[k+1]) / 2

			var leftSum, rightSum float64
			var leftN, rightN int
			for _, i := range indices {
				if X[i][f] <= threshold {
					leftSum += y[i]
					leftN++
				} else {
					rightSum += y[i]
					rightN++
				}
			}
			if leftN < minLeaf || rightN < minLeaf {
				continue
			}

			leftMean := leftSum / float64(leftN)
			rightMean := rightSum / float64(rightN)
			var leftVar, rightVar float64
			for _, i := range indices {
				if X[i][f] <= threshold {
					d := y[i] - leftMean
					leftVar += d * d
				} else {
					d := y[i] - rightMean
					rightVar += d * d
				}
			}
			n := float64(len(indices))
			childImpurity := (leftVar + rightVar) / n
			gain := parentImpurity - childImpurity
			if gain > bestGain {
				bestFeature = f
				bestThreshold = threshold
				bestGain = gain
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

func uniqueSorted(X [][]float64, indices []int, feature int) []float64 {
	seen := make(map[float64]struct{}, len(indices))
	var values []float64
	for _, i := range indices {
		v := X[i][feature]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	// insertion sort keeps this allocation-free for the short value lists
	// one-hot features produce
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	return values
}

func meanAt(y []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	var sum float64
	for _, i := range indices {
		sum += y[i]
	}
	return sum / float64(len(indices))
}

func variance(y []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	mean := meanAt(y, indices)
	var sum float64
	for _, i := range indices {
		d := y[i] - mean
		sum += d * d
	}
	return sum / float64(len(indices))
}

func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum == 0 || math.IsNaN(sum) {
		return
	}
	for i := range values {
		values[i] /= sum
	}
}
