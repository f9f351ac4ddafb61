package ml

import (
	"errors"
	"math"
)

// TreeNode is one node in a flattened regression tree. Children are indices
// into the same node slice; leaves carry the additive score contribution.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// GBDT is a gradient-boosted ensemble of regression trees with a logistic
// link, predicting the probability of the positive class.
type GBDT struct {
	trees        [][]TreeNode
	learningRate float64
	baseScore    float64
}

// TrainConfig holds the boosting hyperparameters.
type TrainConfig struct {
	Trees          int
	MaxDepth       int
	LearningRate   float64
	MinLeafSamples int
}

func (c *TrainConfig) applyDefaults() {
	if c.Trees <= 0 {
		c.Trees = 100
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.MinLeafSamples <= 0 {
		c.MinLeafSamples = 1
	}
}

// Train fits the ensemble on encoded feature vectors and 0/1 labels.
func (g *GBDT) Train(features [][]float64, labels []int, config TrainConfig) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	config.applyDefaults()

	positives := 0
	for _, label := range labels {
		if label != 0 && label != 1 {
			return errors.New("labels must be 0 or 1")
		}
		positives += label
	}
	prior := float64(positives) / float64(len(labels))
	prior = math.Min(math.Max(prior, 1e-4), 1-1e-4)

	g.baseScore = math.Log(prior / (1 - prior))
	g.learningRate = config.LearningRate
	g.trees = nil

	scores := make([]float64, len(labels))
	for i := range scores {
		scores[i] = g.baseScore
	}

	gradients := make([]float64, len(labels))
	hessians := make([]float64, len(labels))
	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}

	for t := 0; t < config.Trees; t++ {
		for i, label := range labels {
			p := sigmoid(scores[i])
			gradients[i] = float64(label) - p
			hessians[i] = p * (1 - p)
		}

		tree := buildTree(features, gradients, hessians, indices, 0, config)
		g.trees = append(g.trees, tree)

		for i := range features {
			value, _ := scoreTree(tree, features[i])
			scores[i] += g.learningRate * value
		}
	}
	return nil
}

// Predict returns the probability of the positive class for one encoded
// vector. The receiver is read-only after training or loading; concurrent
// calls are safe.
func (g *GBDT) Predict(features []float64) (float64, error) {
	if len(g.trees) == 0 {
		return 0, errors.New("model not trained")
	}
	score := g.baseScore
	for _, tree := range g.trees {
		value, err := scoreTree(tree, features)
		if err != nil {
			return 0, err
		}
		score += g.learningRate * value
	}
	return sigmoid(score), nil
}

// NumTrees reports the ensemble size.
func (g *GBDT) NumTrees() int { return len(g.trees) }

func scoreTree(tree []TreeNode, features []float64) (float64, error) {
	idx := 0
	for {
		node := tree[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(tree) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// buildTree fits one regression tree to the current gradients using a
// Newton leaf estimate, returning the flattened node slice.
func buildTree(features [][]float64, gradients, hessians []float64, indices []int, depth int, config TrainConfig) []TreeNode {
	leaf := func() []TreeNode {
		return []TreeNode{{
			FeatureIdx: -1,
			LeftChild:  -1,
			RightChild: -1,
			Value:      leafValue(gradients, hessians, indices),
			IsLeaf:     true,
		}}
	}

	if depth >= config.MaxDepth || len(indices) < 2*config.MinLeafSamples {
		return leaf()
	}

	feature, threshold, ok := bestSplit(features, gradients, hessians, indices, config.MinLeafSamples)
	if !ok {
		return leaf()
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf()
	}

	leftNodes := buildTree(features, gradients, hessians, left, depth+1, config)
	rightNodes := buildTree(features, gradients, hessians, right, depth+1, config)

	root := TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = appendSubtree(nodes, leftNodes, 1)
	nodes = appendSubtree(nodes, rightNodes, 1+len(leftNodes))
	return nodes
}

// appendSubtree shifts a subtree's child indices by its position in the
// flattened parent slice.
func appendSubtree(dst, subtree []TreeNode, offset int) []TreeNode {
	for _, node := range subtree {
		if !node.IsLeaf {
			node.LeftChild += offset
			node.RightChild += offset
		}
		dst = append(dst, node)
	}
	return dst
}

func bestSplit(features [][]float64, gradients, hessians []float64, indices []int, minLeaf int) (int, float64, bool) {
	featureCount := len(features[indices[0]])

	var totalG, totalH float64
	for _, i := range indices {
		totalG += gradients[i]
		totalH += hessians[i]
	}
	baseGain := gainTerm(totalG, totalH)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0

	values := make([]float64, len(indices))
	for feature := 0; feature < featureCount; feature++ {
		for j, i := range indices {
			values[j] = features[i][feature]
		}
		threshold := median(values)

		var leftG, leftH float64
		leftCount := 0
		for _, i := range indices {
			if features[i][feature] <= threshold {
				leftG += gradients[i]
				leftH += hessians[i]
				leftCount++
			}
		}
		rightCount := len(indices) - leftCount
		if leftCount < minLeaf || rightCount < minLeaf {
			continue
		}

		gain := gainTerm(leftG, leftH) + gainTerm(totalG-leftG, totalH-leftH) - baseGain
		if gain > bestGain {
			bestGain = gain
			bestFeature = feature
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

const hessianRegularization = 1.0

func gainTerm(g, h float64) float64 {
	return g * g / (h + hessianRegularization)
}

func leafValue(gradients, hessians []float64, indices []int) float64 {
	var g, h float64
	for _, i := range indices {
		g += gradients[i]
		h += hessians[i]
	}
	return g / (h + hessianRegularization)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sortFloats(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sortFloats(values []float64) {
	for i := 1; i < len(values); i++ {
		j := i
		for j > 0 && values[j-1] > values[j] {
			values[j-1], values[j] = values[j], values[j-1]
			j--
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
