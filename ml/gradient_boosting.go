package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// GradientBoosting is a boosted ensemble of regression trees exported from the
// training pipeline. Prediction is init + learning_rate * sum(tree(x)).
type GradientBoosting struct {
	NFeatures    int          `json:"n_features"`
	Init         float64      `json:"init"`
	LearningRate float64      `json:"learning_rate"`
	Trees        [][]TreeNode `json:"trees"`
}

// TreeNode is one node of a flattened regression tree. Children are indexes
// into the same tree's node slice.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func (gb *GradientBoosting) NumFeatures() int {
	return gb.NFeatures
}

func (gb *GradientBoosting) Predict(features []float64) (float64, error) {
	if len(gb.Trees) == 0 {
		return 0, errors.New("model has no trees")
	}
	if len(features) != gb.NFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", gb.NFeatures, len(features))
	}
	sum := 0.0
	for i, tree := range gb.Trees {
		value, err := evalTree(tree, features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += value
	}
	return gb.Init + gb.LearningRate*sum, nil
}

func (gb *GradientBoosting) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var model GradientBoosting
	if err := json.Unmarshal(payload, &model); err != nil {
		return err
	}
	if err := model.validate(); err != nil {
		return err
	}
	*gb = model
	return nil
}

func (gb *GradientBoosting) validate() error {
	if gb.NFeatures <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(gb.Trees) == 0 {
		return errors.New("model has no trees")
	}
	for i, tree := range gb.Trees {
		if len(tree) == 0 {
			return fmt.Errorf("tree %d is empty", i)
		}
		for j, node := range tree {
			if node.IsLeaf {
				continue
			}
			if node.FeatureIdx < 0 || node.FeatureIdx >= gb.NFeatures {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", i, j, node.FeatureIdx)
			}
			// children always come after their parent in the flattened layout
			if node.LeftChild <= j || node.LeftChild >= len(tree) || node.RightChild <= j || node.RightChild >= len(tree) {
				return fmt.Errorf("tree %d node %d: invalid children", i, j)
			}
		}
	}
	return nil
}

func evalTree(nodes []TreeNode, features []float64) (float64, error) {
	idx := 0
	for {
		if idx < 0 || idx >= len(nodes) {
			return 0, errors.New("invalid tree state")
		}
		node := nodes[idx]
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
	}
}
