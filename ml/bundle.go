package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"readmit/schema"
)

// BundleFormatVersion is bumped whenever the on-disk layout changes; a
// loaded bundle with a different version is rejected.
const BundleFormatVersion = 1

// ErrArtifactLoad wraps every failure to load a model bundle: unreachable
// path, corrupt payload, or an incompatible format version.
var ErrArtifactLoad = errors.New("artifact load failed")

// Bundle is the versioned model artifact: the fitted predictor plus the
// feature schema it was trained against. The two are serialized together so
// the serving side can never pair a model with a foreign schema.
type Bundle struct {
	FormatVersion int           `json:"format_version"`
	ModelVersion  string        `json:"model_version"`
	TrainedAt     time.Time     `json:"trained_at"`
	Schema        schema.Schema `json:"schema"`
	BaseScore     float64       `json:"base_score"`
	LearningRate  float64       `json:"learning_rate"`
	Trees         [][]TreeNode  `json:"trees"`
}

// NewBundle freezes a trained model and its schema into an artifact.
func NewBundle(model *GBDT, s schema.Schema, trainedAt time.Time) *Bundle {
	return &Bundle{
		FormatVersion: BundleFormatVersion,
		ModelVersion:  trainedAt.UTC().Format("20060102T150405Z"),
		TrainedAt:     trainedAt.UTC(),
		Schema:        s,
		BaseScore:     model.baseScore,
		LearningRate:  model.learningRate,
		Trees:         model.trees,
	}
}

// Model reconstructs the predictor from the bundle.
func (b *Bundle) Model() *GBDT {
	return &GBDT{
		trees:        b.Trees,
		learningRate: b.LearningRate,
		baseScore:    b.BaseScore,
	}
}

// Save writes the bundle atomically next to its final path.
func (b *Bundle) Save(path string) error {
	if len(b.Trees) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadBundle reads and validates a bundle from disk.
func LoadBundle(path string) (*Bundle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	var bundle Bundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, fmt.Errorf("%w: corrupt bundle: %v", ErrArtifactLoad, err)
	}
	if err := bundle.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	return &bundle, nil
}

func (b *Bundle) validate() error {
	if b.FormatVersion != BundleFormatVersion {
		return fmt.Errorf("unsupported format version %d", b.FormatVersion)
	}
	if err := b.Schema.Validate(); err != nil {
		return err
	}
	if len(b.Trees) == 0 {
		return errors.New("bundle has no trees")
	}
	width := b.Schema.Width()
	for t, tree := range b.Trees {
		if len(tree) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for n, node := range tree {
			if node.IsLeaf {
				continue
			}
			if node.FeatureIdx < 0 || node.FeatureIdx >= width {
				return fmt.Errorf("tree %d node %d: feature index %d out of schema width %d", t, n, node.FeatureIdx, width)
			}
			if node.LeftChild <= n || node.LeftChild >= len(tree) ||
				node.RightChild <= n || node.RightChild >= len(tree) {
				return fmt.Errorf("tree %d node %d: invalid child index", t, n)
			}
		}
	}
	return nil
}
