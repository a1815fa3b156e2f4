package estimator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/jeeves-sleeplight/internal/sleeplight"
)

var (
	ErrMissingFeature = errors.New("missing model feature")
	ErrInvalidModel   = errors.New("invalid model")
)

// leaf marks a node without children, as in exported scikit-learn trees
const leaf = -1

// Tree is a regression tree stored as parallel node arrays.
// Node i is a leaf when Left[i] == -1; otherwise samples with
// x[Feature[i]] <= Threshold[i] go left.
type Tree struct {
	Left      []int     `yaml:"left"`
	Right     []int     `yaml:"right"`
	Feature   []int     `yaml:"feature"`
	Threshold []float64 `yaml:"threshold"`
	Value     []float64 `yaml:"value"`
}

// Model is a regression forest predicting sleep quality
type Model struct {
	Name       string              `yaml:"name"`
	Features   []string            `yaml:"features"`
	Categories map[string][]string `yaml:"categories"`
	Defaults   map[string]float64  `yaml:"defaults"`
	Trees      []Tree              `yaml:"trees"`
}

// LoadModel reads and validates a YAML model file
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	model, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return model, nil
}

// ParseModel decodes and validates a YAML model
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(m.Features) == 0 {
		m.Features = DefaultFeatures
	}
	for name, vocab := range m.Categories {
		sorted := append([]string(nil), vocab...)
		sort.Strings(sorted)
		m.Categories[name] = sorted
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	for t, tree := range m.Trees {
		n := len(tree.Value)
		if n == 0 || len(tree.Left) != n || len(tree.Right) != n || len(tree.Feature) != n || len(tree.Threshold) != n {
			return fmt.Errorf("%w: tree %d has mismatched node arrays", ErrInvalidModel, t)
		}
		for i := 0; i < n; i++ {
			if tree.Left[i] == leaf {
				continue
			}
			// Children must come after their parent, which also rules out cycles
			if tree.Left[i] <= i || tree.Left[i] >= n || tree.Right[i] <= i || tree.Right[i] >= n {
				return fmt.Errorf("%w: tree %d node %d has out-of-range children", ErrInvalidModel, t, i)
			}
			if tree.Feature[i] < 0 || tree.Feature[i] >= len(m.Features) {
				return fmt.Errorf("%w: tree %d node %d uses unknown feature %d", ErrInvalidModel, t, i, tree.Feature[i])
			}
		}
	}
	return nil
}

// Vector builds the model input row from an observation. Categorical values are
// encoded as their index in the sorted vocabulary. Missing or unknown values use
// the model's defaults.
func (m *Model) Vector(obs Observation) ([]float64, error) {
	x := make([]float64, len(m.Features))
	for i, name := range m.Features {
		if v, ok := m.encode(name, obs); ok {
			x[i] = v
			continue
		}
		if v, ok := m.Defaults[name]; ok {
			x[i] = v
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
	}
	return x, nil
}

func (m *Model) encode(name string, obs Observation) (float64, bool) {
	if vocab, ok := m.Categories[name]; ok {
		label, ok := obs.Categorical[name]
		if !ok {
			return 0, false
		}
		idx := sort.SearchStrings(vocab, label)
		if idx < len(vocab) && vocab[idx] == label {
			return float64(idx), true
		}
		return 0, false
	}
	v, ok := obs.Numeric[name]
	return v, ok
}

// Predict averages the leaf values reached in every tree
func (m *Model) Predict(x []float64) float64 {
	var sum float64
	for _, tree := range m.Trees {
		sum += tree.predict(x)
	}
	return sum / float64(len(m.Trees))
}

func (t Tree) predict(x []float64) float64 {
	node := 0
	for t.Left[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// ForestEstimator serves quality estimates from a loaded model.
// The model is read-only after loading, so concurrent use is safe.
type ForestEstimator struct {
	model *Model
}

// NewForestEstimator wraps a validated model
func NewForestEstimator(model *Model) *ForestEstimator {
	return &ForestEstimator{model: model}
}

// EstimateQuality implements sleeplight.QualityEstimator
func (f *ForestEstimator) EstimateQuality(ctx context.Context, profile sleeplight.UserProfile, pattern sleeplight.DailyPattern, sleep sleeplight.SleepRecord) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x, err := f.model.Vector(Observe(profile, pattern, sleep))
	if err != nil {
		return 0, err
	}
	return f.model.Predict(x), nil
}
