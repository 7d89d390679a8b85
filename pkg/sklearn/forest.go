package sklearn

import (
	"fmt"

	"github.com/zerfoo/skonnx/internal/pyobj"
)

// RandomForestClassifier also covers ExtraTreesClassifier. The probability
// is the mean of the per-tree probabilities.
type RandomForestClassifier struct {
	name      string
	classes   *Labels
	nFeatures int
	Trees     []*Tree
}

func (m *RandomForestClassifier) TypeName() string { return m.name }
func (m *RandomForestClassifier) Kind() string     { return kindOf(m.name) }
func (m *RandomForestClassifier) Classes() *Labels { return m.classes }
func (m *RandomForestClassifier) NumFeatures() int { return m.nFeatures }

func (m *RandomForestClassifier) PredictProba(x []float32) ([]float64, error) {
	if err := checkInput(x, m.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, m.classes.Len())
	for i, t := range m.Trees {
		p, err := t.Proba(x)
		if err != nil {
			return nil, fmt.Errorf("estimator %d: %w", i, err)
		}
		for c, v := range p {
			out[c] += v
		}
	}
	for c := range out {
		out[c] /= float64(len(m.Trees))
	}
	return out, nil
}

func (m *RandomForestClassifier) Predict(x []float32) (Label, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return Label{}, err
	}
	return m.classes.At(argmax(p)), nil
}

func decodeForest(obj *pyobj.Object) (Estimator, error) {
	classes, err := decodeClasses(obj)
	if err != nil {
		return nil, err
	}
	ev, err := obj.MustAttr("estimators_")
	if err != nil {
		return nil, err
	}
	items, err := pyobj.Slice(ev)
	if err != nil {
		return nil, fmt.Errorf("estimators_: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("estimators_ is empty")
	}
	m := &RandomForestClassifier{name: obj.QualName(), classes: classes}
	for i, item := range items {
		est, err := pyobj.AsObject(item)
		if err != nil {
			return nil, fmt.Errorf("estimators_[%d]: %w", i, err)
		}
		tv, err := est.MustAttr("tree_")
		if err != nil {
			return nil, err
		}
		tree, err := decodeTree(tv)
		if err != nil {
			return nil, fmt.Errorf("estimators_[%d]: %w", i, err)
		}
		if tree.NClasses != classes.Len() {
			return nil, fmt.Errorf("estimators_[%d] has %d classes, classes_ has %d", i, tree.NClasses, classes.Len())
		}
		m.Trees = append(m.Trees, tree)
	}
	m.nFeatures = m.Trees[0].NFeatures
	return m, nil
}

func init() {
	register("RandomForestClassifier", decodeForest)
	register("ExtraTreesClassifier", decodeForest)
}
