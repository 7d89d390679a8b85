package sklearn

import (
	"fmt"
	"math"

	"github.com/zerfoo/skonnx/internal/pyobj"
)

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
type Node struct {
	Left, Right     int
	Feature         int
	Threshold       float64
	MissingGoToLeft bool
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// Tree is sklearn.tree._tree.Tree restricted to a single output.
type Tree struct {
	NFeatures int
	NClasses  int
	Nodes     []Node
	// Values[i] holds the class weights of node i.
	Values [][]float64
}

// Apply returns the index of the leaf reached by x. Samples go left when
// x[feature] <= threshold; NaN follows MissingGoToLeft.
func (t *Tree) Apply(x []float32) (int, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return i, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		v := float64(x[n.Feature])
		left := v <= n.Threshold
		if math.IsNaN(v) {
			left = n.MissingGoToLeft
		}
		if left {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, fmt.Errorf("tree has a cycle")
}

// Proba returns the normalized class weights of the leaf reached by x.
func (t *Tree) Proba(x []float32) ([]float64, error) {
	leaf, err := t.Apply(x)
	if err != nil {
		return nil, err
	}
	return LeafProba(t.Values[leaf]), nil
}

// LeafProba normalizes leaf weights; an all-zero row stays zero.
func LeafProba(values []float64) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum == 0 {
		sum = 1
	}
	for i, v := range values {
		out[i] = v / sum
	}
	return out
}

func decodeTree(v interface{}) (*Tree, error) {
	obj, err := pyobj.AsObject(v)
	if err != nil {
		return nil, fmt.Errorf("tree_: %w", err)
	}
	if len(obj.Args) < 3 {
		return nil, fmt.Errorf("tree_: expected 3 constructor arguments, got %d", len(obj.Args))
	}
	nFeatures, err := pyobj.Int(obj.Args[0])
	if err != nil {
		return nil, fmt.Errorf("tree_ n_features: %w", err)
	}
	nOutputs, err := pyobj.Int(obj.Args[2])
	if err != nil {
		return nil, fmt.Errorf("tree_ n_outputs: %w", err)
	}
	if nOutputs != 1 {
		return nil, errMultiOutput
	}

	nodesV, err := obj.MustAttr("nodes")
	if err != nil {
		return nil, err
	}
	nodes, err := pyobj.Array(nodesV)
	if err != nil {
		return nil, fmt.Errorf("tree_ nodes: %w", err)
	}
	valuesV, err := obj.MustAttr("values")
	if err != nil {
		return nil, err
	}
	values, err := pyobj.Array(valuesV)
	if err != nil {
		return nil, fmt.Errorf("tree_ values: %w", err)
	}

	left, err := nodes.FieldInt64s("left_child")
	if err != nil {
		return nil, err
	}
	right, err := nodes.FieldInt64s("right_child")
	if err != nil {
		return nil, err
	}
	feature, err := nodes.FieldInt64s("feature")
	if err != nil {
		return nil, err
	}
	threshold, err := nodes.FieldFloat64s("threshold")
	if err != nil {
		return nil, err
	}
	var missing []int64
	if nodes.HasField("missing_go_to_left") {
		if missing, err = nodes.FieldInt64s("missing_go_to_left"); err != nil {
			return nil, err
		}
	}

	if len(values.Shape) != 3 || values.Shape[0] != len(left) {
		return nil, fmt.Errorf("tree_ values shape %v does not match %d nodes", values.Shape, len(left))
	}
	nClasses := values.Shape[2]
	flat, err := values.Float64s()
	if err != nil {
		return nil, fmt.Errorf("tree_ values: %w", err)
	}

	t := &Tree{
		NFeatures: int(nFeatures),
		NClasses:  nClasses,
		Nodes:     make([]Node, len(left)),
		Values:    make([][]float64, len(left)),
	}
	for i := range t.Nodes {
		n := Node{
			Left:      int(left[i]),
			Right:     int(right[i]),
			Feature:   int(feature[i]),
			Threshold: threshold[i],
		}
		if missing != nil {
			n.MissingGoToLeft = missing[i] != 0
		}
		if !n.IsLeaf() && (n.Left >= len(left) || n.Right < 0 || n.Right >= len(left)) {
			return nil, fmt.Errorf("tree_ node %d has children (%d, %d) outside %d nodes", i, n.Left, n.Right, len(left))
		}
		t.Nodes[i] = n
		t.Values[i] = flat[i*nClasses : (i+1)*nClasses]
	}
	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("tree_ has no nodes")
	}
	return t, nil
}

// DecisionTreeClassifier also covers ExtraTreeClassifier; both predict the
// same way once fitted.
type DecisionTreeClassifier struct {
	name    string
	classes *Labels
	Tree    *Tree
}

func (m *DecisionTreeClassifier) TypeName() string { return m.name }
func (m *DecisionTreeClassifier) Kind() string     { return kindOf(m.name) }
func (m *DecisionTreeClassifier) Classes() *Labels { return m.classes }
func (m *DecisionTreeClassifier) NumFeatures() int { return m.Tree.NFeatures }

func (m *DecisionTreeClassifier) PredictProba(x []float32) ([]float64, error) {
	if err := checkInput(x, m.Tree.NFeatures); err != nil {
		return nil, err
	}
	return m.Tree.Proba(x)
}

func (m *DecisionTreeClassifier) Predict(x []float32) (Label, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return Label{}, err
	}
	return m.classes.At(argmax(p)), nil
}

func decodeDecisionTree(obj *pyobj.Object) (Estimator, error) {
	classes, err := decodeClasses(obj)
	if err != nil {
		return nil, err
	}
	tv, err := obj.MustAttr("tree_")
	if err != nil {
		return nil, err
	}
	tree, err := decodeTree(tv)
	if err != nil {
		return nil, err
	}
	if tree.NClasses != classes.Len() {
		return nil, fmt.Errorf("tree_ has %d classes, classes_ has %d", tree.NClasses, classes.Len())
	}
	return &DecisionTreeClassifier{name: obj.QualName(), classes: classes, Tree: tree}, nil
}

func init() {
	register("DecisionTreeClassifier", decodeDecisionTree)
	register("ExtraTreeClassifier", decodeDecisionTree)
}
