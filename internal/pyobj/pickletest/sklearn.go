package pickletest

import (
	"encoding/binary"
	"math"
)

// TreeNode is one record of sklearn's tree node array. Leaves use -1 children.
type TreeNode struct {
	Left, Right     int64
	Feature         int64
	Threshold       float64
	Samples         int64
	MissingGoToLeft bool
}

// Leaf is a convenience constructor for a leaf node.
func Leaf(samples int64) TreeNode {
	return TreeNode{Left: -1, Right: -1, Feature: -2, Threshold: -2, Samples: samples}
}

// Split is a convenience constructor for an internal node.
func Split(feature int64, threshold float64, left, right int64) TreeNode {
	return TreeNode{Left: left, Right: right, Feature: feature, Threshold: threshold}
}

var nodeDType = StructDType(64,
	StructField{"left_child", "i8", 0},
	StructField{"right_child", "i8", 8},
	StructField{"feature", "i8", 16},
	StructField{"threshold", "f8", 24},
	StructField{"impurity", "f8", 32},
	StructField{"n_node_samples", "i8", 40},
	StructField{"weighted_n_node_samples", "f8", 48},
	StructField{"missing_go_to_left", "u1", 56},
)

// Tree pickles sklearn.tree._tree.Tree for a single-output classifier.
// values holds one row of class weights per node.
func Tree(nFeatures int, nodes []TreeNode, values [][]float64) Reduce {
	nClasses := 0
	if len(values) > 0 {
		nClasses = len(values[0])
	}
	raw := make([]byte, 64*len(nodes))
	for i, n := range nodes {
		rec := raw[64*i:]
		binary.LittleEndian.PutUint64(rec[0:], uint64(n.Left))
		binary.LittleEndian.PutUint64(rec[8:], uint64(n.Right))
		binary.LittleEndian.PutUint64(rec[16:], uint64(n.Feature))
		binary.LittleEndian.PutUint64(rec[24:], math.Float64bits(n.Threshold))
		binary.LittleEndian.PutUint64(rec[40:], uint64(n.Samples))
		binary.LittleEndian.PutUint64(rec[48:], math.Float64bits(float64(n.Samples)))
		if n.MissingGoToLeft {
			rec[56] = 1
		}
	}
	flat := make([]float64, 0, len(nodes)*nClasses)
	for _, row := range values {
		flat = append(flat, row...)
	}
	return Reduce{
		Callable: Global{"sklearn.tree._tree", "Tree"},
		Args:     Tuple{nFeatures, Int64Array(int64(nClasses)), 1},
		State: Dict{
			{"max_depth", 1},
			{"node_count", len(nodes)},
			{"nodes", Array(nodeDType, []int{len(nodes)}, raw)},
			{"values", Float64Array(flat, len(nodes), 1, nClasses)},
		},
	}
}

// DecisionTree pickles a fitted DecisionTreeClassifier.
func DecisionTree(classes interface{}, nFeatures int, tree Reduce) Object {
	return Object{
		Class: Global{"sklearn.tree._classes", "DecisionTreeClassifier"},
		State: Dict{
			{"criterion", "gini"},
			{"n_features_in_", nFeatures},
			{"n_outputs_", 1},
			{"classes_", classes},
			{"n_classes_", Int64Scalar(int64(classCount(classes)))},
			{"tree_", tree},
			{"_sklearn_version", "1.5.2"},
		},
	}
}

// RandomForest pickles a fitted RandomForestClassifier made of trees.
func RandomForest(classes interface{}, nFeatures int, trees ...Reduce) Object {
	estimators := make(List, len(trees))
	for i, t := range trees {
		n := classCount(classes)
		idx := make([]float64, n)
		for k := range idx {
			idx[k] = float64(k)
		}
		estimators[i] = Object{
			Class: Global{"sklearn.tree._classes", "DecisionTreeClassifier"},
			State: Dict{
				{"n_features_in_", nFeatures},
				{"n_outputs_", 1},
				{"classes_", Float64Array(idx)},
				{"n_classes_", n},
				{"tree_", t},
				{"_sklearn_version", "1.5.2"},
			},
		}
	}
	return Object{
		Class: Global{"sklearn.ensemble._forest", "RandomForestClassifier"},
		State: Dict{
			{"n_estimators", len(trees)},
			{"n_features_in_", nFeatures},
			{"n_outputs_", 1},
			{"classes_", classes},
			{"n_classes_", classCount(classes)},
			{"estimators_", estimators},
			{"_sklearn_version", "1.5.2"},
		},
	}
}

// LogisticRegression pickles a fitted LogisticRegression. coef has one row per
// class, or a single row for binary problems.
func LogisticRegression(classes interface{}, coef [][]float64, intercept []float64, multiClass, solver string) Object {
	return linearModel(Global{"sklearn.linear_model._logistic", "LogisticRegression"}, classes, coef, intercept, Dict{
		{"multi_class", multiClass},
		{"solver", solver},
	})
}

// LinearSVC pickles a fitted LinearSVC.
func LinearSVC(classes interface{}, coef [][]float64, intercept []float64) Object {
	return linearModel(Global{"sklearn.svm._classes", "LinearSVC"}, classes, coef, intercept, nil)
}

func linearModel(class Global, classes interface{}, coef [][]float64, intercept []float64, extra Dict) Object {
	var flat []float64
	for _, row := range coef {
		flat = append(flat, row...)
	}
	nFeatures := 0
	if len(coef) > 0 {
		nFeatures = len(coef[0])
	}
	state := Dict{
		{"n_features_in_", nFeatures},
		{"classes_", classes},
		{"coef_", Float64Array(flat, len(coef), nFeatures)},
		{"intercept_", Float64Array(intercept)},
		{"_sklearn_version", "1.5.2"},
	}
	return Object{Class: class, State: append(state, extra...)}
}

func classCount(classes interface{}) int {
	r, ok := classes.(Reduce)
	if !ok {
		return 0
	}
	st, ok := r.State.(Tuple)
	if !ok || len(st) < 2 {
		return 0
	}
	shape, _ := st[1].(Tuple)
	if len(shape) == 0 {
		return 0
	}
	n, _ := shape[0].(int)
	return n
}
