package onnxeval

import (
	"fmt"
	"math"
	"strconv"

	"github.com/zerfoo/skonnx/internal/onnx"
)

// labels holds the class labels of an ai.onnx.ml classifier.
type labels struct {
	ints    []int64
	strings []string
}

func readLabels(n *onnx.NodeProto, intName string) (labels, error) {
	if a, ok := n.Attr(intName); ok {
		return labels{ints: a.Ints}, nil
	}
	if a, ok := n.Attr("classlabels_strings"); ok {
		return labels{strings: a.StringsValue()}, nil
	}
	return labels{}, fmt.Errorf("no class labels")
}

func (l labels) len() int {
	if l.strings != nil {
		return len(l.strings)
	}
	return len(l.ints)
}

func (l labels) keys() []string {
	if l.strings != nil {
		return l.strings
	}
	out := make([]string, len(l.ints))
	for i, v := range l.ints {
		out[i] = strconv.FormatInt(v, 10)
	}
	return out
}

func (l labels) tensor(idx []int) *Tensor {
	if l.strings != nil {
		t := &Tensor{DType: onnx.TensorProto_STRING, Shape: []int{len(idx)}}
		for _, i := range idx {
			t.Strings = append(t.Strings, l.strings[i])
		}
		return t
	}
	t := &Tensor{DType: onnx.TensorProto_INT64, Shape: []int{len(idx)}}
	for _, i := range idx {
		t.Ints = append(t.Ints, l.ints[i])
	}
	return t
}

func attrString(n *onnx.NodeProto, name, def string) string {
	if a, ok := n.Attr(name); ok {
		return string(a.S)
	}
	return def
}

func attrInts(n *onnx.NodeProto, name string) []int64 {
	if a, ok := n.Attr(name); ok {
		return a.Ints
	}
	return nil
}

func attrFloats(n *onnx.NodeProto, name string) []float32 {
	if a, ok := n.Attr(name); ok {
		return a.Floats
	}
	return nil
}

func postTransform(name string) (func([]float32), error) {
	switch name {
	case "NONE":
		return func([]float32) {}, nil
	case "LOGISTIC":
		return func(v []float32) {
			for i, x := range v {
				v[i] = float32(1 / (1 + math.Exp(-float64(x))))
			}
		}, nil
	case "SOFTMAX":
		return func(v []float32) { softmax(v, false) }, nil
	case "SOFTMAX_ZERO":
		return func(v []float32) { softmax(v, true) }, nil
	}
	return nil, fmt.Errorf("post_transform %q is not supported", name)
}

// softmax normalizes v in place. With skipZero, zero entries stay zero.
func softmax(v []float32, skipZero bool) {
	top := math.Inf(-1)
	for _, x := range v {
		if !(skipZero && x == 0) && float64(x) > top {
			top = float64(x)
		}
	}
	var sum float64
	exp := make([]float64, len(v))
	for i, x := range v {
		if skipZero && x == 0 {
			continue
		}
		exp[i] = math.Exp(float64(x) - top)
		sum += exp[i]
	}
	for i := range v {
		if sum > 0 {
			v[i] = float32(exp[i] / sum)
		}
	}
}

func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

type treeNode struct {
	mode        string
	feature     int
	value       float32
	next        [2]int // true, false
	missingTrue bool
	weights     []classWeight
}

type classWeight struct {
	class  int
	weight float32
}

// takesTrue reports whether x satisfies the node's comparison.
func (n *treeNode) takesTrue(x float32) bool {
	if math.IsNaN(float64(x)) {
		return n.missingTrue
	}
	switch n.mode {
	case "BRANCH_LEQ":
		return x <= n.value
	case "BRANCH_LT":
		return x < n.value
	case "BRANCH_GTE":
		return x >= n.value
	case "BRANCH_GT":
		return x > n.value
	case "BRANCH_EQ":
		return x == n.value
	default:
		return x != n.value
	}
}

func buildTreeEnsemble(n *onnx.NodeProto) (kernel, error) {
	lbl, err := readLabels(n, "classlabels_int64s")
	if err != nil {
		return nil, err
	}
	post, err := postTransform(attrString(n, "post_transform", "NONE"))
	if err != nil {
		return nil, err
	}
	treeIDs := attrInts(n, "nodes_treeids")
	nodeIDs := attrInts(n, "nodes_nodeids")
	features := attrInts(n, "nodes_featureids")
	values := attrFloats(n, "nodes_values")
	trueIDs := attrInts(n, "nodes_truenodeids")
	falseIDs := attrInts(n, "nodes_falsenodeids")
	missing := attrInts(n, "nodes_missing_value_tracks_true")
	var modes []string
	if a, ok := n.Attr("nodes_modes"); ok {
		modes = a.StringsValue()
	}
	count := len(nodeIDs)
	for _, l := range []int{len(treeIDs), len(features), len(values), len(trueIDs), len(falseIDs), len(modes)} {
		if l != count {
			return nil, fmt.Errorf("node attributes differ in length")
		}
	}
	if missing != nil && len(missing) != count {
		return nil, fmt.Errorf("nodes_missing_value_tracks_true has %d entries for %d nodes", len(missing), count)
	}

	type key struct{ tree, node int64 }
	index := make(map[key]int, count)
	nodes := make([]treeNode, count)
	for i := range nodes {
		index[key{treeIDs[i], nodeIDs[i]}] = i
		nodes[i] = treeNode{mode: modes[i], feature: int(features[i]), value: values[i]}
		if missing != nil {
			nodes[i].missingTrue = missing[i] != 0
		}
	}
	isChild := make([]bool, count)
	for i := range nodes {
		if nodes[i].mode == "LEAF" {
			continue
		}
		for b, id := range []int64{trueIDs[i], falseIDs[i]} {
			j, ok := index[key{treeIDs[i], id}]
			if !ok {
				return nil, fmt.Errorf("node (%d, %d) points to missing node %d", treeIDs[i], nodeIDs[i], id)
			}
			nodes[i].next[b] = j
			isChild[j] = true
		}
	}
	var roots []int
	for i := range nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}

	classTrees := attrInts(n, "class_treeids")
	classNodes := attrInts(n, "class_nodeids")
	classIDs := attrInts(n, "class_ids")
	weights := attrFloats(n, "class_weights")
	if len(classNodes) != len(classTrees) || len(classIDs) != len(classTrees) || len(weights) != len(classTrees) {
		return nil, fmt.Errorf("class attributes differ in length")
	}
	nClasses := lbl.len()
	for i := range classTrees {
		j, ok := index[key{classTrees[i], classNodes[i]}]
		if !ok {
			return nil, fmt.Errorf("class weight %d targets a missing node", i)
		}
		if classIDs[i] < 0 || classIDs[i] >= int64(nClasses) {
			return nil, fmt.Errorf("class id %d is outside %d classes", classIDs[i], nClasses)
		}
		nodes[j].weights = append(nodes[j].weights, classWeight{int(classIDs[i]), weights[i]})
	}
	base := attrFloats(n, "base_values")
	if base != nil && len(base) != nClasses {
		return nil, fmt.Errorf("base_values has %d entries for %d classes", len(base), nClasses)
	}

	return func(in []any) ([]any, error) {
		x, err := floatInput(in[0])
		if err != nil {
			return nil, err
		}
		rows, cols := x.Shape[0], x.Shape[1]
		scores := &Tensor{DType: onnx.TensorProto_FLOAT, Shape: []int{rows, nClasses}, Floats: make([]float32, rows*nClasses)}
		idx := make([]int, rows)
		for r := 0; r < rows; r++ {
			row := x.Row(r)
			out := scores.Floats[r*nClasses : (r+1)*nClasses]
			copy(out, base)
			for _, root := range roots {
				i := root
				for steps := 0; nodes[i].mode != "LEAF"; steps++ {
					if steps > count {
						return nil, fmt.Errorf("tree walk does not terminate")
					}
					f := nodes[i].feature
					if f < 0 || f >= cols {
						return nil, fmt.Errorf("feature %d is outside %d columns", f, cols)
					}
					if nodes[i].takesTrue(row[f]) {
						i = nodes[i].next[0]
					} else {
						i = nodes[i].next[1]
					}
				}
				for _, cw := range nodes[i].weights {
					out[cw.class] += cw.weight
				}
			}
			idx[r] = argmax(out)
			post(out)
		}
		return []any{lbl.tensor(idx), scores}, nil
	}, nil
}

func buildLinear(n *onnx.NodeProto) (kernel, error) {
	lbl, err := readLabels(n, "classlabels_ints")
	if err != nil {
		return nil, err
	}
	post, err := postTransform(attrString(n, "post_transform", "NONE"))
	if err != nil {
		return nil, err
	}
	coef := attrFloats(n, "coefficients")
	intercepts := attrFloats(n, "intercepts")
	rows := len(intercepts)
	if rows == 0 {
		rows = lbl.len()
		if rows == 2 && len(coef)%2 != 0 {
			rows = 1
		}
		intercepts = make([]float32, rows)
	}
	if rows == 0 || len(coef)%rows != 0 {
		return nil, fmt.Errorf("%d coefficients do not split into %d rows", len(coef), rows)
	}
	binary := rows == 1 && lbl.len() == 2
	if !binary && rows != lbl.len() {
		return nil, fmt.Errorf("%d coefficient rows for %d classes", rows, lbl.len())
	}
	nf := len(coef) / rows

	return func(in []any) ([]any, error) {
		x, err := floatInput(in[0])
		if err != nil {
			return nil, err
		}
		if x.Shape[1] != nf {
			return nil, fmt.Errorf("input has %d features, coefficients have %d", x.Shape[1], nf)
		}
		nOut := lbl.len()
		scores := &Tensor{DType: onnx.TensorProto_FLOAT, Shape: []int{x.Shape[0], nOut}, Floats: make([]float32, x.Shape[0]*nOut)}
		idx := make([]int, x.Shape[0])
		z := make([]float32, rows)
		for r := range idx {
			row := x.Row(r)
			for k := 0; k < rows; k++ {
				s := intercepts[k]
				for j, v := range coef[k*nf : (k+1)*nf] {
					s += v * row[j]
				}
				z[k] = s
			}
			out := scores.Floats[r*nOut : (r+1)*nOut]
			if binary {
				out[0], out[1] = -z[0], z[0]
			} else {
				copy(out, z)
			}
			idx[r] = argmax(out)
			post(out)
		}
		return []any{lbl.tensor(idx), scores}, nil
	}, nil
}

func buildNormalizer(n *onnx.NodeProto) (kernel, error) {
	norm := attrString(n, "norm", "MAX")
	switch norm {
	case "MAX", "L1", "L2":
	default:
		return nil, fmt.Errorf("unknown norm %q", norm)
	}
	return func(in []any) ([]any, error) {
		x, err := floatInput(in[0])
		if err != nil {
			return nil, err
		}
		out := &Tensor{DType: onnx.TensorProto_FLOAT, Shape: x.Shape, Floats: make([]float32, len(x.Floats))}
		for r := 0; r < x.Shape[0]; r++ {
			row := x.Row(r)
			var d float64
			switch norm {
			case "MAX":
				d = math.Inf(-1)
				for _, v := range row {
					d = math.Max(d, float64(v))
				}
			case "L1":
				for _, v := range row {
					d += math.Abs(float64(v))
				}
			case "L2":
				for _, v := range row {
					d += float64(v) * float64(v)
				}
				d = math.Sqrt(d)
			}
			dst := out.Row(r)
			for j, v := range row {
				if d == 0 {
					dst[j] = v
				} else {
					dst[j] = float32(float64(v) / d)
				}
			}
		}
		return []any{out}, nil
	}, nil
}

func buildZipMap(n *onnx.NodeProto) (kernel, error) {
	lbl, err := readLabels(n, "classlabels_int64s")
	if err != nil {
		return nil, err
	}
	keys := lbl.keys()
	return func(in []any) ([]any, error) {
		x, err := floatInput(in[0])
		if err != nil {
			return nil, err
		}
		if x.Shape[1] != len(keys) {
			return nil, fmt.Errorf("input has %d columns for %d labels", x.Shape[1], len(keys))
		}
		out := &MapSeq{Keys: keys}
		for r := 0; r < x.Shape[0]; r++ {
			out.Values = append(out.Values, append([]float32(nil), x.Row(r)...))
		}
		return []any{out}, nil
	}, nil
}
