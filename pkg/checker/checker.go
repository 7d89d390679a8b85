// Package checker validates the structure of ONNX models: versions, opset
// imports, graph wiring, operator schemas and per-operator attribute
// consistency. It does not run the model.
package checker

import (
	"fmt"
	"math"
	"sort"

	"github.com/zerfoo/skonnx/internal/onnx"
)

// MinIRVersion is the oldest IR version accepted.
const MinIRVersion = 3

// MaxIRVersion is the newest IR version accepted.
const MaxIRVersion = 10

// graphInfo indexes the values visible while walking the graph.
type graphInfo struct {
	types map[string]*onnx.TypeProto
}

// features returns the static feature count of a [N, F] float input, or -1.
func (g *graphInfo) features(name string) int64 {
	shape := g.types[name].Shape()
	if len(shape) != 2 {
		return -1
	}
	return shape[1]
}

// CheckFile loads the model at path and checks it.
func CheckFile(path string) error {
	model, err := onnx.LoadFile(path)
	if err != nil {
		return err
	}
	return Check(model)
}

// Check returns nil for a well-formed model and Issues otherwise.
func Check(model *onnx.ModelProto) error {
	var is Issues
	checkModel(model, &is)
	if len(is) == 0 {
		return nil
	}
	return is
}

func checkModel(m *onnx.ModelProto, is *Issues) {
	if m == nil {
		is.addf(ErrGraph, "", "model is nil")
		return
	}
	if v := m.IrVersion; v < MinIRVersion || v > MaxIRVersion {
		is.addf(ErrIRVersion, "model", "ir_version %d is outside [%d, %d]", v, MinIRVersion, MaxIRVersion)
	}

	opsets := make(map[string]int64)
	if len(m.OpsetImport) == 0 {
		is.addf(ErrOpsetImport, "model", "no opset imported")
	}
	for _, op := range m.OpsetImport {
		d := op.Domain
		if d == "ai.onnx" {
			d = ""
		}
		if _, dup := opsets[d]; dup {
			is.addf(ErrOpsetImport, "model", "domain %q imported twice", op.Domain)
		}
		if op.Version < 1 {
			is.addf(ErrOpsetImport, "model", "domain %q has version %d", op.Domain, op.Version)
		}
		opsets[d] = op.Version
	}
	if _, ok := opsets[""]; !ok && len(m.OpsetImport) > 0 {
		is.addf(ErrOpsetImport, "model", "default domain is not imported")
	}

	if m.Graph == nil {
		is.addf(ErrGraph, "model", "model has no graph")
		return
	}
	checkGraph(m.Graph, opsets, is)
}

func checkGraph(g *onnx.GraphProto, opsets map[string]int64, is *Issues) {
	if g.Name == "" {
		is.addf(ErrGraph, "graph", "graph has no name")
	}
	info := &graphInfo{types: make(map[string]*onnx.TypeProto)}
	defined := make(map[string]bool)

	for _, t := range g.Initializer {
		if t.Name == "" {
			is.addf(ErrValueInfo, "graph/initializer", "initializer has no name")
			continue
		}
		defined[t.Name] = true
		info.types[t.Name] = onnx.TensorType(onnx.TensorProto_DataType(t.DataType), t.Dims...)
	}
	for i, v := range g.Input {
		path := fmt.Sprintf("graph/input[%d]", i)
		checkValueInfo(v, path, is)
		if defined[v.Name] && !isInitializer(g, v.Name) {
			is.addf(ErrDuplicateName, path, "input %q is declared twice", v.Name)
		}
		defined[v.Name] = true
		info.types[v.Name] = v.Type
	}
	for i, v := range g.ValueInfo {
		checkValueInfo(v, fmt.Sprintf("graph/value_info[%d]", i), is)
		info.types[v.Name] = v.Type
	}
	for i, v := range g.Output {
		checkValueInfo(v, fmt.Sprintf("graph/output[%d]", i), is)
	}

	for i, n := range g.Node {
		path := fmt.Sprintf("graph/node[%d]", i)
		if n.Name != "" {
			path = fmt.Sprintf("graph/node[%s]", n.Name)
		}
		for _, in := range n.Input {
			// empty names mark omitted optional inputs
			if in != "" && !defined[in] {
				is.addf(ErrUndefinedInput, path, "input %q is not produced before this node", in)
			}
		}
		checkNode(n, opsets, info, path, is)
		for _, out := range n.Output {
			if out == "" {
				continue
			}
			if defined[out] {
				is.addf(ErrDuplicateName, path, "output %q is already defined", out)
			}
			defined[out] = true
		}
	}

	for i, v := range g.Output {
		if v.Name != "" && !defined[v.Name] {
			is.addf(ErrOutputNotProduced, fmt.Sprintf("graph/output[%d]", i), "output %q is never produced", v.Name)
		}
	}
}

func isInitializer(g *onnx.GraphProto, name string) bool {
	for _, t := range g.Initializer {
		if t.Name == name {
			return true
		}
	}
	return false
}

func checkValueInfo(v *onnx.ValueInfoProto, path string, is *Issues) {
	if v.Name == "" {
		is.addf(ErrValueInfo, path, "value has no name")
	}
	if v.Type == nil {
		is.addf(ErrValueInfo, path, "value %q has no type", v.Name)
		return
	}
	if err := checkType(v.Type); err != nil {
		is.addf(ErrValueInfo, path, "value %q: %v", v.Name, err)
	}
}

func checkType(t *onnx.TypeProto) error {
	switch {
	case t == nil:
		return fmt.Errorf("missing type")
	case t.TensorType != nil:
		if t.TensorType.ElemType == int32(onnx.TensorProto_UNDEFINED) {
			return fmt.Errorf("tensor element type is undefined")
		}
		return nil
	case t.SequenceType != nil:
		return checkType(t.SequenceType.ElemType)
	case t.MapType != nil:
		switch onnx.TensorProto_DataType(t.MapType.KeyType) {
		case onnx.TensorProto_INT64, onnx.TensorProto_STRING, onnx.TensorProto_INT32:
		default:
			return fmt.Errorf("map key type %s is not allowed", onnx.TensorProto_DataType(t.MapType.KeyType))
		}
		return checkType(t.MapType.ValueType)
	}
	return fmt.Errorf("type has no value")
}

func checkNode(n *onnx.NodeProto, opsets map[string]int64, g *graphInfo, path string, is *Issues) {
	domain := n.Domain
	if domain == "ai.onnx" {
		domain = ""
	}
	version, imported := opsets[domain]
	if !imported {
		is.addf(ErrUnknownOperator, path, "domain %q of %s is not imported", n.Domain, n.OpType)
		return
	}
	s, ok := lookup(domain, n.OpType)
	if !ok || s.since > version {
		is.addf(ErrUnknownOperator, path, "no schema for %s in domain %q version %d", n.OpType, n.Domain, version)
		return
	}
	arityOK := true
	if len(n.Input) < s.minIn || len(n.Input) > s.maxIn {
		is.addf(ErrArity, path, "%s takes %d to %d inputs, got %d", n.OpType, s.minIn, s.maxIn, len(n.Input))
		arityOK = false
	}
	if len(n.Output) < s.minOut || len(n.Output) > s.maxOut {
		is.addf(ErrArity, path, "%s produces %d to %d outputs, got %d", n.OpType, s.minOut, s.maxOut, len(n.Output))
		arityOK = false
	}

	seen := make(map[string]bool)
	for _, a := range n.Attribute {
		if seen[a.Name] {
			is.addf(ErrInconsistent, path, "attribute %q is repeated", a.Name)
		}
		seen[a.Name] = true
		spec, ok := s.attrs[a.Name]
		if !ok {
			is.addf(ErrAttributeNotDeclared, path, "%s has no attribute %q", n.OpType, a.Name)
			continue
		}
		if a.Type != spec.typ {
			is.addf(ErrAttributeType, path, "attribute %q is %s, expected %s", a.Name, a.Type, spec.typ)
		}
	}
	for _, name := range sortedKeys(s.attrs) {
		if s.attrs[name].required && !seen[name] {
			is.addf(ErrRequiredAttributeMissing, path, "%s requires attribute %q", n.OpType, name)
		}
	}
	if s.consistent != nil && arityOK {
		s.consistent(n, g, path, is)
	}
}

func ints64(n *onnx.NodeProto, name string) []int64 {
	if a, ok := n.Attr(name); ok {
		return a.Ints
	}
	return nil
}

func floats32(n *onnx.NodeProto, name string) []float32 {
	if a, ok := n.Attr(name); ok {
		return a.Floats
	}
	return nil
}

func stringsOf(n *onnx.NodeProto, name string) []string {
	if a, ok := n.Attr(name); ok {
		return a.StringsValue()
	}
	return nil
}

func stringOf(n *onnx.NodeProto, name, def string) string {
	if a, ok := n.Attr(name); ok {
		return string(a.S)
	}
	return def
}

// labelCount checks that exactly one of the two label attributes is set and
// returns its length.
func labelCount(n *onnx.NodeProto, intName, path string, is *Issues) int {
	_, hasInts := n.Attr(intName)
	_, hasStrings := n.Attr("classlabels_strings")
	switch {
	case hasInts && hasStrings:
		is.addf(ErrInconsistent, path, "both %s and classlabels_strings are set", intName)
	case !hasInts && !hasStrings:
		is.addf(ErrInconsistent, path, "one of %s or classlabels_strings is required", intName)
	case hasInts:
		return len(ints64(n, intName))
	default:
		return len(stringsOf(n, "classlabels_strings"))
	}
	return -1
}

var postTransforms = map[string]bool{
	"NONE": true, "SOFTMAX": true, "LOGISTIC": true, "SOFTMAX_ZERO": true, "PROBIT": true,
}

func checkPostTransform(n *onnx.NodeProto, path string, is *Issues) {
	if pt := stringOf(n, "post_transform", "NONE"); !postTransforms[pt] {
		is.addf(ErrInconsistent, path, "unknown post_transform %q", pt)
	}
}

var nodeModes = map[string]bool{
	"BRANCH_LEQ": true, "BRANCH_LT": true, "BRANCH_GTE": true, "BRANCH_GT": true,
	"BRANCH_EQ": true, "BRANCH_NEQ": true, "LEAF": true,
}

func checkTreeEnsemble(n *onnx.NodeProto, g *graphInfo, path string, is *Issues) {
	nClasses := labelCount(n, "classlabels_int64s", path, is)
	checkPostTransform(n, path, is)

	nodeIDs := ints64(n, "nodes_nodeids")
	treeIDs := ints64(n, "nodes_treeids")
	count := len(nodeIDs)
	if count == 0 {
		is.addf(ErrInconsistent, path, "ensemble has no nodes")
		return
	}
	lengths := map[string]int{
		"nodes_treeids":      len(treeIDs),
		"nodes_featureids":   len(ints64(n, "nodes_featureids")),
		"nodes_modes":        len(stringsOf(n, "nodes_modes")),
		"nodes_values":       len(floats32(n, "nodes_values")),
		"nodes_truenodeids":  len(ints64(n, "nodes_truenodeids")),
		"nodes_falsenodeids": len(ints64(n, "nodes_falsenodeids")),
	}
	if _, ok := n.Attr("nodes_hitrates"); ok {
		lengths["nodes_hitrates"] = len(floats32(n, "nodes_hitrates"))
	}
	if _, ok := n.Attr("nodes_missing_value_tracks_true"); ok {
		lengths["nodes_missing_value_tracks_true"] = len(ints64(n, "nodes_missing_value_tracks_true"))
	}
	consistent := true
	for _, name := range sortedKeys(lengths) {
		if lengths[name] != count {
			is.addf(ErrInconsistent, path, "%s has %d entries, nodes_nodeids has %d", name, lengths[name], count)
			consistent = false
		}
	}
	classTrees := ints64(n, "class_treeids")
	classNodes := ints64(n, "class_nodeids")
	classIDs := ints64(n, "class_ids")
	weights := floats32(n, "class_weights")
	if len(classNodes) != len(classTrees) || len(classIDs) != len(classTrees) || len(weights) != len(classTrees) {
		is.addf(ErrInconsistent, path, "class_treeids, class_nodeids, class_ids and class_weights differ in length")
		consistent = false
	}
	if base := floats32(n, "base_values"); base != nil && nClasses > 0 && len(base) != nClasses {
		is.addf(ErrInconsistent, path, "base_values has %d entries for %d classes", len(base), nClasses)
	}
	if !consistent {
		return
	}

	type key struct{ tree, node int64 }
	modes := stringsOf(n, "nodes_modes")
	features := ints64(n, "nodes_featureids")
	trueIDs := ints64(n, "nodes_truenodeids")
	falseIDs := ints64(n, "nodes_falsenodeids")
	nf := g.features(n.Input[0])
	isLeaf := make(map[key]bool, count)
	for i := range nodeIDs {
		k := key{treeIDs[i], nodeIDs[i]}
		if _, dup := isLeaf[k]; dup {
			is.addf(ErrInconsistent, path, "node (%d, %d) is declared twice", k.tree, k.node)
		}
		if !nodeModes[modes[i]] {
			is.addf(ErrInconsistent, path, "node (%d, %d) has unknown mode %q", k.tree, k.node, modes[i])
		}
		isLeaf[k] = modes[i] == "LEAF"
	}
	for i := range nodeIDs {
		if modes[i] == "LEAF" {
			continue
		}
		if features[i] < 0 || (nf > 0 && features[i] >= nf) {
			is.addf(ErrInconsistent, path, "node (%d, %d) splits on feature %d of %d", treeIDs[i], nodeIDs[i], features[i], nf)
		}
		for _, child := range []int64{trueIDs[i], falseIDs[i]} {
			if _, ok := isLeaf[key{treeIDs[i], child}]; !ok {
				is.addf(ErrInconsistent, path, "node (%d, %d) points to missing node %d", treeIDs[i], nodeIDs[i], child)
			}
		}
	}
	for i := range classTrees {
		leaf, ok := isLeaf[key{classTrees[i], classNodes[i]}]
		if !ok || !leaf {
			is.addf(ErrInconsistent, path, "class weight %d targets (%d, %d), which is not a leaf", i, classTrees[i], classNodes[i])
		}
		if nClasses > 0 && (classIDs[i] < 0 || classIDs[i] >= int64(nClasses)) {
			is.addf(ErrInconsistent, path, "class id %d is outside %d classes", classIDs[i], nClasses)
		}
		if math.IsNaN(float64(weights[i])) {
			is.addf(ErrInconsistent, path, "class weight %d is NaN", i)
		}
	}
}

func checkLinear(n *onnx.NodeProto, g *graphInfo, path string, is *Issues) {
	nClasses := labelCount(n, "classlabels_ints", path, is)
	checkPostTransform(n, path, is)
	coef := floats32(n, "coefficients")
	rows := len(floats32(n, "intercepts"))
	if rows == 0 {
		return
	}
	if len(coef)%rows != 0 {
		is.addf(ErrInconsistent, path, "%d coefficients do not split into %d rows", len(coef), rows)
		return
	}
	if nClasses > 0 && rows != nClasses && !(nClasses == 2 && rows == 1) {
		is.addf(ErrInconsistent, path, "%d intercepts for %d classes", rows, nClasses)
	}
	if nf := g.features(n.Input[0]); nf > 0 && int64(len(coef)/rows) != nf {
		is.addf(ErrInconsistent, path, "coefficients have %d columns, input has %d features", len(coef)/rows, nf)
	}
}

func checkNormalizer(n *onnx.NodeProto, _ *graphInfo, path string, is *Issues) {
	switch norm := stringOf(n, "norm", "MAX"); norm {
	case "MAX", "L1", "L2":
	default:
		is.addf(ErrInconsistent, path, "unknown norm %q", norm)
	}
}

func checkZipMap(n *onnx.NodeProto, _ *graphInfo, path string, is *Issues) {
	labelCount(n, "classlabels_int64s", path, is)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
