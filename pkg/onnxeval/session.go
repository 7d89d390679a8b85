// Package onnxeval is a small reference evaluator for the ONNX operators that
// classifier graphs are built from. It runs a graph node by node on in-memory
// values and is meant for checking converted models, not for serving.
package onnxeval

import (
	"fmt"
	"strconv"

	"github.com/zerfoo/skonnx/internal/onnx"
)

// kernel computes a node's outputs from its inputs. Values are *Tensor or
// *MapSeq.
type kernel func(inputs []any) ([]any, error)

type builder func(n *onnx.NodeProto) (kernel, error)

var builders = map[string]map[string]builder{
	"": {
		"Identity": buildIdentity,
		"Cast":     buildCast,
	},
	"ai.onnx.ml": {
		"TreeEnsembleClassifier": buildTreeEnsemble,
		"LinearClassifier":       buildLinear,
		"Normalizer":             buildNormalizer,
		"ZipMap":                 buildZipMap,
	},
}

type step struct {
	node *onnx.NodeProto
	run  kernel
}

// Session holds a model prepared for evaluation.
type Session struct {
	graph *onnx.GraphProto
	steps []step
}

// New prepares every node of model. Nodes must be in topological order.
func New(model *onnx.ModelProto) (*Session, error) {
	g := model.GetGraph()
	if g == nil {
		return nil, fmt.Errorf("model graph is nil")
	}
	s := &Session{graph: g}
	for _, n := range g.Node {
		domain := n.Domain
		if domain == "ai.onnx" {
			domain = ""
		}
		b, ok := builders[domain][n.OpType]
		if !ok {
			return nil, fmt.Errorf("operator %s in domain %q is not supported", n.OpType, n.Domain)
		}
		k, err := b(n)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", n.Name, n.OpType, err)
		}
		s.steps = append(s.steps, step{node: n, run: k})
	}
	return s, nil
}

// InputNames lists the graph inputs.
func (s *Session) InputNames() []string {
	out := make([]string, len(s.graph.Input))
	for i, v := range s.graph.Input {
		out[i] = v.Name
	}
	return out
}

// OutputNames lists the graph outputs.
func (s *Session) OutputNames() []string {
	out := make([]string, len(s.graph.Output))
	for i, v := range s.graph.Output {
		out[i] = v.Name
	}
	return out
}

// Run evaluates the graph and returns its outputs by name.
func (s *Session) Run(feeds map[string]*Tensor) (map[string]any, error) {
	env := make(map[string]any, len(feeds))
	for _, v := range s.graph.Input {
		t, ok := feeds[v.Name]
		if !ok {
			return nil, fmt.Errorf("input %q is not fed", v.Name)
		}
		if err := t.check(); err != nil {
			return nil, fmt.Errorf("input %q: %w", v.Name, err)
		}
		env[v.Name] = t
	}
	for _, st := range s.steps {
		in := make([]any, len(st.node.Input))
		for i, name := range st.node.Input {
			v, ok := env[name]
			if !ok {
				return nil, fmt.Errorf("node %s: input %q is not available", st.node.Name, name)
			}
			in[i] = v
		}
		out, err := st.run(in)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", st.node.Name, st.node.OpType, err)
		}
		for i, name := range st.node.Output {
			if i < len(out) && name != "" {
				env[name] = out[i]
			}
		}
	}
	res := make(map[string]any, len(s.graph.Output))
	for _, v := range s.graph.Output {
		val, ok := env[v.Name]
		if !ok {
			return nil, fmt.Errorf("output %q was not produced", v.Name)
		}
		res[v.Name] = val
	}
	return res, nil
}

func floatInput(v any) (*Tensor, error) {
	t, ok := v.(*Tensor)
	if !ok || t.DType != onnx.TensorProto_FLOAT {
		return nil, fmt.Errorf("expected a float tensor, got %T", v)
	}
	if len(t.Shape) == 1 {
		return &Tensor{DType: t.DType, Shape: []int{1, t.Shape[0]}, Floats: t.Floats}, nil
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("expected a 2-D tensor, got shape %v", t.Shape)
	}
	return t, nil
}

func buildIdentity(*onnx.NodeProto) (kernel, error) {
	return func(in []any) ([]any, error) { return in[:1], nil }, nil
}

func buildCast(n *onnx.NodeProto) (kernel, error) {
	a, ok := n.Attr("to")
	if !ok {
		return nil, fmt.Errorf("attribute 'to' is required")
	}
	to := onnx.TensorProto_DataType(a.I)
	switch to {
	case onnx.TensorProto_FLOAT, onnx.TensorProto_INT64, onnx.TensorProto_STRING:
	default:
		return nil, fmt.Errorf("cast to %s is not supported", to)
	}
	return func(in []any) ([]any, error) {
		t, ok := in[0].(*Tensor)
		if !ok {
			return nil, fmt.Errorf("expected a tensor, got %T", in[0])
		}
		return []any{cast(t, to)}, nil
	}, nil
}

func cast(t *Tensor, to onnx.TensorProto_DataType) *Tensor {
	if t.DType == to {
		return t
	}
	out := &Tensor{DType: to, Shape: t.Shape}
	n := t.Len()
	for i := 0; i < n; i++ {
		var f float64
		var s string
		switch t.DType {
		case onnx.TensorProto_FLOAT:
			f = float64(t.Floats[i])
			s = fmt.Sprint(t.Floats[i])
		case onnx.TensorProto_INT64:
			f = float64(t.Ints[i])
			s = fmt.Sprint(t.Ints[i])
		case onnx.TensorProto_STRING:
			s = t.Strings[i]
			f, _ = strconv.ParseFloat(s, 64)
		}
		switch to {
		case onnx.TensorProto_FLOAT:
			out.Floats = append(out.Floats, float32(f))
		case onnx.TensorProto_INT64:
			out.Ints = append(out.Ints, int64(f))
		case onnx.TensorProto_STRING:
			out.Strings = append(out.Strings, s)
		}
	}
	return out
}
