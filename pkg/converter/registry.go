package converter

import (
	"sort"
	"strconv"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

// Outputs names the tensors a converter produced. Proba is empty for models
// without predict_proba; Scores is set instead when the model only has a
// decision function.
type Outputs struct {
	Label  string
	Proba  string
	Scores string
}

// ConverterFunc appends the nodes computing est to the graph held by ctx.
type ConverterFunc func(ctx *Context, est sklearn.Estimator) (Outputs, error)

// registry holds the mapping from estimator kinds to converters.
var registry = make(map[string]ConverterFunc)

// Register adds a converter for an estimator kind, e.g. "RandomForestClassifier".
func Register(kind string, fn ConverterFunc) {
	registry[kind] = fn
}

// Get returns the converter for a given kind.
func Get(kind string) (ConverterFunc, bool) {
	fn, ok := registry[kind]
	return fn, ok
}

// Kinds lists the registered estimator kinds in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Context holds the graph under construction.
type Context struct {
	Options Options
	Graph   *onnx.GraphProto
	// Input is the name of the float feature tensor.
	Input string
	names map[string]int
}

func newContext(opts Options) *Context {
	c := &Context{
		Options: opts,
		Graph:   &onnx.GraphProto{},
		Input:   opts.InputName,
		names:   make(map[string]int),
	}
	c.names[opts.InputName] = 1
	return c
}

// Unique returns a name not used so far, derived from base.
func (c *Context) Unique(base string) string {
	n := c.names[base]
	c.names[base] = n + 1
	if n == 0 {
		return base
	}
	name := base + strconv.Itoa(n)
	if _, taken := c.names[name]; taken {
		return c.Unique(base)
	}
	c.names[name] = 1
	return name
}

// Reserve claims a fixed name, such as a graph output.
func (c *Context) Reserve(name string) string {
	c.names[name]++
	return name
}

// AddNode appends a node with a unique name derived from its op type.
func (c *Context) AddNode(opType, domain string, inputs, outputs []string, attrs ...*onnx.AttributeProto) *onnx.NodeProto {
	n := &onnx.NodeProto{
		Name:      c.Unique(opType),
		OpType:    opType,
		Domain:    domain,
		Input:     inputs,
		Output:    outputs,
		Attribute: attrs,
	}
	c.Graph.Node = append(c.Graph.Node, n)
	return n
}
